package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"basegraph.app/roster/common/logger"
	"basegraph.app/roster/core/config"
	"basegraph.app/roster/internal/queue"
)

var cfg config.Config

// openTransport is replaced in tests.
var openTransport = func(ctx context.Context, events config.EventsConfig) (queue.Transport, error) {
	return queue.Open(ctx, events, "rosterctl")
}

var rootCmd = &cobra.Command{
	Use:   "rosterctl",
	Short: "Roster event pipeline CLI",
	Long: `rosterctl operates the roster event pipeline.

Publish events to the configured topic, manage fan-out subscriptions and
inspect or redrive dead-lettered messages. Connection settings come from the
same environment variables as the server and worker.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(config.ServiceTypeCLI)
		if err != nil {
			return err
		}
		if transport, _ := cmd.Flags().GetString("transport"); transport != "" {
			loaded.Events.Transport = config.Transport(transport)
		}
		cfg = loaded
		logger.Setup(cfg)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("transport", "", "override TRANSPORT (redis or nats)")
}

// redisOnly opens the transport and fails unless it is Redis Streams,
// the only transport with subscriptions and a dead-letter stream.
func redisOnly(ctx context.Context) (*queue.RedisTransport, error) {
	t, err := openTransport(ctx, cfg.Events)
	if err != nil {
		return nil, err
	}
	rt, ok := t.(*queue.RedisTransport)
	if !ok {
		_ = t.Close()
		return nil, fmt.Errorf("%s transport does not support this command", cfg.Events.Transport)
	}
	return rt, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
