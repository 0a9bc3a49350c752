package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"basegraph.app/roster/internal/event"
	"basegraph.app/roster/internal/publisher"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish an event to the topic",
	Example: `  rosterctl publish --type user_created --data '{"user_id":42,"username":"jane","role_name":"model","status":"active"}'
  rosterctl publish --type model_updated --data '{"id":7}' --target user_service --target selection_service`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		req, err := publishRequestFromFlags(cmd)
		if err != nil {
			return err
		}

		topic, _ := cmd.Flags().GetString("topic")
		if topic == "" {
			topic = cfg.Events.Topic
		}

		t, err := openTransport(cmd.Context(), cfg.Events)
		if err != nil {
			return err
		}
		defer t.Close()

		pub := publisher.New(t, publisher.Config{Topic: topic, SourceService: cfg.ServiceName})
		messageID, err := pub.Publish(cmd.Context(), req)
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), map[string]string{
			"message_id": messageID,
			"topic":      topic,
		})
	},
}

func publishRequestFromFlags(cmd *cobra.Command) (event.PublishRequest, error) {
	eventType, _ := cmd.Flags().GetString("type")
	data, _ := cmd.Flags().GetString("data")
	targets, _ := cmd.Flags().GetStringArray("target")
	source, _ := cmd.Flags().GetString("source")
	groupID, _ := cmd.Flags().GetString("group")

	t := event.Type(eventType)
	if !t.Valid() {
		return event.PublishRequest{}, fmt.Errorf("unknown event type %q (want one of %v)", eventType, event.Types())
	}

	payload := map[string]any{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return event.PublishRequest{}, fmt.Errorf("--data must be a JSON object: %w", err)
		}
	}

	services := make([]event.Service, len(targets))
	for i, s := range targets {
		services[i] = event.Service(s)
	}

	return event.PublishRequest{
		EventType:     t,
		Payload:       payload,
		SourceService: source,
		Targets:       event.To(services...),
		GroupID:       groupID,
	}, nil
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().String("type", "", "event type")
	publishCmd.Flags().String("data", "", "event payload as a JSON object")
	publishCmd.Flags().StringArray("target", nil, "target service, repeatable (default: all)")
	publishCmd.Flags().String("source", "", "source service (default: SERVICE_NAME)")
	publishCmd.Flags().String("group", "", "ordering group id")
	publishCmd.Flags().String("topic", "", "topic (default: EVENTS_TOPIC)")
	_ = publishCmd.MarkFlagRequired("type")
}
