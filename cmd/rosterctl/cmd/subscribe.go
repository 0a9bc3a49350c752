package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"basegraph.app/roster/internal/queue"
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Subscribe a queue to the topic",
	Example: `  rosterctl subscribe --queue selection-events --filter target_services=selection_service
  rosterctl subscribe --queue audit --raw
  rosterctl subscribe --queue audit --remove`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		queueName, _ := cmd.Flags().GetString("queue")
		filters, _ := cmd.Flags().GetStringArray("filter")
		raw, _ := cmd.Flags().GetBool("raw")
		remove, _ := cmd.Flags().GetBool("remove")
		topic := topicFlag(cmd)

		if topic == "" {
			return fmt.Errorf("--topic or EVENTS_TOPIC is required")
		}

		rt, err := redisOnly(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		if remove {
			if err := rt.Unsubscribe(cmd.Context(), topic, queueName); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unsubscribed %s from %s\n", queueName, topic)
			return nil
		}

		policy, err := parseFilterPolicy(filters)
		if err != nil {
			return err
		}
		sub := queue.Subscription{Topic: topic, Queue: queueName, FilterPolicy: policy, RawDelivery: raw}
		if err := rt.Subscribe(cmd.Context(), sub); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), sub)
	},
}

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "List the queues subscribed to the topic",
	RunE: func(cmd *cobra.Command, _ []string) error {
		topic := topicFlag(cmd)
		if topic == "" {
			return fmt.Errorf("--topic or EVENTS_TOPIC is required")
		}

		rt, err := redisOnly(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		subs, err := rt.Subscriptions(cmd.Context(), topic)
		if err != nil {
			return err
		}
		if subs == nil {
			subs = []queue.Subscription{}
		}
		return printJSON(cmd.OutOrStdout(), subs)
	},
}

// parseFilterPolicy turns "attr=v1,v2" flags into a filter policy.
// Repeating an attribute appends to its values.
func parseFilterPolicy(filters []string) (map[string][]string, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	policy := make(map[string][]string, len(filters))
	for _, f := range filters {
		name, values, ok := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" || values == "" {
			return nil, fmt.Errorf("invalid filter %q, want attribute=value[,value]", f)
		}
		for _, v := range strings.Split(values, ",") {
			if v = strings.TrimSpace(v); v != "" {
				policy[name] = append(policy[name], v)
			}
		}
	}
	return policy, nil
}

func topicFlag(cmd *cobra.Command) string {
	if topic, _ := cmd.Flags().GetString("topic"); topic != "" {
		return topic
	}
	return cfg.Events.Topic
}

func init() {
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(subscriptionsCmd)

	subscribeCmd.Flags().String("queue", "", "queue stream to deliver into")
	subscribeCmd.Flags().String("topic", "", "topic (default: EVENTS_TOPIC)")
	subscribeCmd.Flags().StringArray("filter", nil, "filter policy entry attribute=value[,value], repeatable")
	subscribeCmd.Flags().Bool("raw", false, "deliver the published body without the notification wrapper")
	subscribeCmd.Flags().Bool("remove", false, "remove the subscription instead")
	_ = subscribeCmd.MarkFlagRequired("queue")

	subscriptionsCmd.Flags().String("topic", "", "topic (default: EVENTS_TOPIC)")
}
