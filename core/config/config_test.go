package config_test

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/roster/core/config"
)

var _ = Describe("Load", func() {
	setenv := func(key, value string) {
		prev, had := os.LookupEnv(key)
		Expect(os.Setenv(key, value)).To(Succeed())
		DeferCleanup(func() {
			if had {
				_ = os.Setenv(key, prev)
			} else {
				_ = os.Unsetenv(key)
			}
		})
	}

	BeforeEach(func() {
		setenv("ROSTER_ENV", "test")
	})

	It("applies the event pipeline defaults", func() {
		cfg, err := config.Load(config.ServiceTypeWorker)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Events.Transport).To(Equal(config.TransportRedis))
		Expect(cfg.Events.MaxMessages).To(Equal(10))
		Expect(cfg.Events.WaitTime).To(Equal(5 * time.Second))
		Expect(cfg.Events.VisibilityTimeout).To(Equal(30 * time.Second))
		Expect(cfg.Events.MaxReceiveCount).To(Equal(5))
		Expect(cfg.ServiceName).To(Equal("model_management"))
	})

	It("derives the dead-letter queue from the source queue", func() {
		setenv("EVENTS_QUEUE", "model_service_events")

		cfg, err := config.Load(config.ServiceTypeWorker)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Events.ConsumerEnabled()).To(BeTrue())
		Expect(cfg.Events.DeadLetterQueue()).To(Equal("model_service_events_dlq"))
	})

	DescribeTable("rejects invalid pipeline settings",
		func(key, value, message string) {
			setenv(key, value)

			_, err := config.Load(config.ServiceTypeWorker)

			Expect(err).To(MatchError(ContainSubstring(message)))
		},
		Entry("unknown transport", "TRANSPORT", "kafka", "unsupported TRANSPORT"),
		Entry("batch too large", "POLL_MAX_MESSAGES", "11", "POLL_MAX_MESSAGES"),
		Entry("wait too long", "POLL_WAIT_SECONDS", "21", "POLL_WAIT_SECONDS"),
		Entry("no receives", "MAX_RECEIVE_COUNT", "0", "MAX_RECEIVE_COUNT"),
	)

	It("requires an admin key for the production server", func() {
		setenv("ROSTER_ENV", "production")
		setenv("ADMIN_API_KEY", "")

		_, err := config.Load(config.ServiceTypeServer)

		Expect(err).To(MatchError(ContainSubstring("ADMIN_API_KEY")))
	})
})
