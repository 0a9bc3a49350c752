package main

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("drainConsumer", func() {
	It("reports a drained consumer once stop returns", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		Expect(drainConsumer(ctx, func() {})).To(BeTrue())
	})

	It("gives up when stop outlives the deadline", func() {
		release := make(chan struct{})
		DeferCleanup(func() { close(release) })
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		Expect(drainConsumer(ctx, func() { <-release })).To(BeFalse())
	})
})
