package controller

import (
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// Configured registers the threshold flag and returns a Controller wired to
// the given dependencies once flags are parsed.
func Configured(engine RateEngine, store RateStore, directory SubscriberDirectory, notifier AlertNotifier, publisher RatePublisher) *Controller {
	threshold := DefaultThreshold
	lflag.JSON(&threshold, "rate-threshold", threshold, "Rate in ₹/kWh above which subscribers are emailed")

	c := NewController(engine, store, directory, notifier, DefaultThreshold)
	c.SetPublisher(publisher)

	lflag.Do(func() {
		if threshold < 0 {
			panic(fmt.Sprintf("rate-threshold must not be negative: %v", threshold))
		}
		c.threshold = threshold
	})

	return c
}
