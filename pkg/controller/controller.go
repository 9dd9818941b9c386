package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/ecowatt/tourate/pkg/log"
	"github.com/ecowatt/tourate/pkg/types"
)

// DefaultThreshold is the rate in ₹/kWh above which subscribers are alerted.
const DefaultThreshold = 4.0

// RateEngine computes the current rate for a category.
type RateEngine interface {
	ComputeRate(category types.RateCategory, now time.Time) float64
}

// RateStore persists computed rates.
type RateStore interface {
	AppendRate(ctx context.Context, record types.TOURateRecord) (string, error)
}

// SubscriberDirectory lists the recipients of high rate alerts.
type SubscriberDirectory interface {
	ListEmailSubscribers(ctx context.Context) ([]types.NotificationRecipient, error)
}

// AlertNotifier fans an alert out to recipients.
type AlertNotifier interface {
	NotifyHighRate(ctx context.Context, recipients []types.NotificationRecipient, alert types.RateAlert) types.NotificationTally
}

// RatePublisher mirrors computed rates to a live feed.
type RatePublisher interface {
	PublishRate(ctx context.Context, record types.TOURateRecord) error
}

// Controller runs the per-tick compute, persist and notify pipeline.
type Controller struct {
	engine    RateEngine
	store     RateStore
	directory SubscriberDirectory
	notifier  AlertNotifier
	publisher RatePublisher
	threshold float64
}

// NewController returns a Controller alerting when a rate is strictly above
// threshold.
func NewController(engine RateEngine, store RateStore, directory SubscriberDirectory, notifier AlertNotifier, threshold float64) *Controller {
	return &Controller{
		engine:    engine,
		store:     store,
		directory: directory,
		notifier:  notifier,
		threshold: threshold,
	}
}

// SetPublisher sets an optional publisher that receives every computed rate.
func (c *Controller) SetPublisher(p RatePublisher) {
	c.publisher = p
}

// Threshold returns the alert threshold.
func (c *Controller) Threshold() float64 {
	return c.threshold
}

// CategoryResult is the outcome of one category within a tick.
type CategoryResult struct {
	Category types.RateCategory `json:"category"`
	Rate     float64            `json:"rate"`
	RecordID string             `json:"recordId,omitempty"`

	StoreError     string `json:"storeError,omitempty"`
	PublishError   string `json:"publishError,omitempty"`
	DirectoryError string `json:"directoryError,omitempty"`

	// Alerted is set when the rate was above the threshold.
	Alerted       bool                    `json:"alerted"`
	Recipients    int                     `json:"recipients"`
	Notifications types.NotificationTally `json:"notifications"`

	// Skipped is set when the tick's context ended before the category ran.
	Skipped bool `json:"skipped,omitempty"`
}

// TickReport summarizes a tick.
type TickReport struct {
	Time          time.Time               `json:"time"`
	Threshold     float64                 `json:"threshold"`
	Results       []CategoryResult        `json:"results"`
	Notifications types.NotificationTally `json:"notifications"`
}

// Result returns the result for category.
func (r TickReport) Result(category types.RateCategory) (CategoryResult, bool) {
	for _, res := range r.Results {
		if res.Category == category {
			return res, true
		}
	}
	return CategoryResult{}, false
}

// RunTick processes categories one after another at instant now. A failure
// in one step or category is logged and recorded in the report without
// stopping the rest of the tick.
func (c *Controller) RunTick(ctx context.Context, categories []types.RateCategory, now time.Time) TickReport {
	report := TickReport{
		Time:      now,
		Threshold: c.threshold,
		Results:   make([]CategoryResult, 0, len(categories)),
	}
	for _, category := range categories {
		if ctx.Err() != nil {
			log.Ctx(ctx).WarnContext(ctx, "tick ended before category ran", slog.String("category", string(category)), slog.Any("error", ctx.Err()))
			report.Results = append(report.Results, CategoryResult{Category: category, Skipped: true})
			continue
		}
		res := c.runCategory(log.WithAttrs(ctx, slog.String("category", string(category))), category, now)
		report.Notifications.Add(res.Notifications)
		report.Results = append(report.Results, res)
	}
	return report
}

func (c *Controller) runCategory(ctx context.Context, category types.RateCategory, now time.Time) CategoryResult {
	res := CategoryResult{Category: category}

	res.Rate = c.engine.ComputeRate(category, now)
	log.Ctx(ctx).InfoContext(ctx, "computed rate", slog.Float64("rate", res.Rate))

	record := types.TOURateRecord{Category: category, Rate: res.Rate, Timestamp: now}
	id, err := c.store.AppendRate(ctx, record)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to store rate", slog.Any("error", err))
		res.StoreError = err.Error()
	} else {
		res.RecordID = id
		record.ID = id
	}

	if c.publisher != nil {
		if err := c.publisher.PublishRate(ctx, record); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to publish rate", slog.Any("error", err))
			res.PublishError = err.Error()
		}
	}

	if !(res.Rate > c.threshold) {
		return res
	}
	res.Alerted = true

	recipients, err := c.directory.ListEmailSubscribers(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list subscribers", slog.Any("error", err))
		res.DirectoryError = err.Error()
		return res
	}
	res.Recipients = len(recipients)
	if len(recipients) == 0 {
		log.Ctx(ctx).InfoContext(ctx, "rate above threshold but no subscribers", slog.Float64("threshold", c.threshold))
		return res
	}

	res.Notifications = c.notifier.NotifyHighRate(ctx, recipients, types.RateAlert{
		Category:  category,
		Rate:      res.Rate,
		Threshold: c.threshold,
	})
	return res
}
