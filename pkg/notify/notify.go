package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/ecowatt/tourate/pkg/log"
	"github.com/ecowatt/tourate/pkg/types"
)

var (
	ErrNoRecipient   = errors.New("recipient has no email address")
	ErrNotConfigured = errors.New("email transport not configured")
)

// Message is a single rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Transport delivers one message and returns the provider's message ID.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Options tune the fan-out.
type Options struct {
	// BatchSize is how many sends run concurrently.
	BatchSize int
	// BatchDelay is the pause between consecutive batches.
	BatchDelay time.Duration
	// SendTimeout bounds a single send.
	SendTimeout time.Duration
	// PortalURL is linked from every alert.
	PortalURL string
}

// DefaultOptions returns the options used when no flags override them.
func DefaultOptions() Options {
	return Options{
		BatchSize:   20,
		BatchDelay:  2 * time.Second,
		SendTimeout: 10 * time.Second,
		PortalURL:   "https://prabhawatt.vercel.app/",
	}
}

// Notifier fans high-rate alerts out to subscribers in rate-limited batches.
type Notifier struct {
	transport   Transport
	batchSize   int
	batchDelay  time.Duration
	sendTimeout time.Duration
	portalURL   string

	sleep func(ctx context.Context, d time.Duration)
}

// NewNotifier returns a Notifier sending through transport.
func NewNotifier(transport Transport, opts Options) *Notifier {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	return &Notifier{
		transport:   transport,
		batchSize:   opts.BatchSize,
		batchDelay:  opts.BatchDelay,
		sendTimeout: opts.SendTimeout,
		portalURL:   opts.PortalURL,
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// NotifyHighRate emails the alert to every recipient. Recipients are split
// into batches sent concurrently, with BatchDelay between batches. A failed
// send is counted and never stops the others.
func (n *Notifier) NotifyHighRate(ctx context.Context, recipients []types.NotificationRecipient, alert types.RateAlert) types.NotificationTally {
	var tally types.NotificationTally
	if len(recipients) == 0 {
		return tally
	}

	subject, body, err := AlertMessage(alert, n.portalURL)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to render alert", slog.Any("error", err))
		tally.Failed = len(recipients)
		return tally
	}

	batches := lo.Chunk(recipients, n.batchSize)
	for i, batch := range batches {
		if i > 0 {
			n.sleep(ctx, n.batchDelay)
		}
		errs := n.sendBatch(ctx, batch, subject, body)
		for j, err := range errs {
			if err != nil {
				tally.Failed++
				log.Ctx(ctx).WarnContext(ctx, "failed to send alert",
					slog.String("recipientID", batch[j].ID),
					slog.Int("batch", i),
					slog.Any("error", err),
				)
				continue
			}
			tally.Sent++
		}
	}

	log.Ctx(ctx).InfoContext(ctx, "alert fan-out complete",
		slog.Int("batches", len(batches)),
		slog.Int("sent", tally.Sent),
		slog.Int("failed", tally.Failed),
	)
	return tally
}

// sendBatch sends to every recipient concurrently and returns the per
// recipient errors in batch order.
func (n *Notifier) sendBatch(ctx context.Context, batch []types.NotificationRecipient, subject, body string) []error {
	errs := make([]error, len(batch))
	var g errgroup.Group
	for i, r := range batch {
		g.Go(func() error {
			_, errs[i] = n.send(ctx, Message{To: r.Email, Subject: subject, HTML: body})
			return nil
		})
	}
	g.Wait()
	return errs
}

func (n *Notifier) send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", ErrNoRecipient
	}
	if n.transport == nil {
		return "", ErrNotConfigured
	}
	if n.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.sendTimeout)
		defer cancel()
	}
	id, err := n.transport.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("failed to send to %s: %w", msg.To, err)
	}
	return id, nil
}

// SendTest sends a one-off message to email so an operator can verify
// delivery. It returns the provider's message ID.
func (n *Notifier) SendTest(ctx context.Context, email string) (string, error) {
	subject, body, err := TestMessage(n.portalURL)
	if err != nil {
		return "", fmt.Errorf("failed to render test message: %w", err)
	}
	return n.send(ctx, Message{To: email, Subject: subject, HTML: body})
}
