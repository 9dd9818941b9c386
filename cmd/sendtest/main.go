// Command sendtest sends the alert test email through the configured
// transport so the Resend credentials can be checked without waiting for a
// high rate.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/levenlabs/go-lflag"

	"github.com/ecowatt/tourate/pkg/log"
	"github.com/ecowatt/tourate/pkg/notify"
	"github.com/ecowatt/tourate/pkg/storage"
)

func main() {
	n := notify.Configured()
	to := lflag.RequiredString("to", "Email address to send the test message to")
	lflag.Configure()

	ctx := context.Background()
	email, err := storage.NormalizeEmail(*to)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid recipient", slog.Any("error", err))
		os.Exit(1)
	}

	id, err := n.SendTest(ctx, email)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to send test email", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "test email sent", slog.String("id", id))
}
