package notify

import (
	"context"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/ecowatt/tourate/pkg/common"
	"github.com/ecowatt/tourate/pkg/log"
)

// Configured registers the notification flags and returns a Notifier that is
// populated once flags are parsed.
func Configured() *Notifier {
	def := DefaultOptions()

	batchSize := def.BatchSize
	lflag.JSON(&batchSize, "notify-batch-size", batchSize, "Number of alert emails sent concurrently per batch")
	batchDelay := lflag.Duration("notify-batch-delay", def.BatchDelay, "Pause between alert batches")
	sendTimeout := lflag.Duration("notify-send-timeout", def.SendTimeout, "Timeout for a single alert email")
	portalURL := lflag.String("portal-url", def.PortalURL, "Portal URL linked from alert emails")
	apiKey := lflag.String("resend-api-key", "", "Resend API key, alerts are not delivered without one")
	apiURL := lflag.String("resend-api-url", "https://api.resend.com", "Resend API base URL")
	from := lflag.String("email-from", "PrabhaWatt Alerts <onboarding@resend.dev>", "From address for alert emails")

	n := &Notifier{}

	lflag.Do(func() {
		var t Transport
		if *apiKey != "" {
			t = NewResendTransport(common.HTTPClient(*sendTimeout+5*time.Second), *apiURL, *apiKey, *from)
		} else {
			ctx := context.Background()
			log.Ctx(ctx).WarnContext(ctx, "resend-api-key not set, alert emails will fail")
		}
		*n = *NewNotifier(t, Options{
			BatchSize:   batchSize,
			BatchDelay:  *batchDelay,
			SendTimeout: *sendTimeout,
			PortalURL:   *portalURL,
		})
	})

	return n
}
