package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/ecowatt/tourate/pkg/types"
)

var alertTemplate = template.Must(template.New("alert").Parse(`<div style="font-family: sans-serif; line-height: 1.5;">
<p>Dear User,</p>
<p>The current {{.Category}} tariff rate has reached <strong>₹{{printf "%.2f" .Rate}}</strong>, which is higher than our normal threshold of ₹{{printf "%.2f" .Threshold}}.</p>
<p>{{.Suggestion}}</p>
<p>Consider adjusting your electricity usage to save costs. For real-time rates and usage insights, visit the <a href="{{.PortalURL}}">PrabhaWatt Portal</a>.</p>
<p style="color: #666; font-size: 12px;">You are receiving this email because you opted in to tariff alerts. To unsubscribe, change your notification preferences on the portal.</p>
</div>`))

var testTemplate = template.Must(template.New("test").Parse(`<div style="font-family: sans-serif; line-height: 1.5;">
<p>Dear User,</p>
<p>This is a test message from the PrabhaWatt tariff alert service. If you can read this, alert emails will reach you.</p>
<p>Visit the <a href="{{.PortalURL}}">PrabhaWatt Portal</a> for real-time rates.</p>
</div>`))

// AlertMessage renders the subject and HTML body for a high rate alert.
func AlertMessage(alert types.RateAlert, portalURL string) (string, string, error) {
	subject := fmt.Sprintf("High %s Tariff Rate Alert: ₹%.2f", alert.Category, alert.Rate)

	var buf bytes.Buffer
	err := alertTemplate.Execute(&buf, struct {
		types.RateAlert
		Suggestion string
		PortalURL  string
	}{
		RateAlert:  alert,
		Suggestion: UsageSuggestion(alert.Rate),
		PortalURL:  portalURL,
	})
	if err != nil {
		return "", "", err
	}
	return subject, buf.String(), nil
}

// TestMessage renders the delivery check message.
func TestMessage(portalURL string) (string, string, error) {
	var buf bytes.Buffer
	if err := testTemplate.Execute(&buf, struct{ PortalURL string }{portalURL}); err != nil {
		return "", "", err
	}
	return "PrabhaWatt Tariff Alerts Test", buf.String(), nil
}

// UsageSuggestion returns consumer guidance for a rate in ₹/kWh.
func UsageSuggestion(rate float64) string {
	switch {
	case rate < 5:
		return "Rates are low. This is an ideal time for high-consumption activities like laundry, water heating or EV charging."
	case rate < 8:
		return "Rates are moderate. This is a good time for moderate usage."
	case rate < 10:
		return "Rates are high. Limit high-consumption activities where you can."
	default:
		return "Rates are at their peak. Postpone non-essential usage if possible."
	}
}
