package types

// NotificationRecipient is a subscriber who opted in to email alerts.
type NotificationRecipient struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// NotificationTally counts the outcome of one alert fan-out.
type NotificationTally struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Add accumulates o into t.
func (t *NotificationTally) Add(o NotificationTally) {
	t.Sent += o.Sent
	t.Failed += o.Failed
}

// Total is the number of attempted sends.
func (t NotificationTally) Total() int {
	return t.Sent + t.Failed
}

// RateAlert describes a rate that crossed the alert threshold.
type RateAlert struct {
	Category  RateCategory `json:"category"`
	Rate      float64      `json:"rate"`
	Threshold float64      `json:"threshold"`
}
