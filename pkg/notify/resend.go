package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ResendTransport sends email through the Resend HTTP API.
type ResendTransport struct {
	client *http.Client
	apiURL string
	apiKey string
	from   string
}

// NewResendTransport returns a transport posting to apiURL with apiKey.
func NewResendTransport(client *http.Client, apiURL, apiKey, from string) *ResendTransport {
	return &ResendTransport{
		client: client,
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		from:   from,
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (t *ResendTransport) Send(ctx context.Context, msg Message) (string, error) {
	b, err := json.Marshal(resendRequest{
		From:    t.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL+"/emails", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call resend: %w", err)
	}
	defer resp.Body.Close()

	var rr resendResponse
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read resend response: %w", err)
	}
	// error bodies are not always JSON so ignore decode failures here
	_ = json.Unmarshal(body, &rr)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if rr.Message != "" {
			return "", fmt.Errorf("resend returned %d (%s): %s", resp.StatusCode, rr.Name, rr.Message)
		}
		return "", fmt.Errorf("resend returned %d", resp.StatusCode)
	}
	if rr.ID == "" {
		return "", fmt.Errorf("resend response missing id")
	}
	return rr.ID, nil
}
