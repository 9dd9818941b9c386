package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResendTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req resendRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch req.To[0] {
		case "ok@example.com":
			assert.Equal(t, "Alerts <alerts@example.com>", req.From)
			assert.Equal(t, "subject", req.Subject)
			assert.Equal(t, "<p>hi</p>", req.HTML)
			w.Write([]byte(`{"id":"49a3999c-0ce1-4ea6-ab68-afcd6dc2e794"}`))
		case "invalid@example.com":
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"Invalid to field"}`))
		case "empty@example.com":
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("bad gateway"))
		}
	}))
	defer server.Close()

	tr := NewResendTransport(server.Client(), server.URL+"/", "re_test", "Alerts <alerts@example.com>")
	ctx := context.Background()

	id, err := tr.Send(ctx, Message{To: "ok@example.com", Subject: "subject", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, "49a3999c-0ce1-4ea6-ab68-afcd6dc2e794", id)

	_, err = tr.Send(ctx, Message{To: "invalid@example.com"})
	assert.EqualError(t, err, "resend returned 422 (validation_error): Invalid to field")

	_, err = tr.Send(ctx, Message{To: "empty@example.com"})
	assert.EqualError(t, err, "resend response missing id")

	_, err = tr.Send(ctx, Message{To: "other@example.com"})
	assert.EqualError(t, err, "resend returned 502")
}

func TestResendTransportContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	tr := NewResendTransport(server.Client(), server.URL, "re_test", "from@example.com")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tr.Send(ctx, Message{To: "slow@example.com"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
