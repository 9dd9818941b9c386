package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ecowatt/tourate/pkg/log"
	"github.com/ecowatt/tourate/pkg/notify"
	"github.com/ecowatt/tourate/pkg/storage"
)

// handleTick runs one tick over the configured categories. The tick is
// detached from the request so a caller that gives up does not abort it half
// way; tickTimeout bounds it instead.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	if s.tickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.tickTimeout)
		defer cancel()
	}

	now := s.now()
	log.Ctx(ctx).InfoContext(ctx, "tick starting", slog.Time("now", now), slog.Int("categories", len(s.categories)))
	report := s.controller.RunTick(ctx, s.categories, now)
	log.Ctx(ctx).InfoContext(ctx, "tick finished",
		slog.Int("sent", report.Notifications.Sent),
		slog.Int("failed", report.Notifications.Failed),
	)

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, report)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req emailRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	email, err := storage.NormalizeEmail(req.Email)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.notifier.SendTest(ctx, email)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to send test email", slog.Any("error", err))
		if errors.Is(err, notify.ErrNotConfigured) {
			writeJSONError(w, "email transport not configured", http.StatusServiceUnavailable)
			return
		}
		writeJSONError(w, "failed to send test email", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ID string `json:"id"`
	}{ID: id})
}
