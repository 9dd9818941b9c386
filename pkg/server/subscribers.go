package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ecowatt/tourate/pkg/log"
	"github.com/ecowatt/tourate/pkg/storage"
)

func (s *Server) handleAddSubscriber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req emailRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	recipient, created, err := s.storage.AddEmailSubscriber(ctx, req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidEmail) {
			writeJSONError(w, "invalid email address", http.StatusBadRequest)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to add subscriber", slog.Any("error", err))
		writeJSONError(w, "failed to add subscriber", http.StatusInternalServerError)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
		log.Ctx(ctx).InfoContext(ctx, "subscriber added", slog.String("subscriberID", recipient.ID))
	}
	writeJSON(w, code, recipient)
}
