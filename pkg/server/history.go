package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ecowatt/tourate/pkg/log"
	"github.com/ecowatt/tourate/pkg/types"
)

const maxHistoryRange = 7 * 24 * time.Hour

func (s *Server) handleHistoryRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category, err := types.ParseRateCategory(r.URL.Query().Get("category"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	start, end, err := s.parseTimeRange(r)
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}

	records, err := s.storage.GetRateHistory(ctx, category, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get rates", slog.String("category", string(category)), slog.Any("error", err))
		writeJSONError(w, "failed to get rates", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []types.TOURateRecord{}
	}

	// ranges that ended before the last tick cannot change
	if end.Before(s.now().Truncate(time.Hour)) {
		w.Header().Set("Cache-Control", "public, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=60")
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" && endStr == "" {
		// Default to last 24 hours if not specified
		end := s.now()
		start := end.Add(-24 * time.Hour)
		return start, end, nil
	}
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("start and end must be given together")
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}

	if end.Sub(start) > maxHistoryRange {
		return time.Time{}, time.Time{}, fmt.Errorf("time range cannot exceed 7 days")
	}

	return start, end, nil
}
