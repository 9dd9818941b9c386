package server

import (
	"net/http"

	"github.com/ecowatt/tourate/pkg/notify"
	"github.com/ecowatt/tourate/pkg/tariff"
	"github.com/ecowatt/tourate/pkg/types"
)

type currentRate struct {
	tariff.Quote
	Suggestion string `json:"suggestion"`
}

// handleCurrentRates previews the rate for now. Nothing is persisted and no
// alert is sent, so repeated calls return different noise.
func (s *Server) handleCurrentRates(w http.ResponseWriter, r *http.Request) {
	categories := s.categories
	if c := r.URL.Query().Get("category"); c != "" {
		category, err := types.ParseRateCategory(c)
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		categories = []types.RateCategory{category}
	}

	now := s.now()
	rates := make([]currentRate, 0, len(categories))
	for _, c := range categories {
		q := s.engine.Quote(c, now)
		rates = append(rates, currentRate{
			Quote:      q,
			Suggestion: notify.UsageSuggestion(q.Rate),
		})
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, rates)
}
