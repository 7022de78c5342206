// Package api exposes the suggestion endpoints. It is a thin seam over the
// weather backend: whatever goes wrong below it, the response is an empty
// suggestion list, never a failed request.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/suggestkit/weather-backend/internal/weather"
)

// Backend is the surface the handlers need from the weather backend.
type Backend interface {
	GetWeatherReport(ctx context.Context, wc weather.WeatherContext) (*weather.WeatherReport, error)
	GetLocationCompletions(ctx context.Context, wc weather.WeatherContext, query string) ([]weather.LocationCompletion, error)
}

type Handler struct {
	backend Backend
	log     *slog.Logger
}

func NewHandler(backend Backend, log *slog.Logger) *Handler {
	return &Handler{backend: backend, log: log}
}

type suggestion struct {
	Provider string                 `json:"provider"`
	Title    string                 `json:"title"`
	URL      string                 `json:"url"`
	Report   *weather.WeatherReport `json:"weather_report,omitempty"`
}

type suggestResponse struct {
	Suggestions []suggestion `json:"suggestions"`
}

func contextFromRequest(r *http.Request) weather.WeatherContext {
	q := r.URL.Query()

	var regions []string
	for _, p := range strings.Split(q.Get("region"), ",") {
		if x := strings.TrimSpace(p); x != "" {
			regions = append(regions, x)
		}
	}

	var languages []string
	for _, p := range strings.Split(r.Header.Get("Accept-Language"), ",") {
		lang := strings.TrimSpace(strings.SplitN(p, ";", 2)[0])
		if lang != "" && lang != "*" {
			languages = append(languages, lang)
		}
	}

	return weather.WeatherContext{
		Location: weather.Location{
			Country: q.Get("country"),
			Regions: regions,
			City:    q.Get("city"),
			Key:     q.Get("key"),
		},
		Languages: languages,
		Source:    q.Get("source"),
	}
}

// Suggest serves GET /api/v1/suggest. Backend failures are logged at warning
// level and collapse to an empty suggestion list: this backend must never be
// the reason a whole suggestion response fails.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	wc := contextFromRequest(r)

	resp := suggestResponse{Suggestions: []suggestion{}}
	report, err := h.backend.GetWeatherReport(r.Context(), wc)
	switch {
	case err != nil:
		h.log.Warn("weather suggestion unavailable", "err", err)
	case report != nil:
		resp.Suggestions = append(resp.Suggestions, suggestion{
			Provider: "weather",
			Title:    report.CityName,
			URL:      report.Current.URL,
			Report:   report,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type completionsResponse struct {
	Completions []weather.LocationCompletion `json:"completions"`
}

// Completions serves GET /api/v1/weather/completions.
func (h *Handler) Completions(w http.ResponseWriter, r *http.Request) {
	wc := contextFromRequest(r)

	resp := completionsResponse{Completions: []weather.LocationCompletion{}}
	comps, err := h.backend.GetLocationCompletions(r.Context(), wc, r.URL.Query().Get("q"))
	if err != nil {
		h.log.Warn("location completions unavailable", "err", err)
	} else if comps != nil {
		resp.Completions = comps
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
