package audit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smartinventory/smartinventory/internal/platform/httpx"
	"github.com/smartinventory/smartinventory/internal/shared"
)

// Handler serves the audit timeline endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes registers the audit routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
	r.Get("/export.csv", h.exportCSV)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	data, err := h.service.ExportCSV(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-timeline.csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	filters := TimelineFilters{
		Actor:    q.Get("actor"),
		Entity:   q.Get("entity"),
		Action:   q.Get("action"),
		EntityID: q.Get("entity_id"),
	}
	var err error
	if filters.From, err = parseTime(q.Get("from")); err != nil {
		return TimelineFilters{}, err
	}
	if filters.To, err = parseTime(q.Get("to")); err != nil {
		return TimelineFilters{}, err
	}
	if raw := q.Get("page"); raw != "" {
		if filters.Page, err = strconv.Atoi(raw); err != nil {
			return TimelineFilters{}, &shared.ValidationError{Detail: "page must be an integer"}
		}
	}
	if raw := q.Get("page_size"); raw != "" {
		if filters.PageSize, err = strconv.Atoi(raw); err != nil {
			return TimelineFilters{}, &shared.ValidationError{Detail: "page_size must be an integer"}
		}
	}
	return filters, nil
}

// parseTime accepts RFC 3339 timestamps or bare dates.
func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, &shared.ValidationError{Detail: "timestamps must be RFC 3339 or YYYY-MM-DD"}
	}
	return t, nil
}
