package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// EventReader exposes the event log to the API.
type EventReader interface {
	Recent(ctx context.Context, limit int) ([]domain.Event, error)
	History(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error)
}

// LogsHandler serves the operator event log.
type LogsHandler struct {
	events EventReader
	logger *slog.Logger
}

// NewLogsHandler creates a LogsHandler.
func NewLogsHandler(events EventReader, logger *slog.Logger) *LogsHandler {
	return &LogsHandler{events: events, logger: logger}
}

type logsResponse struct {
	Logs  []domain.Event `json:"logs"`
	Count int            `json:"count"`
}

// Recent returns the newest events first.
// GET /api/logs?limit=
func (h *LogsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	evs, err := h.events.Recent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "reading event log", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read logs")
		return
	}
	if evs == nil {
		evs = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, logsResponse{Logs: evs, Count: len(evs)})
}

// History pages through the durable audit log.
// GET /api/logs/history?limit=&offset=&since=&until=
func (h *LogsHandler) History(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	evs, err := h.events.History(r.Context(), opts)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "audit log not configured")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "reading audit log", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}
	if evs == nil {
		evs = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, logsResponse{Logs: evs, Count: len(evs)})
}

func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()
	opts := domain.ListOpts{Limit: parseLimit(r)}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, errors.New("offset must be a non-negative integer")
		}
		opts.Offset = n
	}
	for key, dst := range map[string]**time.Time{"since": &opts.Since, "until": &opts.Until} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, errors.New(key + " must be an RFC3339 timestamp")
		}
		*dst = &t
	}
	return opts, nil
}
