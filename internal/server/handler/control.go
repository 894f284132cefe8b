package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/scheduler"
)

// BotController is what the control endpoints drive.
type BotController interface {
	Start() error
	Stop() error
	Status() scheduler.Status
}

// ControlHandler serves the start, stop and status endpoints.
type ControlHandler struct {
	bot    BotController
	mode   string
	logger *slog.Logger
}

// NewControlHandler creates a ControlHandler. mode is echoed in the status.
func NewControlHandler(bot BotController, mode string, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{bot: bot, mode: mode, logger: logger}
}

type statusResponse struct {
	State string           `json:"status"`
	Mode  string           `json:"mode"`
	Bot   scheduler.Status `json:"bot"`
}

func runningLabel(running bool) string {
	if running {
		return "Running"
	}
	return "Stopped"
}

// Start launches the trading loop.
// POST /api/start
func (h *ControlHandler) Start(w http.ResponseWriter, r *http.Request) {
	err := h.bot.Start()
	switch {
	case errors.Is(err, domain.ErrAlreadyRunning):
		writeMessage(w, http.StatusConflict, "Bot already running", map[string]any{"status": "Running"})
	case err != nil:
		h.logger.ErrorContext(r.Context(), "start failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to start bot")
	default:
		writeMessage(w, http.StatusOK, "Bot started", map[string]any{"status": "Running"})
	}
}

// Stop halts the trading loop after the pair in progress.
// POST /api/stop
func (h *ControlHandler) Stop(w http.ResponseWriter, r *http.Request) {
	err := h.bot.Stop()
	switch {
	case errors.Is(err, domain.ErrNotRunning):
		writeMessage(w, http.StatusConflict, "Bot not running", map[string]any{"status": "Stopped"})
	case err != nil:
		h.logger.ErrorContext(r.Context(), "stop failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to stop bot")
	default:
		writeMessage(w, http.StatusOK, "Bot stopped", map[string]any{"status": "Stopped"})
	}
}

// Status reports the loop state, last decisions and recent trades.
// GET /api/status
func (h *ControlHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.bot.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		State: runningLabel(st.Running),
		Mode:  h.mode,
		Bot:   st,
	})
}
