package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/service"
)

const maxSettingsBody = 1 << 16

// SettingsStore reads and updates the live trading parameters.
type SettingsStore interface {
	Snapshot() domain.TradeConfig
	Update(ctx context.Context, u service.SettingsUpdate) (domain.TradeConfig, error)
}

// SettingsHandler serves GET and POST /api/settings.
type SettingsHandler struct {
	store  SettingsStore
	logger *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(store SettingsStore, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{store: store, logger: logger}
}

type settingsResponse struct {
	MinProfit            float64 `json:"min_profit"`
	Amount               float64 `json:"amount"`
	Slippage             float64 `json:"slippage"`
	FeePerTx             float64 `json:"fee_per_tx"`
	VolumeSpikeThreshold float64 `json:"volume_spike_threshold"`
}

func toSettingsResponse(c domain.TradeConfig) settingsResponse {
	return settingsResponse{
		MinProfit:            c.MinProfitRatio,
		Amount:               c.TradeAmount,
		Slippage:             c.SlippagePct,
		FeePerTx:             c.FeePerTx,
		VolumeSpikeThreshold: c.VolumeSpikeThreshold,
	}
}

// Get returns the current settings.
// GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSettingsResponse(h.store.Snapshot()))
}

// Update applies a partial settings change. Fields absent from the body keep
// their value.
// POST /api/settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var u service.SettingsUpdate
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cfg, err := h.store.Update(r.Context(), u)
	if errors.Is(err, domain.ErrInvalidSettings) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "settings update failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Settings updated",
		"settings": toSettingsResponse(cfg),
	})
}
