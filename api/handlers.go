package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tftpwatch/core"
	"tftpwatch/correlate"
	"tftpwatch/detect"

	"github.com/goccy/go-json"
)

const (
	defaultTransferLimit = 50
	defaultTopFilesLimit = 5
	defaultAlertLimit    = 50
	maxLimit             = 1000
	queryTimeout         = 5 * time.Second
	probeTimeout         = 10 * time.Second
)

func (a *API) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}

// writeError logs the full error and sends only the message to the client
func (a *API) writeError(w http.ResponseWriter, statusCode int, message string, err error) {
	if err != nil {
		a.logger.Errorw(message, "error", err, "status_code", statusCode)
	}
	a.respondJSON(w, map[string]string{"error": message}, statusCode)
}

// parseLimit reads the limit query parameter, bounded to [1, maxLimit]
func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxLimit {
		return 0, fmt.Errorf("limit must be an integer between 1 and %d", maxLimit)
	}
	return limit, nil
}

func (a *API) getStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	now := a.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	stats, err := a.transfers.Statistics(ctx, dayStart)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "Failed to get statistics", err)
		return
	}
	a.respondJSON(w, stats, http.StatusOK)
}

func (a *API) getTransfers(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultTransferLimit)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	transfers, err := a.transfers.RecentTransfers(ctx, limit)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "Failed to get transfers", err)
		return
	}
	a.respondJSON(w, transfers, http.StatusOK)
}

func (a *API) getHourly(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	counts, err := a.transfers.HourlyCounts(ctx, a.now().Add(-24*time.Hour))
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "Failed to get hourly statistics", err)
		return
	}
	a.respondJSON(w, counts, http.StatusOK)
}

func (a *API) getTopFiles(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultTopFilesLimit)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	files, err := a.transfers.TopFiles(ctx, limit)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "Failed to get top files", err)
		return
	}
	a.respondJSON(w, files, http.StatusOK)
}

func (a *API) getAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultAlertLimit)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	kind := core.AlertKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.IsValid() {
		a.writeError(w, http.StatusBadRequest, "unknown alert kind", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	alerts, err := a.alerts.RecentAlerts(ctx, kind, limit)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "Failed to get alerts", err)
		return
	}
	a.respondJSON(w, alerts, http.StatusOK)
}

// correlationResponse reports the in-process engines. Either part is absent
// when the engine does not run in this process.
type correlationResponse struct {
	Correlation *correlate.Stats    `json:"correlation,omitempty"`
	Detection   *detect.EngineStats `json:"detection,omitempty"`
}

func (a *API) getCorrelation(w http.ResponseWriter, r *http.Request) {
	if a.correlationStats == nil && a.detectionStats == nil {
		a.writeError(w, http.StatusServiceUnavailable, "no engine running in this process", nil)
		return
	}
	var resp correlationResponse
	if a.correlationStats != nil {
		s := a.correlationStats()
		resp.Correlation = &s
	}
	if a.detectionStats != nil {
		s := a.detectionStats()
		resp.Detection = &s
	}
	a.respondJSON(w, resp, http.StatusOK)
}

func (a *API) getServer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	status, err := a.probe.Server(ctx)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "Failed to read server status", err)
		return
	}
	a.respondJSON(w, status, http.StatusOK)
}

func (a *API) getServices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	a.respondJSON(w, a.probe.Services(ctx, a.cfg.Services), http.StatusOK)
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"time":   a.now().UTC(),
	}
	if a.hub != nil {
		resp["websocket_clients"] = a.hub.ClientCount()
	}
	a.respondJSON(w, resp, http.StatusOK)
}
