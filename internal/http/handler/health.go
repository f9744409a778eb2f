package handler

import (
	"net/http"
	"time"
)

type HealthHandler struct {
	WorkerEnabled bool
	Version       string
}

func (h *HealthHandler) Post(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"workerEnabled": h.WorkerEnabled,
		"version":       h.Version,
	})
}
