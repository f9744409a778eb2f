package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"relay/internal/message"
	"relay/internal/status"

	"github.com/google/uuid"
)

// StatusApplier reconciles one gateway status report against the store.
type StatusApplier interface {
	Apply(ctx context.Context, rep status.Report) (bool, error)
}

type StatusHandler struct {
	Svc StatusApplier
}

type statusReq struct {
	MessageID string         `json:"messageId"`
	Status    string         `json:"status"`
	Payload   map[string]any `json:"payload"`
}

var reportableStatuses = map[string]bool{
	message.StatusSent:      true,
	message.StatusDelivered: true,
	message.StatusReceived:  true,
	message.StatusFailed:    true,
}

func (h *StatusHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}
	if _, err := uuid.Parse(req.MessageID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}
	if !reportableStatuses[req.Status] {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}

	applied, err := h.Svc.Apply(r.Context(), status.Report{
		MessageID: req.MessageID,
		Status:    req.Status,
		Payload:   req.Payload,
	})
	if errors.Is(err, message.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := map[string]any{"ok": true}
	if !applied {
		resp["ignored"] = true
	}
	writeJSON(w, http.StatusOK, resp)
}
