package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"relay/internal/message"
	"relay/internal/phone"

	"github.com/google/uuid"
)

const maxBodyLength = 2000

// MessageSender performs one immediate external send.
type MessageSender interface {
	Send(ctx context.Context, handle, body string) error
}

// StatusReporter posts the resulting transition to the owning system.
type StatusReporter interface {
	Report(ctx context.Context, messageID, status string, payload map[string]any) (bool, error)
}

// SendHandler sends a message immediately, bypassing the scheduler. The
// outcome is both returned and reported through the status callback.
type SendHandler struct {
	Sender   MessageSender
	Reporter StatusReporter
}

type sendReq struct {
	MessageID string `json:"messageId"`
	To        string `json:"to"`
	Body      string `json:"body"`
}

func (h *SendHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req sendReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}
	if _, err := uuid.Parse(req.MessageID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}
	req.To = strings.TrimSpace(req.To)
	if req.To == "" || req.Body == "" || len(req.Body) > maxBodyLength {
		writeError(w, http.StatusBadRequest, "invalid_input")
		return
	}

	// US phone handles go out in E.164 form; anything else (email handles)
	// passes through untouched.
	to := req.To
	if normalized := phone.Normalize(to); normalized != nil {
		to = normalized.E164
	}

	if err := h.Sender.Send(r.Context(), to, req.Body); err != nil {
		h.report(r, req.MessageID, message.StatusFailed, map[string]any{
			"sendMethod": "applescript",
			"error":      err.Error(),
		})
		writeJSON(w, http.StatusOK, map[string]any{"status": message.StatusFailed, "error": err.Error()})
		return
	}

	h.report(r, req.MessageID, message.StatusSent, map[string]any{
		"sendMethod": "applescript",
		"sentAt":     time.Now().UTC().Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": message.StatusSent})
}

func (h *SendHandler) report(r *http.Request, messageID, st string, payload map[string]any) {
	if h.Reporter == nil {
		return
	}
	_, _ = h.Reporter.Report(r.Context(), messageID, st, payload)
}
