package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"relay/internal/http/handler"
	"relay/internal/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSender struct {
	err     error
	handles []string
	bodies  []string
}

func (s *stubSender) Send(ctx context.Context, handle, body string) error {
	s.handles = append(s.handles, handle)
	s.bodies = append(s.bodies, body)
	return s.err
}

type reportCall struct {
	messageID string
	status    string
	payload   map[string]any
}

type stubReporter struct {
	calls []reportCall
}

func (r *stubReporter) Report(ctx context.Context, messageID, status string, payload map[string]any) (bool, error) {
	r.calls = append(r.calls, reportCall{messageID: messageID, status: status, payload: payload})
	return true, nil
}

func postSend(t *testing.T, h *handler.SendHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Post(rec, req)
	return rec
}

func TestSendPostSuccess(t *testing.T) {
	sender := &stubSender{}
	reporter := &stubReporter{}
	h := &handler.SendHandler{Sender: sender, Reporter: reporter}

	rec := postSend(t, h, `{"messageId":"`+testMessageID+`","to":"(555) 123-4567","body":"hello"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, message.StatusSent, decode(t, rec)["status"])
	assert.Equal(t, []string{"+15551234567"}, sender.handles, "US numbers go out in E.164 form")

	require.Len(t, reporter.calls, 1)
	assert.Equal(t, message.StatusSent, reporter.calls[0].status)
	assert.Equal(t, "applescript", reporter.calls[0].payload["sendMethod"])
	assert.NotEmpty(t, reporter.calls[0].payload["sentAt"])
}

func TestSendPostEmailHandlePassesThrough(t *testing.T) {
	sender := &stubSender{}
	h := &handler.SendHandler{Sender: sender, Reporter: &stubReporter{}}

	rec := postSend(t, h, `{"messageId":"`+testMessageID+`","to":"user@example.com","body":"hello"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"user@example.com"}, sender.handles)
}

func TestSendPostFailureReportsAndReturnsFailed(t *testing.T) {
	sender := &stubSender{err: errors.New("buddy not found")}
	reporter := &stubReporter{}
	h := &handler.SendHandler{Sender: sender, Reporter: reporter}

	rec := postSend(t, h, `{"messageId":"`+testMessageID+`","to":"user@example.com","body":"hello"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, message.StatusFailed, out["status"])
	assert.Equal(t, "buddy not found", out["error"])

	require.Len(t, reporter.calls, 1)
	assert.Equal(t, message.StatusFailed, reporter.calls[0].status)
	assert.Equal(t, "buddy not found", reporter.calls[0].payload["error"])
}

func TestSendPostValidation(t *testing.T) {
	longBody := strings.Repeat("a", 2001)
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"non-uuid message id", `{"messageId":"nope","to":"user@example.com","body":"hi"}`},
		{"blank recipient", `{"messageId":"` + testMessageID + `","to":"   ","body":"hi"}`},
		{"empty body", `{"messageId":"` + testMessageID + `","to":"user@example.com","body":""}`},
		{"oversized body", `{"messageId":"` + testMessageID + `","to":"user@example.com","body":"` + longBody + `"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender := &stubSender{}
			rec := postSend(t, &handler.SendHandler{Sender: sender}, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, sender.handles)
		})
	}
}
