package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

const statusPath = "/api/gateway/status"

// Reporter posts status transitions to the owning system's callback endpoint,
// authenticated with the shared gateway secret. There is no built-in retry:
// a dropped report is acceptable, the job store stays authoritative.
type Reporter struct {
	BaseURL string
	Secret  string
	Client  *http.Client
}

type envelope struct {
	MessageID string         `json:"messageId"`
	Status    string         `json:"status"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Report returns whether the HTTP exchange succeeded with a 2xx status.
func (r *Reporter) Report(ctx context.Context, messageID, status string, payload map[string]any) (bool, error) {
	body, err := json.Marshal(envelope{MessageID: messageID, Status: status, Payload: payload})
	if err != nil {
		return false, err
	}

	url := strings.TrimRight(r.BaseURL, "/") + statusPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Secret", r.Secret)

	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}
