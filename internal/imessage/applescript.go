package imessage

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// EscapeString makes a value safe inside a double-quoted AppleScript literal.
func EscapeString(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `"`, `\"`)
}

// BuildScript renders the Messages.app send script for a handle and body.
func BuildScript(to, body string) string {
	return fmt.Sprintf(`tell application "Messages"
  set targetService to 1st service whose service type = iMessage
  set targetBuddy to buddy "%s" of targetService
  send "%s" to targetBuddy
end tell`, EscapeString(to), EscapeString(body))
}

// AppleScriptSender delivers messages through osascript. Each Send is at most
// one delivery attempt.
type AppleScriptSender struct {
	// Exec overrides the osascript invocation, for tests.
	Exec func(ctx context.Context, script string) error
}

func (s *AppleScriptSender) Send(ctx context.Context, to, body string) error {
	run := s.Exec
	if run == nil {
		run = runOsascript
	}
	return run(ctx, BuildScript(to, body))
}

func runOsascript(ctx context.Context, script string) error {
	out, err := exec.CommandContext(ctx, "osascript", "-e", script).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("osascript: %w", err)
		}
		return fmt.Errorf("osascript: %v: %s", err, msg)
	}
	return nil
}
