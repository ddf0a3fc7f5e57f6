package ai

import (
	"fmt"
	"regexp"
	"strings"
)

var thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThink removes <think>...</think> reasoning blocks from a reply.
func StripThink(reply string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(reply, ""))
}

// StatusError is a non-2xx answer from a provider.
type StatusError struct {
	Provider string
	Code     int
	Body     string
	Err      error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s http %d: %s", e.Provider, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) StatusCode() int { return e.Code }

func isGarbageResponse(s string) bool {
	l := strings.ToLower(s)

	if strings.Contains(l, "<html") {
		return true
	}
	if strings.Contains(l, "not allowed") {
		return true
	}
	if len(strings.TrimSpace(s)) < 5 {
		return true
	}
	return false
}

func truncate(b []byte) string {
	if len(b) > 200 {
		return string(b[:200]) + "..."
	}
	return string(b)
}
