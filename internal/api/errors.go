package api

import "fmt"

// Error is a server-reported application failure, decoded from the uniform
// {"error": {"code", "message"}} envelope. Transport-level failures are
// returned as wrapped plain errors instead.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server error: http status %d", e.StatusCode)
}
