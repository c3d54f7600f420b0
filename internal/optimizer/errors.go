package optimizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports a request rejected locally, before any network I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// UnreachableError reports a network-level failure: the service could not be
// reached at all, or did not answer within the client timeout.
type UnreachableError struct {
	BaseURL string
	Err     error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("optimization service unreachable at %s (check that the backend is running): %v", e.BaseURL, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// ServerRejectedError reports a non-2xx response. Message carries whatever
// human-readable text the body yielded, else a generic status line.
type ServerRejectedError struct {
	Status  int
	Message string
}

func (e *ServerRejectedError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

// IsUnreachable reports whether err classifies as a transport failure.
func IsUnreachable(err error) bool {
	var ue *UnreachableError
	return errors.As(err, &ue)
}

// AsServerRejected extracts a ServerRejectedError if err carries one.
func AsServerRejected(err error) (*ServerRejectedError, bool) {
	var se *ServerRejectedError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsValidation reports whether err classifies as a local validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// extractServerMessage pulls a human message out of an error response body.
// Backends in the wild answer with several shapes; the first that parses to a
// non-empty string wins, and the bare status line is the fallback.
func extractServerMessage(status int, body []byte) string {
	var shape struct {
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &shape); err == nil {
		if msg := detailMessage(shape.Detail); msg != "" {
			return msg
		}
		if shape.Error != "" {
			return shape.Error
		}
		if shape.Message != "" {
			return shape.Message
		}
	}
	return fmt.Sprintf("request failed with status %d", status)
}

// detailMessage handles the two shapes a "detail" field shows up in: a plain
// string, or a list of validation objects each carrying a msg.
func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
