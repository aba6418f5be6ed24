package proxy

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Validation bounds for prediction request fields.
const (
	minGoalLen      = 10
	maxGoalLen      = 5000
	maxTimeframeLen = 100
	maxContextLen   = 1000
)

// ValidationError carries the user-facing message for a rejected request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// Validate checks a parsed prediction request body. The body is the decoded
// JSON object; a non-object body must be rejected by the caller before
// decoding reaches this point.
func Validate(body map[string]any) error {
	if body == nil {
		return invalid("Request body must be a JSON object")
	}

	goal := strings.TrimSpace(stringField(body, "goal"))
	if goal == "" {
		return invalid("Goal description is required")
	}
	if utf8.RuneCountInString(goal) < minGoalLen {
		return invalid("Goal description must be at least 10 characters")
	}
	if utf8.RuneCountInString(goal) > maxGoalLen {
		return invalid("Goal description must be less than 5000 characters")
	}

	if raw, ok := body["options"]; ok && raw != nil {
		if _, isObj := raw.(map[string]any); !isObj {
			return invalid("Options must be a JSON object")
		}
	}

	if tf := stringField(body, "timeframe"); utf8.RuneCountInString(tf) > maxTimeframeLen {
		return invalid("Timeframe must be less than 100 characters")
	}

	if c := stringField(body, "context"); utf8.RuneCountInString(c) > maxContextLen {
		return invalid("Context must be less than 1000 characters")
	}

	return nil
}

// stringField returns the named field NFC-normalized, or "" when absent or
// not a string. Composed and decomposed spellings of the same text must
// measure and hash identically.
func stringField(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return norm.NFC.String(s)
}
