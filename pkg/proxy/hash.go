package proxy

import (
	"crypto/sha256"
	"encoding/hex"
	"unicode/utf8"

	"github.com/mirroros/gateway/pkg/signing"
)

// RequestHash fingerprints the shape of a prediction request for logging and
// deduplication. Only structural facts are hashed; the goal text itself
// never leaves the request.
func RequestHash(body map[string]any) string {
	safe := map[string]any{
		"goal_length":   utf8.RuneCountInString(stringField(body, "goal")),
		"has_timeframe": stringField(body, "timeframe") != "",
		"has_context":   stringField(body, "context") != "",
		"options":       optionsField(body),
	}

	canonical, err := signing.CanonicalJSON(safe)
	if err != nil {
		// Structure is built from JSON-decoded values, so this only fires
		// on non-finite numbers inside options.
		canonical = []byte("{}")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// SanitizeForLog strips request content down to shape facts safe for
// structured logs.
func SanitizeForLog(body map[string]any) map[string]any {
	return map[string]any{
		"goal_length":      utf8.RuneCountInString(stringField(body, "goal")),
		"has_timeframe":    stringField(body, "timeframe") != "",
		"has_context":      stringField(body, "context") != "",
		"timeframe_length": utf8.RuneCountInString(stringField(body, "timeframe")),
		"context_length":   utf8.RuneCountInString(stringField(body, "context")),
		"options":          optionsField(body),
		"request_hash":     RequestHash(body),
	}
}

func optionsField(body map[string]any) map[string]any {
	if opts, ok := body["options"].(map[string]any); ok {
		return opts
	}
	return map[string]any{}
}
