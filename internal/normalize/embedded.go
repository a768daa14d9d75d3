package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joescharf/crev/internal/models"
)

// EmbeddedKeys are the fields understood in an embedded JSON answer.
var EmbeddedKeys = []string{
	"refactored_code",
	"vulnerabilities",
	"changes",
	"time_complexity_original",
	"time_complexity_refactored",
}

// ParseEmbedded decodes the JSON object spanning the first "{" to the last "}"
// of raw. Missing keys default to "", unknown keys are ignored, and a known key
// holding a non-string value rejects the whole answer.
func ParseEmbedded(raw string) (models.ReviewContent, error) {
	obj, ok := braceSpan(raw)
	if !ok {
		return Sentinel(), fmt.Errorf("no JSON object in response: %w", models.ErrExtractionFailed)
	}

	var content models.ReviewContent
	if err := json.Unmarshal([]byte(obj), &content); err != nil {
		return Sentinel(), fmt.Errorf("decode JSON object: %v: %w", err, models.ErrExtractionFailed)
	}
	return content, nil
}

// braceSpan returns raw[first '{' : last '}'] inclusive.
func braceSpan(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}
