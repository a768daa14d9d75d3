// Package normalize turns the reasoning service's free-form answer into a
// models.ReviewContent record.
//
// Two answer dialects are understood. The markers dialect is markdown with
// numbered lines ("2." vulnerabilities, "3." changes, "4." original time
// complexity, "5." refactored time complexity) and a fenced code block holding
// the rewrite. The embedded dialect carries a JSON object somewhere in the text.
// The markers dialect never fails; the embedded dialect either yields a fully
// decoded record or the extraction-failed sentinel.
package normalize

import (
	"fmt"
	"strings"

	"github.com/joescharf/crev/internal/models"
)

// Dialect selects how a raw answer is parsed.
type Dialect string

const (
	DialectMarkers  Dialect = "markers"
	DialectEmbedded Dialect = "embedded"
	DialectAuto     Dialect = "auto"
)

// ParseDialect validates a dialect name from configuration.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case DialectMarkers, DialectEmbedded, DialectAuto:
		return d, nil
	case "":
		return DialectMarkers, nil
	default:
		return "", fmt.Errorf("unknown dialect %q: %w", s, models.ErrInvalidInput)
	}
}

// Normalizer parses raw answers for one dialect and code language.
type Normalizer struct {
	Dialect  Dialect
	Language string
}

// New returns a Normalizer. An empty language defaults to python.
func New(dialect Dialect, language string) *Normalizer {
	if language == "" {
		language = "python"
	}
	if dialect == "" {
		dialect = DialectMarkers
	}
	return &Normalizer{Dialect: dialect, Language: language}
}

// Normalize parses raw into a ReviewContent. On failure it returns the
// extraction-failed sentinel together with an error wrapping
// models.ErrExtractionFailed. In auto mode a markers parse that captures
// nothing gives way to the embedded dialect when raw holds a JSON object.
func (n *Normalizer) Normalize(raw string) (models.ReviewContent, error) {
	switch n.resolve(raw) {
	case DialectEmbedded:
		return ParseEmbedded(raw)
	default:
		content := ParseMarkers(raw, n.Language)
		if n.Dialect == DialectAuto && content == (models.ReviewContent{}) {
			if _, ok := braceSpan(raw); ok {
				return ParseEmbedded(raw)
			}
		}
		return content, nil
	}
}

// resolve picks the concrete dialect for raw when configured as auto.
func (n *Normalizer) resolve(raw string) Dialect {
	if n.Dialect != DialectAuto {
		return n.Dialect
	}
	if looksLikeMarkers(raw, n.Language) {
		return DialectMarkers
	}
	return DialectEmbedded
}

// Sentinel returns the extraction-failed record.
func Sentinel() models.ReviewContent {
	return models.ExtractionFailedContent()
}
