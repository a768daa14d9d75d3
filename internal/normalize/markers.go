package normalize

import (
	"regexp"
	"strings"

	"github.com/joescharf/crev/internal/models"
)

// slot names a capture position in the markers grammar.
type slot int

const (
	slotNone slot = iota
	slotVulnerabilities
	slotChanges
	slotComplexityOriginal
	slotComplexityRefactored
)

var markerSlots = []struct {
	prefix string
	slot   slot
}{
	{"2.", slotVulnerabilities},
	{"3.", slotChanges},
	{"4.", slotComplexityOriginal},
	{"5.", slotComplexityRefactored},
}

// scanState is the line scanner's position relative to code fences.
type scanState int

const (
	stateOutside scanState = iota
	stateInFence
)

const fence = "```"

// ParseMarkers extracts the markers dialect from raw. It never fails: absent
// markers and a missing code block produce empty fields.
//
// Lines are scanned with a two-state machine. Marker lines are only
// recognized outside fenced blocks, leading whitespace is ignored, and each
// slot keeps the last line that matched it, so an echoed prompt template is
// overwritten by the answer that follows. The marker prefix is stripped once,
// so "2. 4. weak hashing" captures "4. weak hashing" as the vulnerabilities
// summary.
func ParseMarkers(raw, language string) models.ReviewContent {
	captured := make(map[slot]string, len(markerSlots))
	state := stateOutside

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, fence) {
			if state == stateOutside {
				state = stateInFence
			} else {
				state = stateOutside
			}
			continue
		}
		if state == stateInFence {
			continue
		}

		s, value := matchMarker(trimmed)
		if s == slotNone {
			continue
		}
		captured[s] = value
	}

	return models.ReviewContent{
		SuggestedCode:            ExtractCodeBlock(raw, language),
		Vulnerabilities:          captured[slotVulnerabilities],
		Changes:                  captured[slotChanges],
		TimeComplexityOriginal:   captured[slotComplexityOriginal],
		TimeComplexityRefactored: captured[slotComplexityRefactored],
	}
}

// matchMarker returns the slot a line opens and the trimmed remainder.
func matchMarker(line string) (slot, string) {
	for _, m := range markerSlots {
		if strings.HasPrefix(line, m.prefix) {
			return m.slot, strings.TrimSpace(strings.TrimPrefix(line, m.prefix))
		}
	}
	return slotNone, ""
}

// looksLikeMarkers reports whether raw carries a fenced block tagged with
// language or a marker line outside any fence. Fences with another tag, such
// as a json block, are not evidence of the markers dialect.
func looksLikeMarkers(raw, language string) bool {
	state := stateOutside
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, fence) {
			if state == stateOutside {
				if strings.TrimSpace(strings.TrimPrefix(trimmed, fence)) == language {
					return true
				}
				state = stateInFence
			} else {
				state = stateOutside
			}
			continue
		}
		if state == stateOutside {
			if s, _ := matchMarker(trimmed); s != slotNone {
				return true
			}
		}
	}
	return false
}

// ExtractCodeBlock returns the interior of the first fenced block tagged with
// language, or "" when there is none. The interior is returned verbatim.
func ExtractCodeBlock(raw, language string) string {
	m := codeBlockPattern(language).FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return m[1]
}

// WrapCodeBlock fences code with the given language tag.
func WrapCodeBlock(code, language string) string {
	return fence + language + "\n" + code + "\n" + fence
}

func codeBlockPattern(language string) *regexp.Regexp {
	return regexp.MustCompile("(?s)" + regexp.QuoteMeta(fence+language) + `\n(.*?)\n` + regexp.QuoteMeta(fence))
}
