package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/crev/internal/models"
)

const markersAnswer = "## Review\n\n" +
	"1. Refactored code\n\n" +
	"```python\nimport sqlite3\n\ndef get_user(name):\n    return name\n```\n\n" +
	"2. SQL injection through string formatting\n" +
	"3.   Switched to parameterized queries  \n" +
	"4. O(n)\n" +
	"5. O(log n) with an index\n"

func TestParseMarkers(t *testing.T) {
	got := ParseMarkers(markersAnswer, "python")

	assert.Equal(t, "import sqlite3\n\ndef get_user(name):\n    return name", got.SuggestedCode)
	assert.Equal(t, "SQL injection through string formatting", got.Vulnerabilities)
	assert.Equal(t, "Switched to parameterized queries", got.Changes)
	assert.Equal(t, "O(n)", got.TimeComplexityOriginal)
	assert.Equal(t, "O(log n) with an index", got.TimeComplexityRefactored)
}

func TestParseMarkers_MissingPieces(t *testing.T) {
	got := ParseMarkers("no structure here at all", "python")
	assert.Equal(t, models.ReviewContent{}, got)

	got = ParseMarkers("2. only vulnerabilities", "python")
	assert.Equal(t, "only vulnerabilities", got.Vulnerabilities)
	assert.Empty(t, got.SuggestedCode)
	assert.Empty(t, got.Changes)
}

func TestParseMarkers_IgnoresMarkersInsideFence(t *testing.T) {
	raw := "```python\n2. = 3\nx = 1\n```\n2. real summary\n"
	got := ParseMarkers(raw, "python")
	assert.Equal(t, "real summary", got.Vulnerabilities)
	assert.Equal(t, "2. = 3\nx = 1", got.SuggestedCode)
}

func TestParseMarkers_LastLineWinsAndPrefixStrippedOnce(t *testing.T) {
	raw := "2. 4. weak hashing\n4. O(1)\n4. O(n^2)\n"
	got := ParseMarkers(raw, "python")
	assert.Equal(t, "4. weak hashing", got.Vulnerabilities)
	assert.Equal(t, "O(n^2)", got.TimeComplexityOriginal)
}

func TestParseMarkers_EchoedTemplateOverwritten(t *testing.T) {
	raw := "2. Vulnerabilities detected in original code (one line)\n2. SQL injection\n"
	got := ParseMarkers(raw, "python")
	assert.Equal(t, "SQL injection", got.Vulnerabilities)
}

func TestParseMarkers_LeadingWhitespace(t *testing.T) {
	got := ParseMarkers("   3. indented change\n", "python")
	assert.Equal(t, "indented change", got.Changes)
}

func TestParseMarkers_OtherLanguageBlockIgnored(t *testing.T) {
	raw := "```go\nfmt.Println(1)\n```\n"
	assert.Empty(t, ParseMarkers(raw, "python").SuggestedCode)
	assert.Equal(t, "fmt.Println(1)", ParseMarkers(raw, "go").SuggestedCode)
}

func TestExtractCodeBlock_RoundTrip(t *testing.T) {
	for _, code := range []string{
		"print(2)",
		"def f():\n    return {'a': 1}\n",
		"",
		"  leading and trailing  ",
	} {
		extracted := ExtractCodeBlock("prefix\n"+WrapCodeBlock(code, "python")+"\nsuffix", "python")
		require.Equal(t, code, extracted)
		assert.Equal(t, extracted, ExtractCodeBlock(WrapCodeBlock(extracted, "python"), "python"))
	}
}

func TestExtractCodeBlock_FirstBlockWins(t *testing.T) {
	raw := "```python\nfirst\n```\ntext\n```python\nsecond\n```"
	assert.Equal(t, "first", ExtractCodeBlock(raw, "python"))
}

func TestParseEmbedded(t *testing.T) {
	raw := `Here is the result:
{"refactored_code": "print(2)", "vulnerabilities": "none", "changes": "renamed",
 "time_complexity_original": "O(1)", "extra": 42}
Thanks.`

	got, err := ParseEmbedded(raw)
	require.NoError(t, err)
	assert.Equal(t, "print(2)", got.SuggestedCode)
	assert.Equal(t, "none", got.Vulnerabilities)
	assert.Equal(t, "renamed", got.Changes)
	assert.Equal(t, "O(1)", got.TimeComplexityOriginal)
	assert.Empty(t, got.TimeComplexityRefactored, "missing keys default to empty")
}

func TestParseEmbedded_FailuresReturnFullSentinel(t *testing.T) {
	cases := map[string]string{
		"no braces":        "I could not review this code.",
		"only open brace":  "value { unterminated",
		"reversed braces":  "} backwards {",
		"invalid json":     "{refactored_code: print(2)}",
		"non-string value": `{"refactored_code": ["a", "b"]}`,
		"two objects":      `{"changes": "a"} and {"changes": "b"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ParseEmbedded(raw)
			require.ErrorIs(t, err, models.ErrExtractionFailed)
			assert.Equal(t, models.ExtractionFailedContent(), got)
			assert.Equal(t, models.ExtractionFailedMarker, got.SuggestedCode)
			assert.Equal(t, models.ExtractionFailedMarker, got.TimeComplexityRefactored)
		})
	}
}

func TestNormalizer_Dialects(t *testing.T) {
	t.Run("markers never fails", func(t *testing.T) {
		got, err := New(DialectMarkers, "python").Normalize("garbage")
		require.NoError(t, err)
		assert.Equal(t, models.ReviewContent{}, got)
	})

	t.Run("embedded fails on garbage", func(t *testing.T) {
		got, err := New(DialectEmbedded, "python").Normalize("garbage")
		require.ErrorIs(t, err, models.ErrExtractionFailed)
		assert.Equal(t, Sentinel(), got)
	})

	t.Run("auto prefers markers when present", func(t *testing.T) {
		got, err := New(DialectAuto, "python").Normalize(markersAnswer)
		require.NoError(t, err)
		assert.Equal(t, "O(n)", got.TimeComplexityOriginal)
	})

	t.Run("auto treats fenced json as embedded", func(t *testing.T) {
		raw := "Here you go:\n```json\n{\"refactored_code\": \"print(2)\", \"vulnerabilities\": \"none\", " +
			"\"changes\": \"c\", \"time_complexity_original\": \"O(1)\", \"time_complexity_refactored\": \"O(1)\"}\n```"
		got, err := New(DialectAuto, "python").Normalize(raw)
		require.NoError(t, err)
		assert.Equal(t, "print(2)", got.SuggestedCode)
		assert.Equal(t, "none", got.Vulnerabilities)
		assert.Equal(t, "c", got.Changes)
	})

	t.Run("auto ignores marker lines inside other fences", func(t *testing.T) {
		assert.False(t, looksLikeMarkers("```text\n2. not a marker\n```\n{}", "python"))
		assert.True(t, looksLikeMarkers("```python\nprint(1)\n```", "python"))
	})

	t.Run("auto uses embedded when markers capture nothing", func(t *testing.T) {
		raw := "```python\n```\n{\"changes\": \"c\"}"
		got, err := New(DialectAuto, "python").Normalize(raw)
		require.NoError(t, err)
		assert.Equal(t, "c", got.Changes)
	})

	t.Run("auto falls back to embedded", func(t *testing.T) {
		got, err := New(DialectAuto, "python").Normalize(`{"changes": "c"}`)
		require.NoError(t, err)
		assert.Equal(t, "c", got.Changes)
	})
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("Embedded")
	require.NoError(t, err)
	assert.Equal(t, DialectEmbedded, d)

	d, err = ParseDialect("")
	require.NoError(t, err)
	assert.Equal(t, DialectMarkers, d)

	_, err = ParseDialect("xml")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
