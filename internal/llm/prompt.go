package llm

import (
	"fmt"
	"strings"

	"github.com/joescharf/crev/internal/normalize"
)

// BuildReviewPrompt constructs the system and user prompts for a code review.
// The answer template follows the dialect the normalizer will parse.
func BuildReviewPrompt(code, language string, dialect normalize.Dialect) (system string, user string) {
	lang := displayLanguage(language)

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert code reviewer specializing in %s. ", lang)

	if dialect == normalize.DialectEmbedded {
		b.WriteString("Analyze the given code and return ONLY a JSON object with these string fields:\n")
		b.WriteString(`- "refactored_code": the full refactored implementation` + "\n")
		b.WriteString(`- "vulnerabilities": vulnerabilities detected in the original code (one line)` + "\n")
		b.WriteString(`- "changes": changes made in the refactored code (one line)` + "\n")
		b.WriteString(`- "time_complexity_original": time complexity/efficiency of the original code (one line)` + "\n")
		b.WriteString(`- "time_complexity_refactored": time complexity/efficiency of the refactored code (one line)` + "\n\n")
		b.WriteString("Return valid JSON only, no markdown fencing or explanation.\n")
	} else {
		b.WriteString("Analyze the given code and provide a response in the following format:\n\n")
		b.WriteString("1. Refactored code (full implementation)\n")
		b.WriteString("2. Vulnerabilities detected in original code (one line)\n")
		b.WriteString("3. Changes made in refactored code (one line)\n")
		b.WriteString("4. Time complexity/efficiency of original code (one line)\n")
		b.WriteString("5. Time complexity/efficiency of refactored code (one line)\n\n")
		b.WriteString("ALWAYS FORMAT YOUR RESPONSE IN MARKDOWN\n")
		fmt.Fprintf(&b, "ALWAYS INCLUDE THE REFACTORED CODE IN A %s CODE BLOCK\n", strings.ToUpper(lang))
		b.WriteString("START EACH NUMBERED ITEM AT THE BEGINNING OF A LINE\n")
	}
	b.WriteString("ENSURE THE REFACTORED CODE INCLUDES DATABASE AND TABLE INITIALIZATION\n")
	system = b.String()

	user = fmt.Sprintf("Please review the following %s code:\n\n%s", lang, normalize.WrapCodeBlock(code, language))
	return
}

// BuildTestPrompt constructs the prompts for suggesting additional test cases.
func BuildTestPrompt(code, tests, language string) (system string, user string) {
	system = fmt.Sprintf("Suggest additional test cases for the following %s code. "+
		"Return the new tests in a single %s code block.", displayLanguage(language), language)

	var sb strings.Builder
	sb.WriteString("Code:\n")
	sb.WriteString(normalize.WrapCodeBlock(code, language))
	if tests != "" {
		sb.WriteString("\n\nExisting Test Cases:\n")
		sb.WriteString(normalize.WrapCodeBlock(tests, language))
	}
	user = sb.String()
	return
}

func displayLanguage(language string) string {
	if language == "" {
		return "Python"
	}
	return strings.ToUpper(language[:1]) + language[1:]
}
