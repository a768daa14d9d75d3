package sandbox

import "github.com/joescharf/crev/internal/models"

// Classify maps an execution result to a verdict. It is total and pure:
// any error text, whether from the code under test or the sandbox itself,
// means the code did not compile.
func Classify(r Result) models.Verdict {
	if r.ErrorText != "" {
		return models.Verdict{
			Status:  models.VerdictNotCompiled,
			Message: "Error: " + r.ErrorText,
		}
	}
	return models.Verdict{
		Status:  models.VerdictCompiled,
		Message: "Successfully compiled and executed. Output: " + r.Stdout,
	}
}
