package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joescharf/crev/internal/models"
)

func TestClassify(t *testing.T) {
	got := Classify(Result{ErrorText: "boom", Stdout: "x"})
	assert.Equal(t, models.Verdict{Status: models.VerdictNotCompiled, Message: "Error: boom"}, got)

	got = Classify(Result{Stdout: "ok"})
	assert.Equal(t, models.Verdict{
		Status:  models.VerdictCompiled,
		Message: "Successfully compiled and executed. Output: ok",
	}, got)
}

func TestClassify_StderrAloneIsNotAnError(t *testing.T) {
	got := Classify(Result{Stdout: "", Stderr: "DeprecationWarning"})
	assert.Equal(t, models.VerdictCompiled, got.Status)
}
