package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/sandbox"
)

// addUser provisions a user through the CLI path with password "<name>-pw".
func addUser(t *testing.T, name string, role models.Role) *models.User {
	t.Helper()
	userRole = string(role)
	userSecret = name + "-pw"
	t.Cleanup(func() { userRole, userSecret = string(models.RoleDeveloper), "" })
	require.NoError(t, userAddRun(name))

	s, err := getStore()
	require.NoError(t, err)
	u, err := s.GetUserByName(context.Background(), name)
	require.NoError(t, err)
	return u
}

// actAs configures the CLI identity.
func actAs(name string) {
	viper.Set("auth.username", name)
	viper.Set("auth.password", name+"-pw")
}

// seedReview stores a pending review without going through the pipeline.
func seedReview(t *testing.T, author *models.User, code string) *models.Review {
	t.Helper()
	s, err := getStore()
	require.NoError(t, err)
	r := &models.Review{
		AuthorID:         author.ID,
		OriginalCode:     code,
		SuggestedCode:    code,
		OriginalVerdict:  models.VerdictCompiled,
		SuggestedVerdict: models.VerdictCompiled,
	}
	require.NoError(t, s.SubmitReview(context.Background(), r))
	return r
}

func reviewStatusOf(t *testing.T, id string) models.ReviewStatus {
	t.Helper()
	s, err := getStore()
	require.NoError(t, err)
	r, err := s.GetReview(context.Background(), id)
	require.NoError(t, err)
	return r.Status
}

func TestUserAddAndList(t *testing.T) {
	testEnv(t)
	out := captureOutput(t)

	addUser(t, "alice", models.RoleDeveloper)
	addUser(t, "lena", models.RoleLead)
	assert.Contains(t, out.String(), "Created developer")

	out.Reset()
	require.NoError(t, userListRun())
	assert.Contains(t, out.String(), "alice")
	assert.Contains(t, out.String(), "lena")
	assert.Contains(t, out.String(), "lead")
}

func TestUserAdd_SecretFromStdin(t *testing.T) {
	testEnv(t)
	captureOutput(t)

	orig := secretReader
	secretReader = strings.NewReader("s3cret\n")
	t.Cleanup(func() { secretReader = orig })

	userRole = string(models.RoleDeveloper)
	userSecret = ""
	require.NoError(t, userAddRun("alice"))

	svc, err := newService()
	require.NoError(t, err)
	sess, err := svc.Login(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.True(t, sess.Authenticated())
}

func TestUserAdd_Errors(t *testing.T) {
	testEnv(t)
	captureOutput(t)

	userRole = "admin"
	err := userAddRun("alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role")

	addUser(t, "alice", models.RoleDeveloper)
	userRole = string(models.RoleDeveloper)
	userSecret = "other"
	err = userAddRun("alice")
	assert.True(t, errors.Is(err, models.ErrUserExists))
}

func TestUserList_Empty(t *testing.T) {
	testEnv(t)
	out := captureOutput(t)

	require.NoError(t, userListRun())
	assert.Contains(t, out.String(), "No users found")
}

func TestCurrentSession(t *testing.T) {
	testEnv(t)
	captureOutput(t)
	addUser(t, "alice", models.RoleDeveloper)

	svc, err := newService()
	require.NoError(t, err)
	ctx := context.Background()

	sess, err := currentSession(ctx, svc)
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())

	actAs("alice")
	sess, err = currentSession(ctx, svc)
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.User.Username)

	viper.Set("auth.password", "wrong")
	_, err = currentSession(ctx, svc)
	assert.True(t, errors.Is(err, models.ErrUnauthenticated))
}

func TestReviewSubmit_NoReasoningService(t *testing.T) {
	testEnv(t)
	captureOutput(t)
	addUser(t, "alice", models.RoleDeveloper)
	actAs("alice")

	orig := codeReader
	codeReader = strings.NewReader("print(1)\n")
	t.Cleanup(func() { codeReader = orig })

	err := reviewSubmitRun(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrReasoningUnavailable))

	s, err := getStore()
	require.NoError(t, err)
	all, err := s.ListReviewsByStatus(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestReviewSubmit_EmptyAndDryRun(t *testing.T) {
	testEnv(t)
	out := captureOutput(t)

	orig := codeReader
	t.Cleanup(func() { codeReader = orig })

	codeReader = strings.NewReader("  \n")
	err := reviewSubmitRun(context.Background(), "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no code")

	dryRun = true
	ui.DryRun = true
	t.Cleanup(func() { dryRun = false })
	codeReader = strings.NewReader("print(1)")
	require.NoError(t, reviewSubmitRun(context.Background(), "-"))
	assert.Contains(t, out.String(), "Would submit 8 bytes")
}

func TestReviewList(t *testing.T) {
	testEnv(t)
	out := captureOutput(t)
	alice := addUser(t, "alice", models.RoleDeveloper)

	reviewStatus = ""
	t.Cleanup(func() { reviewStatus = "" })
	require.NoError(t, reviewListRun())
	assert.Contains(t, out.String(), "No reviews found")

	r := seedReview(t, alice, "print('hello')")
	out.Reset()
	require.NoError(t, reviewListRun())
	assert.Contains(t, out.String(), r.ID[:12])
	assert.Contains(t, out.String(), "alice")

	reviewStatus = string(models.ReviewStatusApproved)
	out.Reset()
	require.NoError(t, reviewListRun())
	assert.Contains(t, out.String(), "No reviews found")

	reviewStatus = "bogus"
	err := reviewListRun()
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestReviewShow_ByPrefix(t *testing.T) {
	testEnv(t)
	out := captureOutput(t)
	alice := addUser(t, "alice", models.RoleDeveloper)
	r := seedReview(t, alice, "print('hello')")

	require.NoError(t, reviewShowRun(strings.ToLower(r.ID[:10])))
	assert.Contains(t, out.String(), r.ID)
	assert.Contains(t, out.String(), "print('hello')")
	assert.Contains(t, out.String(), "0 approve, 0 disapprove")

	err := reviewShowRun("ZZZZZZZZ")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestReviewVoteAndFinalize(t *testing.T) {
	testEnv(t)
	captureOutput(t)
	alice := addUser(t, "alice", models.RoleDeveloper)
	addUser(t, "bob", models.RoleDeveloper)
	addUser(t, "carol", models.RoleDeveloper)
	addUser(t, "lena", models.RoleLead)
	r := seedReview(t, alice, "print(1)")

	actAs("lena")
	err := reviewFinalizeRun(r.ID)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))

	actAs("bob")
	require.NoError(t, reviewVoteRun(r.ID, "approve"))
	assert.Equal(t, models.ReviewStatusPending, reviewStatusOf(t, r.ID))

	actAs("carol")
	require.NoError(t, reviewVoteRun(r.ID, "APPROVE"))
	assert.Equal(t, models.ReviewStatusApproved, reviewStatusOf(t, r.ID))

	err = reviewVoteRun(r.ID, "disapprove")
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))

	err = reviewFinalizeRun(r.ID)
	assert.True(t, errors.Is(err, models.ErrUnauthorized))

	actAs("lena")
	require.NoError(t, reviewFinalizeRun(r.ID))
	assert.Equal(t, models.ReviewStatusFinallyApproved, reviewStatusOf(t, r.ID))
}

func TestReviewVote_Errors(t *testing.T) {
	testEnv(t)
	captureOutput(t)
	alice := addUser(t, "alice", models.RoleDeveloper)
	addUser(t, "lena", models.RoleLead)
	r := seedReview(t, alice, "print(1)")

	err := reviewVoteRun(r.ID, "maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid vote")

	// No identity configured.
	err = reviewVoteRun(r.ID, "approve")
	assert.True(t, errors.Is(err, models.ErrUnauthenticated))

	actAs("lena")
	err = reviewVoteRun(r.ID, "approve")
	assert.True(t, errors.Is(err, models.ErrUnauthorized))
}

func TestReviewRecompute(t *testing.T) {
	testEnv(t)
	out := captureOutput(t)
	alice := addUser(t, "alice", models.RoleDeveloper)
	r := seedReview(t, alice, "print(1)")

	require.NoError(t, reviewRecomputeRun(r.ID))
	assert.Contains(t, out.String(), "pending")
	assert.Equal(t, models.ReviewStatusPending, reviewStatusOf(t, r.ID))
}

func TestTestsSuggest_NoReasoningService(t *testing.T) {
	testEnv(t)
	captureOutput(t)
	addUser(t, "alice", models.RoleDeveloper)
	actAs("alice")

	orig := codeReader
	codeReader = strings.NewReader("def add(a, b):\n    return a + b\n")
	t.Cleanup(func() { codeReader = orig })

	err := testsSuggestRun("")
	assert.True(t, errors.Is(err, models.ErrReasoningUnavailable))
}

func TestNewExecutor(t *testing.T) {
	testEnv(t)

	e, err := newExecutor()
	require.NoError(t, err)
	assert.IsType(t, &sandbox.LocalExecutor{}, e)

	viper.Set("sandbox.mode", "http")
	_, err = newExecutor()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sandbox.url")

	viper.Set("sandbox.url", "http://sandbox.local/")
	e, err = newExecutor()
	require.NoError(t, err)
	require.IsType(t, &sandbox.HTTPExecutor{}, e)
	assert.Equal(t, "http://sandbox.local", e.(*sandbox.HTTPExecutor).BaseURL)

	viper.Set("sandbox.mode", "docker")
	_, err = newExecutor()
	assert.Error(t, err)
}

func TestNewLLMClient(t *testing.T) {
	testEnv(t)
	assert.Nil(t, newLLMClient())

	viper.Set("anthropic.api_key", "sk-test")
	assert.NotNil(t, newLLMClient())
}

func TestNewService_InvalidDialect(t *testing.T) {
	testEnv(t)
	viper.Set("review.dialect", "xml")

	_, err := newService()
	require.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Contains(t, err.Error(), "review.dialect")
}
