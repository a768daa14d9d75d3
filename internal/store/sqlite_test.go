package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/crev/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *SQLiteStore, name string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Username: name, PasswordHash: "hash", Role: role}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func submitReview(t *testing.T, s *SQLiteStore, author *models.User, code string) *models.Review {
	t.Helper()
	r := &models.Review{AuthorID: author.ID, OriginalCode: code}
	require.NoError(t, s.SubmitReview(context.Background(), r))
	return r
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

// --- Users ---

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := createUser(t, s, "alice", models.RoleDeveloper)
	assert.NotEmpty(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, models.RoleDeveloper, got.Role)
	assert.Equal(t, "hash", got.PasswordHash)

	got, err = s.GetUserByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	createUser(t, s, "bob", models.RoleLead)
	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)
}

func TestCreateUser_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createUser(t, s, "alice", models.RoleDeveloper)

	err := s.CreateUser(ctx, &models.User{Username: "alice", Role: models.RoleLead})
	assert.ErrorIs(t, err, models.ErrUserExists)

	err = s.CreateUser(ctx, &models.User{Username: "  ", Role: models.RoleLead})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	err = s.CreateUser(ctx, &models.User{Username: "carol", Role: "admin"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = s.GetUserByName(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// --- Reviews ---

func TestSubmitReview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice", models.RoleDeveloper)

	r := &models.Review{
		AuthorID:                alice.ID,
		OriginalCode:            "print(1)",
		SuggestedCode:           "print(2)",
		Vulnerabilities:         "none",
		Changes:                 "bumped",
		TimeComplexityOriginal:  "O(1)",
		OriginalVerdict:         models.VerdictCompiled,
		OriginalVerdictMessage:  "Successfully compiled and executed. Output: 1",
		SuggestedVerdict:        models.VerdictNotCompiled,
		SuggestedVerdictMessage: "Error: boom",
		Status:                  models.ReviewStatusApproved, // ignored
	}
	require.NoError(t, s.SubmitReview(ctx, r))
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, models.ReviewStatusPending, r.Status)
	assert.Equal(t, "alice", r.AuthorName)

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.AuthorName)
	assert.Equal(t, "print(2)", got.SuggestedCode)
	assert.Equal(t, "bumped", got.Changes)
	assert.Equal(t, models.VerdictCompiled, got.OriginalVerdict)
	assert.Equal(t, models.VerdictNotCompiled, got.SuggestedVerdict)
	assert.Equal(t, "Error: boom", got.SuggestedVerdictMessage)
	assert.Equal(t, models.ReviewStatusPending, got.Status)
	assert.False(t, got.ExtractionFailed)
}

func TestSubmitReview_ExtractionFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice", models.RoleDeveloper)

	r := &models.Review{AuthorID: alice.ID, OriginalCode: "x", ExtractionFailed: true}
	r.ApplyContent(models.ExtractionFailedContent())
	require.NoError(t, s.SubmitReview(ctx, r))

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.ExtractionFailed)
	assert.Equal(t, models.ExtractionFailedMarker, got.Vulnerabilities)
	assert.Empty(t, got.OriginalVerdictMessage)
}

func TestSubmitReview_UnknownAuthor(t *testing.T) {
	s := newTestStore(t)

	err := s.SubmitReview(context.Background(), &models.Review{AuthorID: "ghost", OriginalCode: "x"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetReview_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetReview(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListReviewsByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice", models.RoleDeveloper)

	r1 := submitReview(t, s, alice, "a")
	r2 := submitReview(t, s, alice, "b")
	require.NoError(t, s.WithinReview(ctx, r2.ID, func(tx ReviewTx) error {
		return tx.SetStatus(ctx, models.ReviewStatusApproved)
	}))

	pending, err := s.ListReviewsByStatus(ctx, models.ReviewStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, r1.ID, pending[0].ID)
	assert.Equal(t, "alice", pending[0].AuthorName)

	approved, err := s.ListReviewsByStatus(ctx, models.ReviewStatusApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, r2.ID, approved[0].ID)

	all, err := s.ListReviewsByStatus(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// --- Votes ---

func TestWithinReview_CastVoteAndTally(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice", models.RoleDeveloper)
	bob := createUser(t, s, "bob", models.RoleDeveloper)
	r := submitReview(t, s, alice, "x")

	err := s.WithinReview(ctx, r.ID, func(tx ReviewTx) error {
		assert.Equal(t, r.ID, tx.Review().ID)
		require.NoError(t, tx.CastVote(ctx, &models.Vote{VoterID: alice.ID, Choice: models.VoteApprove}))
		require.NoError(t, tx.CastVote(ctx, &models.Vote{VoterID: bob.ID, Choice: models.VoteDisapprove}))
		require.NoError(t, tx.CastVote(ctx, &models.Vote{VoterID: bob.ID, Choice: models.VoteApprove}))

		voted, err := tx.HasVoted(ctx, bob.ID)
		require.NoError(t, err)
		assert.True(t, voted)

		tally, err := tx.TallyVotes(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, tally.Approve())
		assert.Equal(t, 1, tally.Disapprove())
		return nil
	})
	require.NoError(t, err)

	tally, err := s.TallyVotes(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, tally.Approve())

	votes, err := s.ListVotes(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, votes, 3)
	assert.Equal(t, r.ID, votes[0].ReviewID)
}

func TestWithinReview_RollbackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice", models.RoleDeveloper)
	r := submitReview(t, s, alice, "x")

	boom := errors.New("boom")
	err := s.WithinReview(ctx, r.ID, func(tx ReviewTx) error {
		require.NoError(t, tx.CastVote(ctx, &models.Vote{VoterID: alice.ID, Choice: models.VoteApprove}))
		require.NoError(t, tx.SetStatus(ctx, models.ReviewStatusApproved))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusPending, got.Status)

	votes, err := s.ListVotes(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestWithinReview_UnknownReview(t *testing.T) {
	s := newTestStore(t)

	called := false
	err := s.WithinReview(context.Background(), "missing", func(ReviewTx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.False(t, called)
}

func TestCastVote_OrphanVoterRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice", models.RoleDeveloper)
	r := submitReview(t, s, alice, "x")

	err := s.WithinReview(ctx, r.ID, func(tx ReviewTx) error {
		return tx.CastVote(ctx, &models.Vote{VoterID: "ghost", Choice: models.VoteApprove})
	})
	assert.ErrorIs(t, err, models.ErrNotFound)

	votes, err := s.ListVotes(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestCastVote_InvalidChoice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice", models.RoleDeveloper)
	r := submitReview(t, s, alice, "x")

	err := s.WithinReview(ctx, r.ID, func(tx ReviewTx) error {
		return tx.CastVote(ctx, &models.Vote{VoterID: alice.ID, Choice: "maybe"})
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestSetStatus_Invalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice", models.RoleDeveloper)
	r := submitReview(t, s, alice, "x")

	err := s.WithinReview(ctx, r.ID, func(tx ReviewTx) error {
		return tx.SetStatus(ctx, "archived")
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestTallyVotes_Empty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice", models.RoleDeveloper)
	r := submitReview(t, s, alice, "x")

	tally, err := s.TallyVotes(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, tally.Approve())
	assert.Equal(t, 0, tally.Disapprove())
}
