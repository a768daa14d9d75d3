package store

import (
	"context"

	"github.com/joescharf/crev/internal/models"
)

// Store defines the persistence interface for crev.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByName(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)

	// Reviews
	SubmitReview(ctx context.Context, r *models.Review) error
	GetReview(ctx context.Context, id string) (*models.Review, error)
	ListReviewsByStatus(ctx context.Context, status models.ReviewStatus) ([]*models.Review, error)

	// Votes
	ListVotes(ctx context.Context, reviewID string) ([]*models.Vote, error)
	TallyVotes(ctx context.Context, reviewID string) (models.Tally, error)

	// WithinReview runs fn as one atomic unit against a single review. Vote
	// appends and status changes only happen through the ReviewTx, so a
	// committed status always matches the committed votes.
	WithinReview(ctx context.Context, reviewID string, fn func(tx ReviewTx) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ReviewTx is the mutation surface of one review inside WithinReview.
type ReviewTx interface {
	// Review is the review as read at the start of the unit.
	Review() *models.Review
	CastVote(ctx context.Context, v *models.Vote) error
	HasVoted(ctx context.Context, voterID string) (bool, error)
	TallyVotes(ctx context.Context) (models.Tally, error)
	SetStatus(ctx context.Context, status models.ReviewStatus) error
}
