// Package lifecycle applies vote-driven and lead-driven status transitions to
// reviews.
//
//	pending ──2 approve──▶ approved ──lead finalize──▶ finally_approved
//	   │
//	   └──2 disapprove──▶ rejected
//
// The status is re-derived from the full vote tally on every vote, with the
// disapprove rule checked first.
package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/store"
)

// Quorum is the number of same-choice votes that moves a review out of pending.
const Quorum = 2

// Evaluate derives the status implied by tally. When no rule fires the
// current status is returned unchanged.
func Evaluate(tally models.Tally, current models.ReviewStatus) models.ReviewStatus {
	switch {
	case tally.Disapprove() >= Quorum:
		return models.ReviewStatusRejected
	case tally.Approve() >= Quorum:
		return models.ReviewStatusApproved
	default:
		return current
	}
}

// Units runs atomic per-review work.
type Units interface {
	WithinReview(ctx context.Context, reviewID string, fn func(tx store.ReviewTx) error) error
}

// Engine enforces the review state machine.
type Engine struct {
	units       Units
	uniqueVotes bool
	logger      *zap.SugaredLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithUniqueVotes rejects a second vote from the same voter on a review.
func WithUniqueVotes(unique bool) Option {
	return func(e *Engine) { e.uniqueVotes = unique }
}

// WithLogger sets the engine's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine.
func New(units Units, opts ...Option) *Engine {
	e := &Engine{units: units, logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CastVote appends a developer's vote and re-evaluates the review's status in
// the same atomic unit. It returns the review as committed.
func (e *Engine) CastVote(ctx context.Context, sess models.Session, reviewID string, choice models.VoteChoice) (*models.Review, error) {
	if !sess.Authenticated() {
		return nil, fmt.Errorf("vote: %w", models.ErrUnauthenticated)
	}
	if !sess.HasRole(models.RoleDeveloper) {
		return nil, fmt.Errorf("vote as %s: %w", sess.User.Role, models.ErrUnauthorized)
	}
	if !choice.Valid() {
		return nil, fmt.Errorf("vote choice %q: %w", choice, models.ErrInvalidInput)
	}

	var out models.Review
	err := e.units.WithinReview(ctx, reviewID, func(tx store.ReviewTx) error {
		rev := tx.Review()
		if rev.Status != models.ReviewStatusPending {
			return fmt.Errorf("vote on %s review %s: %w", rev.Status, rev.ID, models.ErrInvalidTransition)
		}

		if e.uniqueVotes {
			voted, err := tx.HasVoted(ctx, sess.User.ID)
			if err != nil {
				return err
			}
			if voted {
				return fmt.Errorf("review %s: %w", rev.ID, models.ErrDuplicateVote)
			}
		}

		if err := tx.CastVote(ctx, &models.Vote{VoterID: sess.User.ID, Choice: choice}); err != nil {
			return err
		}
		if err := e.apply(ctx, tx); err != nil {
			return err
		}
		out = *tx.Review()
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Infow("vote recorded",
		"review_id", reviewID,
		"voter_id", sess.User.ID,
		"choice", choice,
		"status", out.Status,
	)
	return &out, nil
}

// Finalize moves an approved review to finally approved. Only leads may
// finalize; any other starting status is an invalid transition and leaves
// the review untouched.
func (e *Engine) Finalize(ctx context.Context, sess models.Session, reviewID string) (*models.Review, error) {
	if !sess.Authenticated() {
		return nil, fmt.Errorf("finalize: %w", models.ErrUnauthenticated)
	}
	if !sess.HasRole(models.RoleLead) {
		return nil, fmt.Errorf("finalize as %s: %w", sess.User.Role, models.ErrUnauthorized)
	}

	var out models.Review
	err := e.units.WithinReview(ctx, reviewID, func(tx store.ReviewTx) error {
		rev := tx.Review()
		if rev.Status != models.ReviewStatusApproved {
			return fmt.Errorf("finalize %s review %s: %w", rev.Status, rev.ID, models.ErrInvalidTransition)
		}
		if err := tx.SetStatus(ctx, models.ReviewStatusFinallyApproved); err != nil {
			return err
		}
		out = *tx.Review()
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Infow("review finalized", "review_id", reviewID, "lead_id", sess.User.ID)
	return &out, nil
}

// Recompute re-derives a pending review's status from its votes. Running it
// again without new votes yields the same status.
func (e *Engine) Recompute(ctx context.Context, reviewID string) (*models.Review, error) {
	var out models.Review
	err := e.units.WithinReview(ctx, reviewID, func(tx store.ReviewTx) error {
		if err := e.apply(ctx, tx); err != nil {
			return err
		}
		out = *tx.Review()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// apply tallies all votes and moves a pending review when a rule fires.
func (e *Engine) apply(ctx context.Context, tx store.ReviewTx) error {
	rev := tx.Review()
	if rev.Status != models.ReviewStatusPending {
		return nil
	}
	tally, err := tx.TallyVotes(ctx)
	if err != nil {
		return err
	}
	next := Evaluate(tally, rev.Status)
	if next == rev.Status {
		return nil
	}
	e.logger.Debugw("status transition",
		"review_id", rev.ID,
		"from", rev.Status,
		"to", next,
		"approve", tally.Approve(),
		"disapprove", tally.Disapprove(),
	)
	return tx.SetStatus(ctx, next)
}
