// Package review is the caller-facing surface of crev: submitting code,
// listing and inspecting reviews, voting, finalizing and suggesting tests.
// Every mutating call takes the acting models.Session explicitly.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/crev/internal/auth"
	"github.com/joescharf/crev/internal/lifecycle"
	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/normalize"
	"github.com/joescharf/crev/internal/pipeline"
	"github.com/joescharf/crev/internal/sandbox"
	"github.com/joescharf/crev/internal/store"
)

// Config holds review service configuration.
type Config struct {
	Language         string
	Dialect          normalize.Dialect
	UniqueVotes      bool
	Placeholder      string
	ReasoningTimeout time.Duration
	SandboxTimeout   time.Duration
}

// DefaultConfig returns the review config, reading from viper when available.
// An unknown review.dialect is an error rather than a silent default.
func DefaultConfig() (Config, error) {
	language := viper.GetString("review.language")
	if language == "" {
		language = "python"
	}

	dialect, err := normalize.ParseDialect(viper.GetString("review.dialect"))
	if err != nil {
		return Config{}, fmt.Errorf("review.dialect: %w", err)
	}

	placeholder := viper.GetString("sandbox.input_placeholder")
	if placeholder == "" {
		placeholder = sandbox.DefaultPlaceholder
	}

	return Config{
		Language:         language,
		Dialect:          dialect,
		UniqueVotes:      viper.GetBool("review.unique_votes"),
		Placeholder:      placeholder,
		ReasoningTimeout: viper.GetDuration("reasoning.timeout"),
		SandboxTimeout:   viper.GetDuration("sandbox.timeout"),
	}, nil
}

// TestSuggester proposes extra test cases for code.
type TestSuggester interface {
	SuggestTests(ctx context.Context, code, tests, language string) (string, error)
}

// Detail is a review together with its votes.
type Detail struct {
	*models.Review
	Approve    int            `json:"approve"`
	Disapprove int            `json:"disapprove"`
	Votes      []*models.Vote `json:"votes"`
}

// TestSuggestion is the outcome of SuggestTests.
type TestSuggestion struct {
	Tests   string         `json:"tests"`
	Verdict models.Verdict `json:"verdict"`
}

// Service wires the pipeline, store, lifecycle engine and authenticator.
type Service struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	tests    TestSuggester
	engine   *lifecycle.Engine
	auth     *auth.Authenticator
	cfg      Config
	logger   *zap.SugaredLogger
}

// NewService creates a Service. The pipeline and suggester may be nil when
// no reasoning service is configured; submissions then fail with
// ErrReasoningUnavailable while voting and listing keep working.
func NewService(s store.Store, p *pipeline.Pipeline, tests TestSuggester, cfg Config, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Language == "" {
		cfg.Language = "python"
	}
	return &Service{
		store:    s,
		pipeline: p,
		tests:    tests,
		engine:   lifecycle.New(s, lifecycle.WithUniqueVotes(cfg.UniqueVotes), lifecycle.WithLogger(logger)),
		auth:     auth.New(s),
		cfg:      cfg,
		logger:   logger,
	}
}

// NewPipeline builds the review pipeline for cfg.
func NewPipeline(r pipeline.Reasoner, e sandbox.Executor, cfg Config, logger *zap.SugaredLogger) *pipeline.Pipeline {
	return pipeline.New(r, e, normalize.New(cfg.Dialect, cfg.Language), pipeline.Config{
		Placeholder:      cfg.Placeholder,
		ReasoningTimeout: cfg.ReasoningTimeout,
		SandboxTimeout:   cfg.SandboxTimeout,
	}, logger)
}

// --- Sessions ---

// Login verifies credentials and returns an authenticated session.
func (s *Service) Login(ctx context.Context, username, secret string) (models.Session, error) {
	u, err := s.auth.Verify(ctx, username, secret)
	if err != nil {
		return models.Anonymous(), err
	}
	return models.Session{User: u}, nil
}

// Logout ends a session.
func (s *Service) Logout(models.Session) models.Session {
	return models.Anonymous()
}

// --- Users ---

// CreateUser provisions an account with a hashed secret.
func (s *Service) CreateUser(ctx context.Context, username, secret string, role models.Role) (*models.User, error) {
	hash, err := auth.HashSecret(secret)
	if err != nil {
		return nil, err
	}
	u := &models.User{Username: strings.TrimSpace(username), PasswordHash: hash, Role: role}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Infow("user created", "user_id", u.ID, "username", u.Username, "role", u.Role)
	return u, nil
}

// ListUsers returns every provisioned user.
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.store.ListUsers(ctx)
}

// --- Reviews ---

// SubmitForReview runs the pipeline on code and stores the resulting review
// as pending. Nothing is stored when the reasoning or sandbox service fails.
func (s *Service) SubmitForReview(ctx context.Context, sess models.Session, code string) (*models.Review, error) {
	if !sess.Authenticated() {
		return nil, fmt.Errorf("submit: %w", models.ErrUnauthenticated)
	}
	if s.pipeline == nil {
		return nil, fmt.Errorf("no reasoning service configured: %w", models.ErrReasoningUnavailable)
	}

	rev, err := s.pipeline.Review(ctx, code)
	if err != nil {
		return nil, err
	}
	rev.AuthorID = sess.User.ID
	if err := s.store.SubmitReview(ctx, rev); err != nil {
		return nil, err
	}

	s.logger.Infow("review submitted",
		"review_id", rev.ID,
		"author_id", rev.AuthorID,
		"extraction_failed", rev.ExtractionFailed,
	)
	return rev, nil
}

// ListPending returns reviews awaiting peer votes.
func (s *Service) ListPending(ctx context.Context) ([]*models.Review, error) {
	return s.store.ListReviewsByStatus(ctx, models.ReviewStatusPending)
}

// ListApproved returns reviews awaiting lead sign-off.
func (s *Service) ListApproved(ctx context.Context) ([]*models.Review, error) {
	return s.store.ListReviewsByStatus(ctx, models.ReviewStatusApproved)
}

// ListReviews returns reviews in status, or all reviews when status is empty.
func (s *Service) ListReviews(ctx context.Context, status models.ReviewStatus) ([]*models.Review, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("status %q: %w", status, models.ErrInvalidInput)
	}
	return s.store.ListReviewsByStatus(ctx, status)
}

// GetReview returns a review with its votes. id may be a unique prefix.
func (s *Service) GetReview(ctx context.Context, id string) (*Detail, error) {
	rev, err := s.findReview(ctx, id)
	if err != nil {
		return nil, err
	}
	votes, err := s.store.ListVotes(ctx, rev.ID)
	if err != nil {
		return nil, err
	}
	d := &Detail{Review: rev, Votes: votes}
	for _, v := range votes {
		switch v.Choice {
		case models.VoteApprove:
			d.Approve++
		case models.VoteDisapprove:
			d.Disapprove++
		}
	}
	return d, nil
}

// Vote casts a developer's vote on a pending review.
func (s *Service) Vote(ctx context.Context, sess models.Session, reviewID string, choice models.VoteChoice) (*models.Review, error) {
	rev, err := s.findReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	return s.engine.CastVote(ctx, sess, rev.ID, choice)
}

// Finalize gives lead sign-off on an approved review.
func (s *Service) Finalize(ctx context.Context, sess models.Session, reviewID string) (*models.Review, error) {
	rev, err := s.findReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	return s.engine.Finalize(ctx, sess, rev.ID)
}

// Recompute re-derives a review's status from its votes.
func (s *Service) Recompute(ctx context.Context, reviewID string) (*models.Review, error) {
	rev, err := s.findReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	return s.engine.Recompute(ctx, rev.ID)
}

// --- Tests ---

// SuggestTests asks the reasoning service for more test cases and runs code,
// the existing tests and the suggestions together in the sandbox.
func (s *Service) SuggestTests(ctx context.Context, sess models.Session, code, tests string) (*TestSuggestion, error) {
	if !sess.Authenticated() {
		return nil, fmt.Errorf("suggest tests: %w", models.ErrUnauthenticated)
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("empty code: %w", models.ErrInvalidInput)
	}
	if s.tests == nil || s.pipeline == nil {
		return nil, fmt.Errorf("no reasoning service configured: %w", models.ErrReasoningUnavailable)
	}

	suggested, err := s.tests.SuggestTests(ctx, code, tests, s.cfg.Language)
	if err != nil {
		return nil, err
	}
	if suggested == "" {
		return nil, fmt.Errorf("no %s code block in answer: %w", s.cfg.Language, models.ErrExtractionFailed)
	}

	program := strings.Join(nonEmpty(code, tests, suggested), "\n\n")
	verdict, err := s.pipeline.Run(ctx, program)
	if err != nil {
		return nil, err
	}
	return &TestSuggestion{Tests: suggested, Verdict: verdict}, nil
}

func nonEmpty(parts ...string) []string {
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// findReview finds a review by full ID or prefix match.
func (s *Service) findReview(ctx context.Context, id string) (*models.Review, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("empty review id: %w", models.ErrInvalidInput)
	}

	// Try exact match
	rev, err := s.store.GetReview(ctx, id)
	if err == nil {
		return rev, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	// Try prefix match
	upper := strings.ToUpper(id)
	reviews, err := s.store.ListReviewsByStatus(ctx, "")
	if err != nil {
		return nil, err
	}

	var matches []*models.Review
	for _, r := range reviews {
		if strings.HasPrefix(r.ID, upper) {
			matches = append(matches, r)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("review %s: %w", id, models.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous review ID %s: matches %d reviews: %w", id, len(matches), models.ErrInvalidInput)
	}
}
