// Package pipeline turns submitted code into a review record: one reasoning
// call, normalization, and two sandbox runs classified into verdicts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/crev/internal/llm"
	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/normalize"
	"github.com/joescharf/crev/internal/sandbox"
)

const (
	DefaultReasoningTimeout = 90 * time.Second
	DefaultSandboxTimeout   = 30 * time.Second
)

// Reasoner is the reasoning service.
type Reasoner interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config holds the pipeline's tunables.
type Config struct {
	Placeholder      string
	ReasoningTimeout time.Duration
	SandboxTimeout   time.Duration
}

// Pipeline orchestrates a single review.
type Pipeline struct {
	reasoner   Reasoner
	executor   sandbox.Executor
	normalizer *normalize.Normalizer
	cfg        Config
	logger     *zap.SugaredLogger
}

// New creates a Pipeline. Zero timeouts take the defaults.
func New(r Reasoner, e sandbox.Executor, n *normalize.Normalizer, cfg Config, logger *zap.SugaredLogger) *Pipeline {
	if cfg.ReasoningTimeout <= 0 {
		cfg.ReasoningTimeout = DefaultReasoningTimeout
	}
	if cfg.SandboxTimeout <= 0 {
		cfg.SandboxTimeout = DefaultSandboxTimeout
	}
	if n == nil {
		n = normalize.New(normalize.DialectMarkers, "")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pipeline{reasoner: r, executor: e, normalizer: n, cfg: cfg, logger: logger}
}

// Language returns the code language the pipeline reviews.
func (p *Pipeline) Language() string { return p.normalizer.Language }

// Review critiques code and returns an unsaved record with status pending.
//
// An answer that cannot be normalized still yields a record: every content
// field holds the extraction-failed marker, no sandbox run happens and both
// verdicts stay empty. Reasoning or sandbox failures return an error and no
// record.
func (p *Pipeline) Review(ctx context.Context, code string) (*models.Review, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("empty code submission: %w", models.ErrInvalidInput)
	}
	start := time.Now()

	raw, err := p.reason(ctx, code)
	if err != nil {
		return nil, err
	}

	rev := &models.Review{
		OriginalCode: code,
		Status:       models.ReviewStatusPending,
	}

	content, err := p.normalizer.Normalize(raw)
	if err != nil {
		if !errors.Is(err, models.ErrExtractionFailed) {
			return nil, err
		}
		p.logger.Warnw("reasoning answer not understood; recording degraded review", "error", err)
		rev.ApplyContent(content)
		rev.ExtractionFailed = true
		return rev, nil
	}
	rev.ApplyContent(content)

	var original, suggested models.Verdict
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := p.Run(gctx, code)
		original = v
		if err != nil {
			return fmt.Errorf("original code: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		v, err := p.Run(gctx, content.SuggestedCode)
		suggested = v
		if err != nil {
			return fmt.Errorf("suggested code: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rev.OriginalVerdict = original.Status
	rev.OriginalVerdictMessage = original.Message
	rev.SuggestedVerdict = suggested.Status
	rev.SuggestedVerdictMessage = suggested.Message

	p.logger.Infow("review assembled",
		"original", original.Status,
		"suggested", suggested.Status,
		"duration", time.Since(start),
	)
	return rev, nil
}

// Run prepares code, executes it in a fresh sandbox session under the
// sandbox timeout and classifies the outcome.
func (p *Pipeline) Run(ctx context.Context, code string) (models.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SandboxTimeout)
	defer cancel()

	res, err := sandbox.Execute(ctx, p.executor, sandbox.Prepare(code, p.cfg.Placeholder))
	if err != nil {
		return models.Verdict{}, err
	}
	return sandbox.Classify(*res), nil
}

func (p *Pipeline) reason(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ReasoningTimeout)
	defer cancel()

	system, user := llm.BuildReviewPrompt(code, p.normalizer.Language, p.normalizer.Dialect)
	raw, err := p.reasoner.Complete(ctx, system, user)
	if err != nil {
		if errors.Is(err, models.ErrReasoningUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("reasoning call: %w: %v", models.ErrReasoningUnavailable, err)
	}
	return raw, nil
}
