// Package coach implements the interview collaborators on top of an LLM:
// answer evaluation, question and follow-up generation, end-of-interview
// feedback and job description / resume extraction.
//
// Every method returns a usable value even when it also returns an error.
// On failure that value is the fixed fallback for the operation, so callers
// may log the error and carry on.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sjawhar/interview-coach/internal/llm"
	"github.com/sjawhar/interview-coach/internal/observe"
	"github.com/sjawhar/interview-coach/internal/resilience"
)

var (
	ErrNoJSON   = errors.New("no JSON object in model reply")
	ErrNoClient = errors.New("no LLM client configured")
)

const (
	kindEvaluate = "evaluate"
	kindQuestion = "question"
	kindFollowUp = "follow_up"
	kindFeedback = "feedback"
	kindExtract  = "extract"
)

type Options struct {
	// Timeout bounds a single model call. Default 20s.
	Timeout time.Duration
	// Backoff is the pause before each retry of feedback and extraction
	// calls. Turn-time calls are never retried.
	Backoff []time.Duration
	Breaker *resilience.Breaker
	Metrics *observe.Metrics
	Logger  *slog.Logger
}

type Coach struct {
	client  llm.Client
	timeout time.Duration
	backoff []time.Duration
	breaker *resilience.Breaker
	metrics *observe.Metrics
	logger  *slog.Logger
	sleep   func(context.Context, time.Duration) error
}

// New builds a Coach. A nil client is allowed: every call then fails with
// ErrNoClient and yields its fallback.
func New(client llm.Client, opts Options) *Coach {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Backoff == nil {
		opts.Backoff = []time.Duration{1 * time.Second, 4 * time.Second}
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.Discard()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coach{
		client:  client,
		timeout: opts.Timeout,
		backoff: opts.Backoff,
		breaker: opts.Breaker,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		sleep:   sleepContext,
	}
}

func (c *Coach) complete(ctx context.Context, kind string, req llm.Request, retry bool) (string, error) {
	if c.client == nil {
		return "", ErrNoClient
	}

	attempts := 1
	if retry {
		attempts += len(c.backoff)
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff[attempt-1]); err != nil {
				return "", fmt.Errorf("%s: %w", kind, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		result, err := c.once(ctx, kind, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, resilience.ErrCircuitOpen) {
			break
		}
		c.logger.Debug("coach call failed", "kind", kind, "attempt", attempt+1, "error", err)
	}
	return "", fmt.Errorf("%s: %w", kind, lastErr)
}

func (c *Coach) once(ctx context.Context, kind string, req llm.Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result string
	call := func() error {
		var err error
		result, err = c.client.Complete(callCtx, req)
		return err
	}

	start := time.Now()
	var err error
	if c.breaker != nil {
		err = c.breaker.Do(call)
	} else {
		err = call()
	}
	c.metrics.Collaborator(ctx, kind, time.Since(start), err)
	return result, err
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// extractJSON returns the span from the first '{' to the last '}'.
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func tail(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[len(r)-limit:])
}

func clampScore(v float64) float64 {
	return min(10, max(0, v))
}
