// Package pipeline runs a fixed pool of workers over a stream of images,
// sending each to the inference endpoint and applying the result policy's
// side effect on success.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"time"

	"github.com/fpang/photo-curator/internal/chat"
	"github.com/fpang/photo-curator/internal/filehandler"
	"github.com/fpang/photo-curator/internal/progress"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 5

// Inferrer sends one inference request. *chat.Client implements it.
type Inferrer interface {
	Infer(ctx context.Context, req chat.Request) (string, error)
}

// Policy interprets model output and applies the success side effect.
// Parse errors should be chat.FailureErrors; anything else is treated as fatal.
type Policy[P any] interface {
	Name() string
	Instruction(item filehandler.WorkItem) string
	Shape() chat.Shape
	Parse(raw string) (P, error)
	Apply(ctx context.Context, item filehandler.WorkItem, payload P) (applied bool, err error)
}

// Options configures a Scheduler.
type Options struct {
	Workers    int
	MaxRetries int
	// Backoff is the pause between attempts on the same item.
	Backoff  time.Duration
	Counters *progress.Counters
}

// Scheduler drives every item through inference and its policy exactly once.
type Scheduler[P any] struct {
	inferrer Inferrer
	policy   Policy[P]
	opts     Options
}

// New validates opts and returns a Scheduler.
func New[P any](inferrer Inferrer, policy Policy[P], opts Options) (*Scheduler[P], error) {
	if opts.Workers < 1 {
		return nil, fmt.Errorf("worker count must be >= 1, got %d", opts.Workers)
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0, got %d", opts.MaxRetries)
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Millisecond
	}
	if opts.Counters == nil {
		opts.Counters = progress.NewCounters()
	}
	return &Scheduler[P]{inferrer: inferrer, policy: policy, opts: opts}, nil
}

// Counters returns the counters the workers update.
func (s *Scheduler[P]) Counters() *progress.Counters {
	return s.opts.Counters
}

// Run drains items with the worker pool and returns one Result per item
// taken, in completion order.
//
// Cancelling ctx stops dispatch. Workers finish the attempt they are in
// (the HTTP call is not aborted) and, if it succeeded, apply its side
// effect; items waiting for a retry or not yet attempted end as canceled.
func (s *Scheduler[P]) Run(ctx context.Context, items iter.Seq[filehandler.WorkItem]) []Result[P] {
	jobs := make(chan filehandler.WorkItem)
	results := make(chan Result[P])

	go func() {
		defer close(jobs)
		for item := range items {
			if ctx.Err() != nil {
				return
			}
			select {
			case jobs <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	var g errgroup.Group
	for w := 1; w <= s.opts.Workers; w++ {
		g.Go(func() error {
			for item := range jobs {
				results <- s.process(ctx, w, item)
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	var out []Result[P]
	for r := range results {
		out = append(out, r)
	}

	log.Debug().
		Str("policy", s.policy.Name()).
		Int("results", len(out)).
		Msg("Worker pool drained")
	return out
}

// process owns item until it reaches a terminal state.
func (s *Scheduler[P]) process(ctx context.Context, worker int, item filehandler.WorkItem) (res Result[P]) {
	start := time.Now()
	s.opts.Counters.Dispatch()
	res.Item = item

	defer func() {
		res.Duration = time.Since(start)
		s.opts.Counters.Complete(res.Succeeded())
		logResult(worker, res)
	}()

	if err := ctx.Err(); err != nil {
		res.Status = StatusCanceled
		res.Outcome = chat.Retryable
		res.Err = err
		return res
	}

	req, err := s.buildRequest(item)
	if err != nil {
		res.Status = StatusFailed
		res.Outcome = chat.Fatal
		res.Err = err
		return res
	}

	var lastErr error
	backoff := retry.WithMaxRetries(uint64(s.opts.MaxRetries), retry.NewConstant(s.opts.Backoff))
	payload, err := retry.DoValue(ctx, backoff, func(_ context.Context) (P, error) {
		res.Attempts++
		// the in-flight call is allowed to finish on stop
		raw, err := s.inferrer.Infer(context.WithoutCancel(ctx), req)
		var payload P
		if err == nil {
			payload, err = s.policy.Parse(raw)
		}
		if err != nil {
			lastErr = err
			log.Debug().
				Err(err).
				Str("path", item.RelPath).
				Int("attempt", res.Attempts).
				Str("kind", chat.KindOf(err).String()).
				Msg("Attempt failed")
			if chat.IsRetryable(err) {
				return payload, retry.RetryableError(err)
			}
			return payload, err
		}
		return payload, nil
	})

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				res.Status = StatusCanceled
				res.Outcome = chat.KindOf(lastErr)
				if lastErr == nil {
					res.Outcome = chat.Retryable
				}
				res.Err = err
				return res
			}
		}
		res.Status = StatusFailed
		res.Outcome = chat.KindOf(err)
		res.Err = err
		return res
	}

	res.Outcome = chat.Success
	res.Payload = payload

	applied, err := s.policy.Apply(context.WithoutCancel(ctx), item, payload)
	if err != nil {
		res.Status = StatusFailed
		res.Err = &SideEffectError{Path: item.Path, Err: err}
		return res
	}
	res.Status = StatusSucceeded
	res.SideEffectApplied = applied
	return res
}

// buildRequest reads the image once; retries reuse the same bytes.
func (s *Scheduler[P]) buildRequest(item filehandler.WorkItem) (chat.Request, error) {
	data, err := os.ReadFile(item.Path)
	if err != nil {
		return chat.Request{}, chat.FatalFailure("failed to read image", err)
	}
	mimeType, err := filehandler.DetectMIMEType(data, item.Path)
	if err != nil {
		return chat.Request{}, chat.FatalFailure("unsupported image", err)
	}
	return chat.Request{
		Image:       data,
		MIMEType:    mimeType,
		Instruction: s.policy.Instruction(item),
		Shape:       s.policy.Shape(),
	}, nil
}

func logResult[P any](worker int, res Result[P]) {
	if res.Succeeded() {
		log.Debug().
			Int("worker", worker).
			Str("path", res.Item.RelPath).
			Int("attempts", res.Attempts).
			Dur("duration", res.Duration).
			Msg("Item done")
		return
	}
	kind := res.Outcome.String()
	var se *SideEffectError
	if errors.As(res.Err, &se) {
		kind = "side_effect"
	}
	log.Warn().
		Err(res.Err).
		Int("worker", worker).
		Str("path", res.Item.Path).
		Str("status", res.Status.String()).
		Str("kind", kind).
		Int("attempts", res.Attempts).
		Msg("Item failed")
}
