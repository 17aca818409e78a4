package cli

import (
	"context"
	"io"

	"github.com/fpang/photo-curator/internal/config"
	"github.com/fpang/photo-curator/internal/filehandler"
	"github.com/fpang/photo-curator/internal/pipeline"
	"github.com/fpang/photo-curator/internal/progress"
	"github.com/rs/zerolog/log"
)

// RunPipeline streams the walker's items through a worker pool running pol,
// drawing progress to out, and returns every result with the run summary.
func RunPipeline[P any](
	ctx context.Context,
	cfg config.Config,
	inferrer pipeline.Inferrer,
	pol pipeline.Policy[P],
	walker *filehandler.Walker,
	out io.Writer,
) ([]pipeline.Result[P], progress.Summary, error) {
	counters := progress.NewCounters()
	sched, err := pipeline.New(inferrer, pol, pipeline.Options{
		Workers:    cfg.WorkerCount,
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.RetryBackoff(),
		Counters:   counters,
	})
	if err != nil {
		return nil, progress.Summary{}, err
	}

	reporter := progress.NewReporter(counters, out, cfg.ProgressInterval())
	reporter.Start()
	results := sched.Run(ctx, walker.Items(ctx))
	reporter.Stop()

	summary := counters.Summary(walker.Skipped())
	evt := log.Info()
	if ctx.Err() != nil {
		evt = log.Warn().Bool("interrupted", true)
	}
	evt.Str("policy", pol.Name()).
		Int64("processed", summary.Processed).
		Int64("succeeded", summary.Succeeded).
		Int64("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("elapsed", summary.Elapsed).
		Msg("Run complete")

	return results, summary, nil
}
