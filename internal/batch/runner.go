package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speechscore/internal/apperr"
	"github.com/MrWong99/speechscore/internal/observe"
	"github.com/MrWong99/speechscore/internal/scoring"
)

// DefaultConcurrency is the number of rows scored at once.
const DefaultConcurrency = 2

// Scorer runs the pipeline on one WAV recording.
type Scorer interface {
	Score(ctx context.Context, audioPath string, ref scoring.Reference) (*scoring.Report, error)
}

// Converter turns non-WAV media into WAV.
type Converter interface {
	Convert(ctx context.Context, src, dst string) error
}

// Result is the outcome of one row.
type Result struct {
	Row      Row
	Report   *scoring.Report
	Err      error
	Duration time.Duration
}

// Runner scores manifest rows concurrently.
type Runner struct {
	scorer      Scorer
	converter   Converter
	concurrency int
	tempDir     string
}

// Option is a functional option for configuring a [Runner].
type Option func(*Runner)

// WithConcurrency bounds the rows in flight. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithConverter converts rows whose audio is not WAV. Without one such rows
// fail with an importing error.
func WithConverter(c Converter) Option {
	return func(r *Runner) { r.converter = c }
}

// WithTempDir sets where converted audio is written. Default: os.TempDir().
func WithTempDir(dir string) Option {
	return func(r *Runner) { r.tempDir = dir }
}

// NewRunner returns a Runner over scorer.
func NewRunner(scorer Scorer, opts ...Option) *Runner {
	r := &Runner{scorer: scorer, concurrency: DefaultConcurrency}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run scores every row. A failing row is recorded in its [Result] and does
// not stop the others; only cancellation of ctx is returned as an error.
// Results are in row order.
func (r *Runner) Run(ctx context.Context, rows []Row) ([]Result, error) {
	results := make([]Result, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, row := range rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			start := time.Now()
			rep, err := r.scoreRow(gctx, row)
			results[i] = Result{Row: row, Report: rep, Err: err, Duration: time.Since(start)}
			log := observe.Logger(gctx).With("line", row.Line, "audio", filepath.Base(row.AudioPath))
			if err != nil {
				log.Warn("batch row failed", "err", err)
			} else {
				log.Info("batch row scored", "duration", results[i].Duration)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("batch: %w", err)
	}
	return results, nil
}

func (r *Runner) scoreRow(ctx context.Context, row Row) (*scoring.Report, error) {
	text, err := row.reference()
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.DocumentProcessing("script", err)
		}
		return nil, err
	}
	ref := scoring.Absent()
	if text != "" {
		ref = scoring.Provided(text)
	}

	audioPath := row.AudioPath
	if !strings.EqualFold(filepath.Ext(audioPath), ".wav") {
		converted, cleanup, err := r.convert(ctx, audioPath)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		audioPath = converted
	}
	return r.scorer.Score(ctx, audioPath, ref)
}

func (r *Runner) convert(ctx context.Context, src string) (string, func(), error) {
	if r.converter == nil {
		return "", nil, apperr.Importing("convert", errors.New("batch: no converter configured for non-WAV input"))
	}
	dir, err := os.MkdirTemp(r.tempDir, "batch-*")
	if err != nil {
		return "", nil, apperr.Importing("convert", fmt.Errorf("batch: temp dir: %w", err))
	}
	cleanup := func() { os.RemoveAll(dir) }
	dst := filepath.Join(dir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))+".wav")
	if err := r.converter.Convert(ctx, src, dst); err != nil {
		cleanup()
		return "", nil, err
	}
	return dst, cleanup, nil
}
