// Package segment measures pronunciation accuracy and speaking rate over
// fixed-length time windows of a recording.
//
// Each window is cut from the user's audio, written to a scratch WAV file and
// transcribed on its own. The window transcript is compared against the full
// reference text, because the reference is not time-aligned to the audio.
// Windows that transcribe to nothing (silence, noise) are skipped rather
// than scored as zero.
package segment

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/speechscore/internal/apperr"
	"github.com/MrWong99/speechscore/internal/observe"
	"github.com/MrWong99/speechscore/internal/textscore"
	"github.com/MrWong99/speechscore/pkg/audio"
	"github.com/MrWong99/speechscore/pkg/provider/stt"
)

// DefaultChunkSeconds is the window length.
const DefaultChunkSeconds = 60

// AccuracyScore is the pronunciation accuracy of one window.
type AccuracyScore struct {
	TimeSegment string  `json:"time_segment"`
	Accuracy    float64 `json:"accuracy"`
}

// WPMScore is the speaking rate of one window.
type WPMScore struct {
	TimeSegment string  `json:"time_segment"`
	WPM         float64 `json:"wpm"`
}

// Result holds the per-window scores. Accuracy and WPM always carry the same
// labels in the same order.
type Result struct {
	Accuracy        []AccuracyScore
	WPM             []WPMScore
	AverageAccuracy float64
}

// Option is a functional option for configuring an [Analyzer].
type Option func(*Analyzer)

// WithChunkSeconds sets the window length. Non-positive values are ignored.
func WithChunkSeconds(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.chunkSeconds = n
		}
	}
}

// WithLanguage sets the language passed to the STT provider.
func WithLanguage(lang string) Option {
	return func(a *Analyzer) { a.language = lang }
}

// WithTempDir sets the parent directory for per-call scratch directories.
// Default: os.TempDir().
func WithTempDir(dir string) Option {
	return func(a *Analyzer) { a.tempRoot = dir }
}

// WithMetrics records STT latency and segment outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// Analyzer slices recordings into windows and scores each one. It holds no
// per-call state and is safe for concurrent use.
type Analyzer struct {
	stt          stt.Provider
	chunkSeconds int
	language     string
	tempRoot     string
	metrics      *observe.Metrics
}

// New returns an Analyzer that transcribes windows with p.
func New(p stt.Provider, opts ...Option) *Analyzer {
	a := &Analyzer{
		stt:          p,
		chunkSeconds: DefaultChunkSeconds,
		language:     "ko",
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ChunkSeconds returns the configured window length.
func (a *Analyzer) ChunkSeconds() int { return a.chunkSeconds }

// Analyze walks asset in windows of ChunkSeconds starting at 0 while the
// window start is below the whole-second duration. The last window is
// clipped at the end of the stream.
//
// An STT failure on any window aborts the call with an upstream error.
// Scratch files live in one directory that is removed on every return path.
func (a *Analyzer) Analyze(ctx context.Context, asset *audio.Asset, reference string) (*Result, error) {
	ctx, span := observe.StartSpan(ctx, "segment.analyze")
	defer span.End()
	log := observe.Logger(ctx)

	dir, err := os.MkdirTemp(a.tempRoot, "segments-*")
	if err != nil {
		return nil, apperr.AudioProcessing("segments", fmt.Errorf("segment: create temp dir: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("segment: failed to remove temp dir", "dir", dir, "err", err)
		}
	}()

	res := &Result{}
	total := int(math.Floor(asset.Duration()))
	chunk := a.chunkSeconds
	var sum float64

	for i := 0; i < total; i += chunk {
		label := Label(i, i+chunk)
		slice := asset.Slice(i*asset.SampleRate, (i+chunk)*asset.SampleRate)
		path := filepath.Join(dir, fmt.Sprintf("segment_%05d.wav", i))
		if err := slice.Save(path); err != nil {
			return nil, apperr.AudioProcessing("segments", fmt.Errorf("segment %s: %w", label, err))
		}

		start := time.Now()
		text, err := a.stt.Transcribe(ctx, path, a.language)
		if a.metrics != nil {
			var cause string
			if err != nil {
				cause = apperr.Classify(err).String()
			}
			a.metrics.RecordProviderCall(ctx, observe.KindSTT, "segment", time.Since(start), cause)
		}
		if err != nil {
			return nil, apperr.Upstream("stt", fmt.Errorf("segment %s: %w", label, err))
		}

		text = strings.TrimSpace(text)
		if text == "" {
			log.Debug("segment: empty transcript, skipping", "segment", label)
			a.recordSegment(ctx, "skipped")
			continue
		}

		acc, err := textscore.Similarity(text, reference)
		if err != nil {
			return nil, apperr.AudioProcessing("segments", fmt.Errorf("segment %s: %w", label, err))
		}
		wpm := float64(textscore.CountWords(text)) / (float64(chunk) / 60)

		res.Accuracy = append(res.Accuracy, AccuracyScore{TimeSegment: label, Accuracy: acc})
		res.WPM = append(res.WPM, WPMScore{TimeSegment: label, WPM: wpm})
		sum += acc
		a.recordSegment(ctx, "scored")
		log.Debug("segment scored", "segment", label, "accuracy", acc, "wpm", wpm)
	}

	if n := len(res.Accuracy); n > 0 {
		res.AverageAccuracy = sum / float64(n)
	}
	span.SetAttributes(
		attribute.Int("segment.scored", len(res.Accuracy)),
		attribute.Float64("segment.average_accuracy", res.AverageAccuracy),
	)
	return res, nil
}

func (a *Analyzer) recordSegment(ctx context.Context, outcome string) {
	if a.metrics != nil {
		a.metrics.RecordSegment(ctx, outcome)
	}
}

// Label formats the window [start, end) given in seconds as
// "<m>m <s>s - <m>m <s>s".
func Label(start, end int) string {
	return fmt.Sprintf("%dm %ds - %dm %ds", start/60, start%60, end/60, end%60)
}
