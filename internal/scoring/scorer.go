// Package scoring runs the presentation scoring pipeline.
//
// A [Scorer] transcribes the user's recording, resolves the reference text,
// synthesizes the reference at the user's pace, and compares the two
// recordings, the per-minute transcripts and the whole transcript against
// the reference. Each run is strictly sequential and moves through the
// [State] values in order, ending in [StateDone] or [StateFailed].
//
// The pipeline never retries and has no internal timeout; callers bound a
// run with the context they pass in.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/speechscore/internal/apperr"
	"github.com/MrWong99/speechscore/internal/audiosim"
	"github.com/MrWong99/speechscore/internal/observe"
	"github.com/MrWong99/speechscore/internal/segment"
	"github.com/MrWong99/speechscore/internal/textscore"
	"github.com/MrWong99/speechscore/pkg/audio"
	"github.com/MrWong99/speechscore/pkg/provider/stt"
	"github.com/MrWong99/speechscore/pkg/provider/tts"
)

// DefaultAverageWPM is the reference speaking rate the user's pace is
// measured against.
const DefaultAverageWPM = 100

// ErrEmptyTranscript is reported when the recording transcribes to nothing.
var ErrEmptyTranscript = errors.New("scoring: empty transcript")

// Corrector fixes the grammar of a transcript.
type Corrector interface {
	Correct(ctx context.Context, text string) (string, error)
}

// Deps are the collaborators a [Scorer] needs. All fields are required.
type Deps struct {
	STT       stt.Provider
	TTS       tts.Provider
	Corrector Corrector
	Segments  *segment.Analyzer

	// TTSDir receives the synthetic readings.
	TTSDir string
}

// Option is a functional option for configuring a [Scorer].
type Option func(*Scorer)

// WithAverageWPM overrides [DefaultAverageWPM]. Non-positive values are
// ignored.
func WithAverageWPM(wpm float64) Option {
	return func(s *Scorer) {
		if wpm > 0 {
			s.averageWPM = wpm
		}
	}
}

// WithLanguage sets the transcription language. Default: "ko".
func WithLanguage(lang string) Option {
	return func(s *Scorer) { s.language = lang }
}

// WithVoice sets the TTS voice. Empty leaves the provider default.
func WithVoice(voice string) Option {
	return func(s *Scorer) { s.voice = voice }
}

// WithMetrics records stage latencies and run outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scorer) { s.metrics = m }
}

// WithStateObserver registers fn to be called with every state a run
// enters, in order. fn must not block.
func WithStateObserver(fn func(State)) Option {
	return func(s *Scorer) { s.observer = fn }
}

// Scorer runs the scoring pipeline. It holds only read-only collaborators and
// is safe for concurrent use; every run writes to its own uniquely named
// files.
type Scorer struct {
	stt        stt.Provider
	tts        tts.Provider
	corrector  Corrector
	segments   *segment.Analyzer
	ttsDir     string
	averageWPM float64
	language   string
	voice      string
	metrics    *observe.Metrics
	observer   func(State)
}

// New returns a Scorer wired to deps.
func New(deps Deps, opts ...Option) (*Scorer, error) {
	var errs []error
	if deps.STT == nil {
		errs = append(errs, errors.New("scoring: STT provider is required"))
	}
	if deps.TTS == nil {
		errs = append(errs, errors.New("scoring: TTS provider is required"))
	}
	if deps.Corrector == nil {
		errs = append(errs, errors.New("scoring: corrector is required"))
	}
	if deps.Segments == nil {
		errs = append(errs, errors.New("scoring: segment analyzer is required"))
	}
	if deps.TTSDir == "" {
		errs = append(errs, errors.New("scoring: TTS directory is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	s := &Scorer{
		stt:        deps.STT,
		tts:        deps.TTS,
		corrector:  deps.Corrector,
		segments:   deps.Segments,
		ttsDir:     deps.TTSDir,
		averageWPM: DefaultAverageWPM,
		language:   "ko",
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Score runs the whole pipeline for the WAV recording at audioPath.
//
// On success the synthetic reading is kept at Report.TTSFilePath. On failure
// it is removed and the returned error carries an [apperr.Kind].
func (s *Scorer) Score(ctx context.Context, audioPath string, ref Reference) (_ *Report, err error) {
	ctx, span := observe.StartSpan(ctx, "score",
		trace.WithAttributes(attribute.String("audio_path", audioPath), attribute.Bool("script_provided", ref.IsProvided())))
	defer observe.EndSpan(span, &err)
	log := observe.Logger(ctx).With("audio", filepath.Base(audioPath))

	start := time.Now()
	if s.metrics != nil {
		s.metrics.ActiveScores.Add(ctx, 1)
		defer s.metrics.ActiveScores.Add(ctx, -1)
	}

	var ttsPath string
	defer func() {
		status := "done"
		if err != nil {
			status = "failed"
			s.enter(ctx, StateFailed)
			log.Error("scoring failed", "kind", apperr.KindOf(err).String(), "err", err)
			if ttsPath != "" {
				if rmErr := os.Remove(ttsPath); rmErr != nil && !os.IsNotExist(rmErr) {
					log.Warn("scoring: failed to remove synthetic audio", "path", ttsPath, "err", rmErr)
				}
			}
		}
		if s.metrics != nil {
			s.metrics.RecordScore(ctx, status, time.Since(start).Seconds())
		}
	}()

	// 1. Transcribe.
	s.enter(ctx, StateSTTPending)
	transcript, err := s.transcribe(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	log.Debug("transcript", "text", transcript)

	// 2. Resolve the reference.
	reference, source := s.resolveReference(ctx, transcript, ref)
	s.enter(ctx, StateReferenceResolved)
	log.Info("reference resolved", "source", source.String())
	span.SetAttributes(attribute.String("reference.source", source.String()))

	// 3. Speaking rate.
	user, err := audio.Load(audioPath)
	if err != nil {
		return nil, apperr.AudioProcessing("load_audio", err)
	}
	duration := user.Duration()
	wordCount := textscore.CountWords(transcript)
	userWPM := textscore.WPM(duration, wordCount)
	ratio := min(max(userWPM/s.averageWPM, tts.MinSpeed), tts.MaxSpeed)
	s.enter(ctx, StateSpeedComputed)
	log.Debug("speed computed", "duration", duration, "words", wordCount, "wpm", userWPM, "ratio", ratio)

	// 4. Synthesize.
	s.enter(ctx, StateSynthPending)
	ttsPath = s.ttsPathFor(audioPath)
	if err := s.synthesize(ctx, reference, ratio, ttsPath); err != nil {
		return nil, err
	}

	// 5. Match lengths.
	synth, err := audio.SyncLength(ttsPath, duration)
	if err != nil {
		return nil, apperr.AudioProcessing("sync_length", err)
	}
	s.enter(ctx, StateLengthSynced)

	// 6. Compare audio.
	similarity, err := audiosim.Score(user, synth)
	if err != nil {
		return nil, apperr.AudioProcessing("audio_similarity", err)
	}
	s.enter(ctx, StateSimilarityComputed)

	// 7. Per-window accuracy.
	segs, err := s.segments.Analyze(ctx, user, reference)
	if err != nil {
		return nil, apperr.AudioProcessing("segments", err)
	}
	s.enter(ctx, StateSegmentsAnalyzed)

	// 8. Whole-transcript match.
	match, err := textscore.Similarity(transcript, reference)
	if err != nil {
		return nil, apperr.AudioProcessing("script_match", err)
	}
	s.enter(ctx, StateScriptMatchComputed)

	report := &Report{
		AudioSimilarity:       similarity,
		OriginalSpeed:         userWPM,
		TTSSpeed:              ratio * s.averageWPM,
		AverageAccuracy:       segs.AverageAccuracy,
		PronunciationAccuracy: match,
		TTSFilePath:           ttsPath,
		PronunciationScores:   orEmpty(segs.Accuracy),
		WPMScores:             orEmpty(segs.WPM),
	}
	s.enter(ctx, StateDone)
	log.Info("scoring done",
		"audio_similarity", report.AudioSimilarity,
		"original_speed", report.OriginalSpeed,
		"tts_speed", report.TTSSpeed,
		"average_accuracy", report.AverageAccuracy,
		"pronunciation_accuracy", report.PronunciationAccuracy,
		"segments", len(report.PronunciationScores),
	)
	return report, nil
}

func (s *Scorer) transcribe(ctx context.Context, audioPath string) (_ string, err error) {
	ctx, span := observe.StartSpan(ctx, "score.stt")
	defer observe.EndSpan(span, &err)

	start := time.Now()
	text, err := s.stt.Transcribe(ctx, audioPath, s.language)
	s.recordProvider(ctx, observe.KindSTT, start, err)
	if err != nil {
		return "", apperr.Upstream("stt", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.AudioProcessing("stt", ErrEmptyTranscript)
	}
	return text, nil
}

// resolveReference applies the correction fallback: a failed or empty
// correction yields the raw transcript.
func (s *Scorer) resolveReference(ctx context.Context, transcript string, ref Reference) (string, Source) {
	if ref.IsProvided() {
		return ref.Text(), SourceScript
	}

	ctx, span := observe.StartSpan(ctx, "score.correct")
	defer span.End()

	start := time.Now()
	corrected, err := s.corrector.Correct(ctx, transcript)
	s.recordProvider(ctx, observe.KindLLM, start, err)
	if err != nil {
		observe.Logger(ctx).Warn("grammar correction failed, using raw transcript", "err", err)
		return transcript, SourceTranscript
	}
	if isBlank(corrected) {
		observe.Logger(ctx).Warn("grammar correction returned no text, using raw transcript")
		return transcript, SourceTranscript
	}
	return corrected, SourceLLM
}

func (s *Scorer) synthesize(ctx context.Context, text string, speed float64, outPath string) (err error) {
	ctx, span := observe.StartSpan(ctx, "score.tts",
		trace.WithAttributes(attribute.Float64("tts.speed", speed), attribute.Int("tts.chars", len([]rune(text)))))
	defer observe.EndSpan(span, &err)

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return apperr.AudioProcessing("tts", fmt.Errorf("scoring: create tts dir: %w", err))
	}
	start := time.Now()
	err = s.tts.Synthesize(ctx, tts.Request{Text: text, Speed: speed, Voice: s.voice}, outPath)
	s.recordProvider(ctx, observe.KindTTS, start, err)
	switch {
	case err == nil:
		return nil
	case apperr.IsLocal(err):
		return apperr.AudioProcessing("tts", err)
	default:
		return apperr.Upstream("tts", err)
	}
}

// ttsPathFor returns "<ttsDir>/<audio stem>_<uuid>.wav".
func (s *Scorer) ttsPathFor(audioPath string) string {
	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(s.ttsDir, fmt.Sprintf("%s_%s.wav", stem, uuid.NewString()))
}

func (s *Scorer) enter(ctx context.Context, st State) {
	observe.Logger(ctx).Debug("scoring state", "state", st.String())
	if s.observer != nil {
		s.observer(st)
	}
}

func (s *Scorer) recordProvider(ctx context.Context, kind string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	var cause string
	switch {
	case apperr.IsLocal(err):
		cause = "local"
	case err != nil:
		cause = apperr.Classify(err).String()
	}
	s.metrics.RecordProviderCall(ctx, kind, "score", time.Since(start), cause)
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
