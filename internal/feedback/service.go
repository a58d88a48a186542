// Package feedback implements the presentation-feedback use cases shared by
// the HTTP API, the NATS worker and the batch runner: registering an upload,
// scoring it, answering questions about it and deleting it.
package feedback

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/speechscore/internal/apperr"
	"github.com/MrWong99/speechscore/internal/catalog"
	"github.com/MrWong99/speechscore/internal/mediaimport"
	"github.com/MrWong99/speechscore/internal/observe"
	"github.com/MrWong99/speechscore/internal/scoring"
	"github.com/MrWong99/speechscore/internal/script"
	"github.com/MrWong99/speechscore/internal/storage"
	"github.com/MrWong99/speechscore/pkg/provider/stt"
)

// DefaultTimeout bounds one scoring run.
const DefaultTimeout = 10 * time.Minute

// Scorer runs the scoring pipeline on a converted recording.
type Scorer interface {
	Score(ctx context.Context, audioPath string, ref scoring.Reference) (*scoring.Report, error)
}

// Converter turns an uploaded media file into the working WAV format.
type Converter interface {
	Convert(ctx context.Context, src, dst string) error
}

// Answerer answers a question about a transcript.
type Answerer interface {
	Ask(ctx context.Context, transcript, question string) (string, error)
}

// Deps are the collaborators of a [Service].
type Deps struct {
	Layout    *storage.Layout
	Converter Converter
	Catalog   catalog.Store
	Scorer    Scorer
	STT       stt.Provider
	Answerer  Answerer
}

// Service implements the feedback use cases. It is safe for concurrent use.
type Service struct {
	layout    *storage.Layout
	converter Converter
	catalog   catalog.Store
	scorer    Scorer
	stt       stt.Provider
	answerer  Answerer
	language  string
	timeout   time.Duration
}

// Option is a functional option for configuring a [Service].
type Option func(*Service)

// WithTimeout bounds each scoring run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithLanguage sets the transcription language for questions. Default "ko".
func WithLanguage(lang string) Option {
	return func(s *Service) { s.language = lang }
}

// New returns a Service. Catalog may be nil.
func New(deps Deps, opts ...Option) (*Service, error) {
	var errs []error
	if deps.Layout == nil {
		errs = append(errs, errors.New("feedback: storage layout is required"))
	}
	if deps.Converter == nil {
		errs = append(errs, errors.New("feedback: converter is required"))
	}
	if deps.Scorer == nil {
		errs = append(errs, errors.New("feedback: scorer is required"))
	}
	if deps.STT == nil {
		errs = append(errs, errors.New("feedback: STT provider is required"))
	}
	if deps.Answerer == nil {
		errs = append(errs, errors.New("feedback: answerer is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	s := &Service{
		layout:    deps.Layout,
		converter: deps.Converter,
		catalog:   deps.Catalog,
		scorer:    deps.Scorer,
		stt:       deps.STT,
		answerer:  deps.Answerer,
		language:  "ko",
		timeout:   DefaultTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Upload is one uploaded recording with its optional script.
type Upload struct {
	Filename string
	Media    io.Reader

	// Script is the reference text typed by the user. It wins over
	// ScriptFile when not blank.
	Script string

	// ScriptFile is an uploaded script document, cleaned after extraction.
	ScriptFileName string
	ScriptFile     io.Reader
}

// Register stores an upload, converts it to WAV and saves its script. It
// returns the new video ID. Nothing is left on disk when it fails.
func (s *Service) Register(ctx context.Context, up Upload) (_ string, err error) {
	ctx, span := observe.StartSpan(ctx, "feedback.register")
	defer observe.EndSpan(span, &err)

	ext, err := mediaimport.Ext(up.Filename)
	if err != nil {
		return "", err
	}
	reference, err := s.readScript(up)
	if err != nil {
		return "", err
	}

	id := storage.NewID()
	log := observe.Logger(ctx).With("video_id", id)
	defer func() {
		if err != nil {
			if _, rmErr := s.layout.Remove(id); rmErr != nil && !errors.Is(rmErr, storage.ErrNotFound) {
				log.Warn("cleanup after failed upload", "err", rmErr)
			}
		}
	}()

	src, err := s.layout.SaveUpload(id, ext, up.Media)
	if err != nil {
		return "", apperr.Importing("save_upload", err)
	}
	if err := s.converter.Convert(ctx, src, s.layout.AudioPath(id)); err != nil {
		return "", err
	}
	if reference != "" {
		if err := s.layout.SaveScript(id, reference); err != nil {
			return "", apperr.DocumentProcessing("save_script", err)
		}
	}

	if s.catalog != nil {
		asset := &catalog.Asset{ID: id, OriginalName: up.Filename, Extension: ext, HasScript: reference != ""}
		if err := s.catalog.Put(ctx, asset); err != nil {
			log.Warn("catalog registration failed", "err", err)
		}
	}
	log.Info("upload registered", "file", up.Filename, "script", reference != "")
	return id, nil
}

func (s *Service) readScript(up Upload) (string, error) {
	if strings.TrimSpace(up.Script) != "" {
		return up.Script, nil
	}
	if up.ScriptFile == nil {
		return "", nil
	}
	raw, err := script.Extract(up.ScriptFileName, up.ScriptFile)
	if err != nil {
		return "", err
	}
	return script.Clean(raw), nil
}

// Score runs the pipeline for a registered video. A stored script is used as
// the reference; otherwise the reference is derived from the recording.
func (s *Service) Score(ctx context.Context, id string) (*scoring.Report, error) {
	audioPath, err := s.layout.FindAudio(id)
	if err != nil {
		return nil, err
	}
	text, ok, err := s.layout.LoadScript(id)
	if err != nil {
		return nil, apperr.DocumentProcessing("load_script", err)
	}
	ref := scoring.Absent()
	if ok {
		ref = scoring.Provided(text)
	}

	log := observe.Logger(ctx).With("video_id", id)
	if s.catalog != nil {
		if a, err := s.catalog.Get(ctx, id); err == nil {
			log = log.With("original_name", a.OriginalName)
		} else if !errors.Is(err, catalog.ErrNotFound) {
			log.Warn("catalog lookup failed", "err", err)
		}
	}
	log.Info("scoring started", "script", ref.IsProvided())

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.scorer.Score(ctx, audioPath, ref)
}

// Ask transcribes the video and answers question about it.
func (s *Service) Ask(ctx context.Context, id, question string) (transcript, answer string, err error) {
	if strings.TrimSpace(question) == "" {
		return "", "", apperr.Input("ask", "question is required")
	}
	audioPath, err := s.layout.FindAudio(id)
	if err != nil {
		return "", "", err
	}
	transcript, err = s.stt.Transcribe(ctx, audioPath, s.language)
	if err != nil {
		return "", "", apperr.Upstream("stt", err)
	}
	if strings.TrimSpace(transcript) == "" {
		return "", "", apperr.AudioProcessing("stt", scoring.ErrEmptyTranscript)
	}
	answer, err = s.answerer.Ask(ctx, transcript, question)
	if err != nil {
		return "", "", err
	}
	return transcript, answer, nil
}

// Delete removes every file and the catalog entry of a video. It returns the
// number of files removed.
func (s *Service) Delete(ctx context.Context, id string) (int, error) {
	n, err := s.layout.Remove(id)
	if err != nil {
		return n, err
	}
	if s.catalog != nil {
		if err := s.catalog.Delete(ctx, id); err != nil {
			observe.Logger(ctx).Warn("catalog delete failed", "video_id", id, "err", err)
		}
	}
	observe.Logger(ctx).Info("video deleted", "video_id", id, "files", n)
	return n, nil
}

// StatusOf maps err to an HTTP-style status, adding storage lookups to the
// [apperr] taxonomy.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded) && apperr.KindOf(err) == apperr.KindUnknown:
		return http.StatusGatewayTimeout
	}
	return apperr.StatusOf(err)
}

// KindOf names err for clients: the [apperr.Kind] wire name, or
// "not_found" / "invalid_id" for storage lookups.
func KindOf(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, storage.ErrInvalidID):
		return "invalid_id"
	}
	return apperr.KindOf(err).String()
}

// CauseOf returns the upstream cause name, or "" for other errors.
func CauseOf(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) && e.Kind == apperr.KindUpstream {
		return e.Cause.String()
	}
	return ""
}
