// Package server exposes the feedback use cases over HTTP.
//
// Routes:
//
//   - POST   /upload-video-with-script/   multipart upload, returns a video ID
//   - POST   /send-feedback/{video_id}     runs scoring, returns the analysis
//   - DELETE /delete-video/{video_id}      removes every file for the video
//   - POST   /ask/{video_id}               answers a question about the talk
//
// Health, readiness and metrics endpoints are mounted by [New] when given.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/MrWong99/speechscore/internal/feedback"
	"github.com/MrWong99/speechscore/internal/health"
	"github.com/MrWong99/speechscore/internal/observe"
	"github.com/MrWong99/speechscore/internal/scoring"
	"github.com/MrWong99/speechscore/internal/segment"
)

// DefaultMaxUploadBytes caps the multipart body of an upload.
const DefaultMaxUploadBytes = 1 << 30

// Service is the feedback use-case surface the handlers call.
type Service interface {
	Register(ctx context.Context, up feedback.Upload) (string, error)
	Score(ctx context.Context, id string) (*scoring.Report, error)
	Ask(ctx context.Context, id, question string) (transcript, answer string, err error)
	Delete(ctx context.Context, id string) (int, error)
}

// Config holds the optional parts of the HTTP surface.
type Config struct {
	Health  *health.Handler
	Metrics *observe.Metrics

	// MetricsHandler serves GET /metrics when non-nil.
	MetricsHandler http.Handler

	// CORSOrigin is sent as Access-Control-Allow-Origin. Empty disables CORS
	// headers.
	CORSOrigin string

	MaxUploadBytes int64
}

// Server routes HTTP requests to a [Service].
type Server struct {
	svc       Service
	cfg       Config
	mux       *http.ServeMux
	handler   http.Handler
	maxUpload int64
}

// New builds the routing table.
func New(svc Service, cfg Config) *Server {
	s := &Server{svc: svc, cfg: cfg, mux: http.NewServeMux(), maxUpload: cfg.MaxUploadBytes}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}

	s.mux.HandleFunc("POST /upload-video-with-script/", s.handleUpload)
	s.mux.HandleFunc("POST /send-feedback/{video_id}", s.handleFeedback)
	s.mux.HandleFunc("DELETE /delete-video/{video_id}", s.handleDelete)
	s.mux.HandleFunc("POST /ask/{video_id}", s.handleAsk)
	if cfg.Health != nil {
		cfg.Health.Register(s.mux)
	}
	if cfg.MetricsHandler != nil {
		s.mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	var h http.Handler = s.mux
	if cfg.Metrics != nil {
		h = observe.Middleware(cfg.Metrics)(h)
	}
	h = requestID(h)
	if cfg.CORSOrigin != "" {
		h = cors(cfg.CORSOrigin)(h)
	}
	s.handler = h
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ── Handlers ────────────────────────────────────────────────────────────────

type uploadResponse struct {
	VideoID string `json:"video_id"`
	Message string `json:"message"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(r.Context(), w, badRequest("invalid multipart form: "+err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	video, header, err := r.FormFile("video")
	if err != nil {
		writeError(r.Context(), w, badRequest("video file is required"))
		return
	}
	defer video.Close()

	up := feedback.Upload{
		Filename: header.Filename,
		Media:    video,
		Script:   r.FormValue("script"),
	}
	if f, fh, err := r.FormFile("script_file"); err == nil {
		defer f.Close()
		up.ScriptFileName = fh.Filename
		up.ScriptFile = f
	}

	id, err := s.svc.Register(r.Context(), up)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		VideoID: id,
		Message: "Upload and conversion complete. Call /send-feedback/" + id + " to receive feedback.",
	})
}

type analysisResult struct {
	AudioSimilarity              float64                 `json:"audio_similarity"`
	AverageWPM                   float64                 `json:"average_wpm"`
	TTSWPM                       float64                 `json:"tts_wpm"`
	AveragePronunciationAccuracy float64                 `json:"average_pronunciation_accuracy"`
	ScriptSimilarity             float64                 `json:"script_similarity"`
	PronunciationScores          []segment.AccuracyScore `json:"pronunciation_scores"`
	WPMScores                    []segment.WPMScore      `json:"wpm_scores"`
}

type analysisResponse struct {
	Message        string         `json:"message"`
	AnalysisResult analysisResult `json:"analysis_result"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("video_id")
	rep, err := s.svc.Score(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysisResponse{
		Message: "Analysis completed successfully",
		AnalysisResult: analysisResult{
			AudioSimilarity:              rep.AudioSimilarity,
			AverageWPM:                   rep.OriginalSpeed,
			TTSWPM:                       rep.TTSSpeed,
			AveragePronunciationAccuracy: rep.AverageAccuracy,
			ScriptSimilarity:             rep.PronunciationAccuracy,
			PronunciationScores:          rep.PronunciationScores,
			WPMScores:                    rep.WPMScores,
		},
	})
}

type deleteResponse struct {
	Success bool   `json:"success"`
	VideoID string `json:"video_id"`
	Message string `json:"message"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("video_id")
	if _, err := s.svc.Delete(r.Context(), id); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Success: true, VideoID: id, Message: "deleted"})
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	VideoID    string `json:"video_id"`
	Transcript string `json:"transcript"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("video_id")
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(r.Context(), w, badRequest("invalid JSON body"))
		return
	}
	transcript, answer, err := s.svc.Ask(r.Context(), id, req.Question)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, askResponse{VideoID: id, Transcript: transcript, Question: req.Question, Answer: answer})
}

// ── Errors ──────────────────────────────────────────────────────────────────

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Cause string `json:"cause,omitempty"`
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var re *requestError
	if errors.As(err, &re) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: re.msg, Kind: "bad_request"})
		return
	}
	status := feedback.StatusOf(err)
	body := errorBody{Error: err.Error(), Kind: feedback.KindOf(err), Cause: feedback.CauseOf(err)}
	log := observe.Logger(ctx)
	if status >= 500 {
		log.Error("request failed", "status", status, "kind", body.Kind, "err", err)
	} else {
		log.Warn("request rejected", "status", status, "kind", body.Kind, "err", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}

// ── Middleware ──────────────────────────────────────────────────────────────

// requestID echoes X-Request-ID, generating one when absent, and stores it in
// the request context for [observe.Logger].
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(observe.WithRequestID(r.Context(), id)))
	})
}

// cors adds permissive CORS headers and answers preflight requests.
func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "false")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
