package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/speechscore/internal/feedback"
	"github.com/MrWong99/speechscore/internal/observe"
	"github.com/MrWong99/speechscore/internal/scoring"
)

// Default subjects and queue group.
const (
	DefaultRequestSubject   = "speechscore.score.request"
	DefaultCompletedSubject = "speechscore.score.completed"
	DefaultQueue            = "speechscore"
)

// Scorer scores a registered video.
type Scorer interface {
	Score(ctx context.Context, id string) (*scoring.Report, error)
}

// Config configures a [Worker]. Zero values select the defaults.
type Config struct {
	RequestSubject   string
	CompletedSubject string
	Queue            string

	// Concurrency bounds the number of runs in flight. Default 1.
	Concurrency int
}

// Request is the payload of a scoring request.
type Request struct {
	VideoID string `json:"video_id"`
}

// ErrorReply is sent instead of a report when scoring fails.
type ErrorReply struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Cause  string `json:"cause,omitempty"`
	Status int    `json:"status"`
}

// Completed is published after every run.
type Completed struct {
	VideoID    string `json:"video_id"`
	Status     string `json:"status"`
	Kind       string `json:"kind,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Worker consumes scoring requests.
type Worker struct {
	nc     *nats.Conn
	scorer Scorer
	cfg    Config

	mu     sync.Mutex
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}
	wg     sync.WaitGroup
}

// NewWorker returns a Worker that has not subscribed yet.
func NewWorker(nc *nats.Conn, scorer Scorer, cfg Config) *Worker {
	if cfg.RequestSubject == "" {
		cfg.RequestSubject = DefaultRequestSubject
	}
	if cfg.CompletedSubject == "" {
		cfg.CompletedSubject = DefaultCompletedSubject
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Worker{nc: nc, scorer: scorer, cfg: cfg, sem: make(chan struct{}, cfg.Concurrency)}
}

// Start subscribes to the request subject. Runs inherit ctx.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sub != nil {
		return errors.New("bus: worker already started")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	sub, err := w.nc.QueueSubscribe(w.cfg.RequestSubject, w.cfg.Queue, w.dispatch)
	if err != nil {
		w.cancel()
		return fmt.Errorf("bus: subscribe %s: %w", w.cfg.RequestSubject, err)
	}
	if err := w.nc.Flush(); err != nil {
		sub.Unsubscribe()
		w.cancel()
		return fmt.Errorf("bus: flush subscription: %w", err)
	}
	w.sub = sub
	observe.Logger(ctx).Info("scoring worker subscribed",
		"subject", w.cfg.RequestSubject, "queue", w.cfg.Queue, "concurrency", w.cfg.Concurrency)
	return nil
}

// Stop drains the subscription, cancels runs in flight and waits for them.
func (w *Worker) Stop() error {
	w.mu.Lock()
	sub, cancel := w.sub, w.cancel
	w.sub = nil
	w.mu.Unlock()
	if sub == nil {
		return nil
	}
	err := sub.Unsubscribe()
	cancel()
	w.wg.Wait()
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("bus: unsubscribe: %w", err)
	}
	return nil
}

// dispatch runs on the subscription goroutine; it only waits for a slot.
func (w *Worker) dispatch(msg *nats.Msg) {
	select {
	case w.sem <- struct{}{}:
	case <-w.ctx.Done():
		return
	}
	w.wg.Add(1)
	go func() {
		defer func() {
			<-w.sem
			w.wg.Done()
		}()
		w.handle(msg)
	}()
}

func (w *Worker) handle(msg *nats.Msg) {
	ctx, span := observe.StartSpan(w.ctx, "bus.score",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination", msg.Subject)))
	defer span.End()
	log := observe.Logger(ctx)

	var req Request
	if err := json.Unmarshal(msg.Data, &req); err != nil || strings.TrimSpace(req.VideoID) == "" {
		w.reply(ctx, msg, ErrorReply{Error: "payload must be {\"video_id\": \"...\"}", Kind: "input_error", Status: 400})
		return
	}
	span.SetAttributes(attribute.String("video_id", req.VideoID))

	start := time.Now()
	rep, err := w.scorer.Score(ctx, req.VideoID)
	done := Completed{VideoID: req.VideoID, Status: "done", DurationMS: time.Since(start).Milliseconds()}
	if err != nil {
		done.Status = "failed"
		done.Kind = feedback.KindOf(err)
		log.Error("bus scoring failed", "video_id", req.VideoID, "err", err)
		w.reply(ctx, msg, ErrorReply{
			Error:  err.Error(),
			Kind:   done.Kind,
			Cause:  feedback.CauseOf(err),
			Status: feedback.StatusOf(err),
		})
	} else {
		log.Info("bus scoring done", "video_id", req.VideoID, "duration_ms", done.DurationMS)
		w.reply(ctx, msg, rep)
	}
	w.publish(ctx, w.cfg.CompletedSubject, done)
}

func (w *Worker) reply(ctx context.Context, msg *nats.Msg, v any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		observe.Logger(ctx).Error("bus: encode reply", "err", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		observe.Logger(ctx).Warn("bus: reply failed", "err", err)
	}
}

func (w *Worker) publish(ctx context.Context, subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		observe.Logger(ctx).Error("bus: encode event", "err", err)
		return
	}
	if err := w.nc.Publish(subject, data); err != nil {
		observe.Logger(ctx).Warn("bus: publish failed", "subject", subject, "err", err)
	}
}
