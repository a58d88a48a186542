package bus_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MrWong99/speechscore/internal/apperr"
	"github.com/MrWong99/speechscore/internal/bus"
	"github.com/MrWong99/speechscore/internal/scoring"
	"github.com/MrWong99/speechscore/internal/storage"
)

type statusErr int

func (s statusErr) Error() string   { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) HTTPStatus() int { return int(s) }

type fakeScorer struct {
	mu       sync.Mutex
	ids      []string
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	errs     map[string]error
}

func (f *fakeScorer) Score(ctx context.Context, id string) (*scoring.Report, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	f.ids = append(f.ids, id)
	err := f.errs[id]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &scoring.Report{OriginalSpeed: 99, TTSFilePath: "/tts/" + id + ".wav"}, nil
}

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := bus.StartEmbedded("127.0.0.1", -1)
	if err != nil {
		t.Fatalf("StartEmbedded: %v", err)
	}
	t.Cleanup(ns.Shutdown)

	nc, err := bus.Connect(ns.ClientURL(), time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func startWorker(t *testing.T, nc *nats.Conn, s bus.Scorer, cfg bus.Config) *bus.Worker {
	t.Helper()
	w := bus.NewWorker(nc, s, cfg)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return w
}

func TestWorker_RepliesWithReport(t *testing.T) {
	t.Parallel()

	nc := startNATS(t)
	events := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe(bus.DefaultCompletedSubject, events)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	startWorker(t, nc, &fakeScorer{}, bus.Config{})

	msg, err := nc.Request(bus.DefaultRequestSubject, []byte(`{"video_id":"abc"}`), 5*time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	var rep scoring.Report
	if err := json.Unmarshal(msg.Data, &rep); err != nil {
		t.Fatal(err)
	}
	if rep.OriginalSpeed != 99 || rep.TTSFilePath != "/tts/abc.wav" {
		t.Errorf("report = %+v", rep)
	}

	select {
	case ev := <-events:
		var done bus.Completed
		if err := json.Unmarshal(ev.Data, &done); err != nil {
			t.Fatal(err)
		}
		if done.VideoID != "abc" || done.Status != "done" || done.DurationMS < 0 {
			t.Errorf("event = %+v", done)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no completion event")
	}
}

func TestWorker_ErrorReplies(t *testing.T) {
	t.Parallel()

	nc := startNATS(t)
	scorer := &fakeScorer{errs: map[string]error{
		"gone":    fmt.Errorf("%w: audio", storage.ErrNotFound),
		"limited": apperr.Upstream("tts", statusErr(http.StatusTooManyRequests)),
	}}
	startWorker(t, nc, scorer, bus.Config{})

	tests := []struct {
		payload string
		status  int
		kind    string
		cause   string
	}{
		{`{"video_id":"gone"}`, http.StatusNotFound, "not_found", ""},
		{`{"video_id":"limited"}`, http.StatusTooManyRequests, "upstream_service_error", "rate_limit"},
		{`not json`, http.StatusBadRequest, "input_error", ""},
		{`{"video_id":"  "}`, http.StatusBadRequest, "input_error", ""},
	}
	for _, tt := range tests {
		msg, err := nc.Request(bus.DefaultRequestSubject, []byte(tt.payload), 5*time.Second)
		if err != nil {
			t.Fatalf("Request(%s): %v", tt.payload, err)
		}
		var got bus.ErrorReply
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatal(err)
		}
		if got.Status != tt.status || got.Kind != tt.kind || got.Cause != tt.cause {
			t.Errorf("%s: reply = %+v", tt.payload, got)
		}
	}
}

func TestWorker_ConcurrencyBound(t *testing.T) {
	t.Parallel()

	nc := startNATS(t)
	scorer := &fakeScorer{delay: 50 * time.Millisecond}
	startWorker(t, nc, scorer, bus.Config{Concurrency: 2, RequestSubject: "test.score", Queue: "q"})

	var wg sync.WaitGroup
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := fmt.Sprintf(`{"video_id":"v%d"}`, i)
			if _, err := nc.Request("test.score", []byte(payload), 5*time.Second); err != nil {
				t.Errorf("Request: %v", err)
			}
		}()
	}
	wg.Wait()

	if p := scorer.peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
	scorer.mu.Lock()
	defer scorer.mu.Unlock()
	if len(scorer.ids) != 6 {
		t.Errorf("scored %d videos, want 6", len(scorer.ids))
	}
}

func TestWorker_StartTwiceAndStop(t *testing.T) {
	t.Parallel()

	nc := startNATS(t)
	w := bus.NewWorker(nc, &fakeScorer{}, bus.Config{})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if _, err := nc.Request(bus.DefaultRequestSubject, []byte(`{"video_id":"x"}`), 200*time.Millisecond); err == nil {
		t.Error("request answered after Stop")
	}
}

func TestConnect_NoURL(t *testing.T) {
	t.Parallel()

	if _, err := bus.Connect("", 0); err == nil {
		t.Error("expected error")
	}
}
