// Package app wires the speechscore subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP (and the optional NATS worker) until the
// context ends, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithCatalog,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MrWong99/speechscore/internal/apperr"
	"github.com/MrWong99/speechscore/internal/batch"
	"github.com/MrWong99/speechscore/internal/bus"
	"github.com/MrWong99/speechscore/internal/catalog"
	"github.com/MrWong99/speechscore/internal/catalog/postgres"
	"github.com/MrWong99/speechscore/internal/catalog/sqlite"
	"github.com/MrWong99/speechscore/internal/config"
	"github.com/MrWong99/speechscore/internal/correct"
	"github.com/MrWong99/speechscore/internal/feedback"
	"github.com/MrWong99/speechscore/internal/health"
	"github.com/MrWong99/speechscore/internal/mediaimport"
	"github.com/MrWong99/speechscore/internal/observe"
	"github.com/MrWong99/speechscore/internal/qa"
	"github.com/MrWong99/speechscore/internal/resilience"
	"github.com/MrWong99/speechscore/internal/scoring"
	"github.com/MrWong99/speechscore/internal/segment"
	"github.com/MrWong99/speechscore/internal/server"
	"github.com/MrWong99/speechscore/internal/storage"
	"github.com/MrWong99/speechscore/pkg/provider/llm"
	"github.com/MrWong99/speechscore/pkg/provider/stt"
	"github.com/MrWong99/speechscore/pkg/provider/tts"
)

// Providers holds one interface value per upstream service. Populated by
// main.go via the config registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler

	// Subsystems, initialised in New and torn down in Shutdown.
	layout   *storage.Layout
	importer *mediaimport.Importer
	catalog  catalog.Store
	breakers []*resilience.CircuitBreaker
	scorer   *scoring.Scorer
	service  *feedback.Service
	handler  http.Handler

	embedded *bus.Embedded
	nc       *nats.Conn
	worker   *bus.Worker

	httpServer *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCatalog injects an asset catalog instead of opening one from config.
func WithCatalog(c catalog.Store) Option {
	return func(a *App) { a.catalog = c }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics instead of the Prometheus handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously: working directories,
// transcoder, catalog, provider guards, pipeline, HTTP routes and the
// optional NATS connection. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (_ *App, err error) {
	if providers == nil || providers.STT == nil || providers.TTS == nil || providers.LLM == nil {
		return nil, errors.New("app: STT, TTS and LLM providers are required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = observe.MetricsHandler()
	}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	// ── 1. Storage + transcoder ──────────────────────────────────────────
	if err := a.initStorage(); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Catalog ───────────────────────────────────────────────────────
	if err := a.initCatalog(ctx); err != nil {
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}

	// ── 3. Pipeline ──────────────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.initServer()

	// ── 5. NATS worker ───────────────────────────────────────────────────
	if err := a.initBus(); err != nil {
		return nil, fmt.Errorf("app: init bus: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStorage() error {
	st := a.cfg.Storage
	dirs := storage.DefaultDirs(st.Root)
	for _, d := range []struct {
		dst *string
		val string
	}{
		{&dirs.Uploads, st.Uploads},
		{&dirs.Audio, st.Audio},
		{&dirs.TTS, st.TTS},
		{&dirs.Scripts, st.Scripts},
	} {
		if d.val != "" {
			*d.dst = d.val
		}
	}
	layout, err := storage.New(dirs)
	if err != nil {
		return err
	}
	a.layout = layout

	im, err := mediaimport.New(a.cfg.Transcoder.Command)
	if err != nil {
		return err
	}
	if err := im.Check(context.Background()); err != nil {
		slog.Warn("transcoder not available; uploads other than WAV will fail", "binary", im.Binary(), "err", err)
	}
	a.importer = im
	return nil
}

// initCatalog opens the configured catalog backend or keeps an injected one.
// No backend configured leaves the catalog nil.
func (a *App) initCatalog(ctx context.Context) error {
	if a.catalog != nil {
		return nil
	}
	c := a.cfg.Catalog
	switch {
	case c.PostgresDSN != "":
		store, err := postgres.Open(ctx, c.PostgresDSN)
		if err != nil {
			return err
		}
		a.catalog = store
		slog.Info("asset catalog ready", "backend", "postgres")
	case c.SQLitePath != "":
		store, err := sqlite.Open(ctx, c.SQLitePath)
		if err != nil {
			return err
		}
		a.catalog = store
		slog.Info("asset catalog ready", "backend", "sqlite", "path", c.SQLitePath)
	default:
		return nil
	}
	a.closers = append(a.closers, a.catalog.Close)
	return nil
}

// initPipeline guards every provider with a circuit breaker and builds the
// scorer and feedback service on top.
func (a *App) initPipeline() error {
	breakerCfg := func(name string) resilience.CircuitBreakerConfig {
		return resilience.CircuitBreakerConfig{
			Name:         name,
			MaxFailures:  a.cfg.Resilience.MaxFailures,
			ResetTimeout: a.cfg.Resilience.ResetTimeout,
			IsFailure:    apperr.TripsBreaker,
			OnStateChange: func(name string, _, to resilience.State) {
				a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		}
	}
	guardedSTT := resilience.GuardSTT(a.providers.STT, breakerCfg("stt"))
	guardedTTS := resilience.GuardTTS(a.providers.TTS, breakerCfg("tts"))
	guardedLLM := resilience.GuardLLM(a.providers.LLM, breakerCfg("llm"))
	a.breakers = []*resilience.CircuitBreaker{guardedSTT.Breaker(), guardedTTS.Breaker(), guardedLLM.Breaker()}

	sc := a.cfg.Scoring
	analyzer := segment.New(guardedSTT,
		segment.WithChunkSeconds(sc.ChunkSeconds),
		segment.WithLanguage(sc.Language),
		segment.WithMetrics(a.metrics),
	)
	scorer, err := scoring.New(scoring.Deps{
		STT:       guardedSTT,
		TTS:       tts.NewChunked(guardedTTS, sc.TTSChunkChars),
		Corrector: correct.New(guardedLLM),
		Segments:  analyzer,
		TTSDir:    a.layout.TTSDir(),
	},
		scoring.WithAverageWPM(sc.AverageWPM),
		scoring.WithLanguage(sc.Language),
		scoring.WithVoice(sc.TTSVoice),
		scoring.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.scorer = scorer

	svc, err := feedback.New(feedback.Deps{
		Layout:    a.layout,
		Converter: a.importer,
		Catalog:   a.catalog,
		Scorer:    scorer,
		STT:       guardedSTT,
		Answerer:  qa.New(guardedLLM),
	},
		feedback.WithTimeout(sc.Timeout),
		feedback.WithLanguage(sc.Language),
	)
	if err != nil {
		return err
	}
	a.service = svc
	return nil
}

func (a *App) initServer() {
	checkers := []health.Checker{
		health.Storage(a.layout),
		health.Transcoder(a.importer),
		health.Breakers(a.breakers...),
	}
	if a.catalog != nil {
		checkers = append(checkers, health.Catalog(a.catalog))
	}
	a.handler = server.New(a.service, server.Config{
		Health:         health.New(a.cfg.Telemetry.ServiceName, checkers...),
		Metrics:        a.metrics,
		MetricsHandler: a.metricsHandler,
		CORSOrigin:     a.cfg.Server.CORSOrigin,
		MaxUploadBytes: a.cfg.Server.MaxUploadMB << 20,
	})
}

// initBus connects to NATS (starting an embedded server when asked) and
// prepares the worker. The worker subscribes in Run.
func (a *App) initBus() error {
	bc := a.cfg.Bus
	if !bc.Enabled() {
		return nil
	}
	url := bc.URL
	if bc.Embedded {
		port := bc.EmbeddedPort
		if port == 0 {
			port = -1
		}
		emb, err := bus.StartEmbedded("127.0.0.1", port)
		if err != nil {
			return err
		}
		a.embedded = emb
		if url == "" {
			url = emb.ClientURL()
		}
	}
	nc, err := bus.Connect(url, 5*time.Second)
	if err != nil {
		return err
	}
	a.nc = nc
	a.worker = bus.NewWorker(nc, a.service, bus.Config{
		RequestSubject:   bc.Subject,
		CompletedSubject: bc.CompletedSubject,
		Queue:            bc.Queue,
		Concurrency:      bc.Concurrency,
	})
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler with all routes and middleware.
func (a *App) Handler() http.Handler { return a.handler }

// BusURL returns the NATS URL the worker is connected to, or "".
func (a *App) BusURL() string {
	if a.nc == nil {
		return ""
	}
	return a.nc.ConnectedUrl()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the NATS worker (when configured) and serves HTTP on
// cfg.Server.ListenAddr until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if a.worker != nil {
		if err := a.worker.Start(ctx); err != nil {
			ln.Close()
			return fmt.Errorf("app: start worker: %w", err)
		}
	}

	a.httpServer = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		errCh <- a.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// RunBatch scores every row of the manifest at manifestPath and writes the
// results workbook to outPath.
func (a *App) RunBatch(ctx context.Context, manifestPath, outPath string) error {
	rows, err := batch.ReadManifest(manifestPath)
	if err != nil {
		return err
	}
	runner := batch.NewRunner(a.scorer,
		batch.WithConverter(a.importer),
		batch.WithConcurrency(a.cfg.Batch.Concurrency),
	)
	results, err := runner.Run(ctx, rows)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	slog.Info("batch finished", "rows", len(results), "failed", failed, "out", outPath)
	return batch.WriteResults(outPath, results)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server and worker, then closes the NATS
// connection, the embedded server and the catalog. It respects the context
// deadline for the HTTP drain.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")
		if a.httpServer != nil {
			if err := a.httpServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http: %w", err))
			}
		}
		if a.worker != nil {
			a.worker.Stop()
		}
		errs = append(errs, a.closeAll())
	})
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("nats drain: %w", err))
		}
		a.nc.Close()
		a.nc = nil
	}
	if a.embedded != nil {
		a.embedded.Shutdown()
		a.embedded = nil
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
