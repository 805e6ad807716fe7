// Package bootstrap assembles the job control plane's components in
// dependency order and owns graceful shutdown.
//
// The phase ordering follows internal/bootstrap/lifecycle.go's
// RunUntilInterrupt/Shutdown shape (feed poller -> event consumer ->
// SSE broker -> scheduler -> log service -> HTTP server) and
// cmd/httpd/server.go's signal.Notify-plus-errChan-select pattern with
// http.Server.ListenAndServe in its own goroutine. AlephAuto's own
// phase order is config -> logger -> store -> cache -> registry ->
// event bus -> scheduler -> push broadcaster -> metrics -> HTTP server
// -> cron -> run-until-interrupt, assembled into a single explicit
// application object rather than module-level singletons.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/integritystudio/alephauto/internal/api"
	apimiddleware "github.com/integritystudio/alephauto/internal/api/middleware"
	"github.com/integritystudio/alephauto/internal/cache"
	"github.com/integritystudio/alephauto/internal/clock"
	"github.com/integritystudio/alephauto/internal/config"
	"github.com/integritystudio/alephauto/internal/domain"
	"github.com/integritystudio/alephauto/internal/eventbus"
	"github.com/integritystudio/alephauto/internal/health"
	"github.com/integritystudio/alephauto/internal/logging"
	"github.com/integritystudio/alephauto/internal/metrics"
	"github.com/integritystudio/alephauto/internal/push"
	"github.com/integritystudio/alephauto/internal/registry"
	"github.com/integritystudio/alephauto/internal/scheduler"
	"github.com/integritystudio/alephauto/internal/status"
	"github.com/integritystudio/alephauto/internal/store"
	"github.com/integritystudio/alephauto/internal/worker"
)

const defaultShutdownTimeout = 30 * time.Second

// App is the fully assembled AlephAuto process: every long-lived
// component plus the means to run and tear it down.
type App struct {
	cfg    *config.Config
	logger logging.Logger

	store      *store.Store
	cache      *cache.Cache
	registry   *registry.Registry
	bus        *eventbus.Bus
	runtime    *worker.Runtime
	scheduler  *scheduler.Scheduler
	aggregator *status.Aggregator
	broker     *push.Broker
	metrics    *metrics.Metrics
	checker    *health.Checker
	cron       *cron.Cron
	clk        clock.Clock
	ids        *clock.IDGenerator

	httpServer *http.Server
	limiter    *apimiddleware.RateLimiter
}

// New assembles every component in dependency order but starts nothing
// (no goroutines, no listener) until Run is called.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Logging.Debug)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build logger: %w", err)
	}

	clk := clock.New()
	ids := clock.NewIDGenerator(clk)

	st, err := store.Open(ctx, cfg.Database, clk, log)
	if err != nil {
		return nil, err
	}

	if n, err := st.ReconcileInterrupted(ctx); err != nil {
		log.Warn("bootstrap: reconcile interrupted jobs failed", zap.Error(err))
	} else if n > 0 {
		log.Info("bootstrap: reconciled interrupted jobs", zap.Int("count", n))
	}

	cacheClient, err := cache.New(ctx, cfg.Redis, time.Hour)
	if err != nil {
		log.Warn("bootstrap: redis cache unavailable, continuing without it", zap.Error(err))
		cacheClient = nil
	}

	reg := registry.New()
	resolver := worker.NewInterpreterResolver(cfg.Worker.InterpreterOverride, cfg.Worker.VenvPath, cfg.Worker.SystemInterpreter)
	for _, p := range cfg.Pipelines {
		p := p
		reg.Register(domain.PipelineDescriptor{
			ID:        p.ID,
			HumanName: p.HumanName,
			Cron:      p.Cron,
			WorkerFactory: func() domain.Worker {
				return worker.NewSubprocessWorker(worker.SubprocessSpec{
					Resolver:       resolver,
					ScriptPath:     cfg.Worker.ScriptsDir + "/" + p.Script,
					BaseTimeout:    cfg.Scheduler.BaseTimeout() + time.Duration(p.WorkloadMS)*time.Millisecond,
					CancelGraceMS:  cfg.Scheduler.CancelGraceMS,
				})
			},
		})
	}

	bus := eventbus.New(log)
	rt := worker.New(bus, clk)
	sched := scheduler.New(cfg.Scheduler, st, bus, rt, reg, clk, log)
	agg := status.New(st, reg, sched, cfg.Scheduler.MaxAttempts)

	broker := push.New(push.Config{
		BatchWindow:    time.Duration(cfg.Push.BatchWindowMS) * time.Millisecond,
		QueueCap:       cfg.Push.SubQueueCap,
		IdleDisconnect: time.Duration(cfg.Push.IdleDisconnectMS) * time.Millisecond,
	}, clk, log)
	bus.Register(broker)

	reg2 := prometheus.NewRegistry()
	m := metrics.New(reg2, agg)

	checker := health.NewChecker()
	checker.Register(health.NewCheck("database", func(ctx context.Context) error {
		return st.DB().PingContext(ctx)
	}))
	if cacheClient != nil {
		checker.Register(health.NewCheck("redis", func(ctx context.Context) error {
			_, _ = cacheClient.GetResult(ctx, "healthcheck")
			return nil
		}))
	}

	limiter := apimiddleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	handlers := api.Handlers{
		Jobs:    api.NewJobsHandler(sched, st, ids, clk),
		Status:  api.NewStatusHandler(agg, ids),
		Reports: api.NewReportsHandler(cfg.Server.ReportsDir, ids),
		Events:  api.NewEventsHandler(broker, agg, ids),
		Health:  checker,
	}
	handlers.Scans = api.NewScansHandler(handlers.Jobs, st, ids, clk)

	router := api.NewRouter(cfg.Server, log, handlers)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cronRunner := cron.New()
	for pipelineID, expr := range cfg.CronSchedules {
		pid := pipelineID
		if _, err := cronRunner.AddFunc(expr, func() {
			cronCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			job := &domain.Job{
				ID:         ids.NewJobID(pid),
				PipelineID: pid,
				Status:     domain.StatusQueued,
				CreatedAt:  clk.Now(),
				Data:       domain.JSONBlob(`{"trigger":"cron"}`),
				Attempt:    1,
			}
			if err := sched.Enqueue(cronCtx, job); err != nil {
				log.Error("bootstrap: cron trigger failed", zap.Error(err))
			}
		}); err != nil {
			log.Error("bootstrap: invalid cron schedule", zap.String("pipeline_id", pid), zap.String("schedule", expr))
		}
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		store:      st,
		cache:      cacheClient,
		registry:   reg,
		bus:        bus,
		runtime:    rt,
		scheduler:  sched,
		aggregator: agg,
		broker:     broker,
		metrics:    m,
		checker:    checker,
		cron:       cronRunner,
		clk:        clk,
		ids:        ids,
		httpServer: httpServer,
		limiter:    limiter,
	}, nil
}

// TriggerOnce enqueues a single job for pipelineID and returns its id.
// It powers the "cron" CLI subcommand's manual-trigger mode: an
// operator confirming a pipeline's registration and parameters without
// waiting for its schedule.
//
// Enqueue only inserts the job and wakes any running scheduler loop;
// it does not itself run the job. A standalone CLI invocation runs the
// admission loop for up to its own 10-second grace window so the job
// has a chance to start before the process exits, mirroring the
// timeout used for cron-triggered enqueues above.
func (a *App) TriggerOnce(ctx context.Context, pipelineID string) (string, error) {
	job := &domain.Job{
		ID:         a.ids.NewJobID(pipelineID),
		PipelineID: pipelineID,
		Status:     domain.StatusQueued,
		CreatedAt:  a.clk.Now(),
		Data:       domain.JSONBlob(`{"trigger":"cli"}`),
		Attempt:    1,
	}
	if err := a.scheduler.Enqueue(ctx, job); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	a.scheduler.Start(runCtx)

	return job.ID, nil
}

// Run starts every background component, serves HTTP, and blocks until a
// signal or an unrecoverable server error, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	schedCtx, cancelSched := context.WithCancel(ctx)
	go a.scheduler.Start(schedCtx)

	metricsCtx, cancelMetrics := context.WithCancel(ctx)
	go a.refreshMetricsLoop(metricsCtx)

	a.cron.Start()

	cleanupStop := make(chan struct{})
	go a.cleanupRateLimiterLoop(cleanupStop)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("bootstrap: starting HTTP server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case err := <-errCh:
		a.logger.Error("bootstrap: server error", zap.Error(err))
		runErr = err
	case sig := <-sigCh:
		a.logger.Info("bootstrap: shutdown signal received", zap.String("signal", sig.String()))
	}

	cancelMetrics()
	close(cleanupStop)
	cancelSched()
	return errors.Join(runErr, a.shutdown())
}

// shutdown tears components down in roughly the reverse of their
// startup order (cron -> broadcaster -> server -> cache -> store).
func (a *App) shutdown() error {
	cronCtx := a.cron.Stop()
	<-cronCtx.Done()

	a.broker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	var err error
	if serr := a.httpServer.Shutdown(shutdownCtx); serr != nil {
		a.logger.Error("bootstrap: http server shutdown failed", zap.Error(serr))
		err = serr
	}

	if cerr := a.cache.Close(); cerr != nil {
		a.logger.Warn("bootstrap: cache close failed", zap.Error(cerr))
	}
	if serr := a.store.Close(); serr != nil {
		a.logger.Error("bootstrap: store close failed", zap.Error(serr))
		if err == nil {
			err = serr
		}
	}
	_ = a.logger.Sync()

	return err
}

// refreshMetricsLoop periodically refreshes Prometheus gauges from the
// Status Aggregator, per internal/metrics's "never an independent source
// of truth" rule.
func (a *App) refreshMetricsLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.metrics.Refresh(ctx); err != nil {
				a.logger.Warn("bootstrap: metrics refresh failed", zap.Error(err))
			}
		}
	}
}

func (a *App) cleanupRateLimiterLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.limiter.Cleanup(10 * time.Minute)
		}
	}
}

// Migrate runs pending schema migrations and reports the resulting
// version, for the "migrate" CLI subcommand.
func (a *App) Migrate(ctx context.Context) (int, error) {
	return a.store.Migrate(ctx)
}

// Healthy runs every registered health check once, for the "health" CLI
// subcommand.
func (a *App) Healthy(ctx context.Context) bool {
	s, _ := a.checker.Check(ctx)
	return s == health.StatusHealthy
}

// Close releases every resource without running the full shutdown
// sequence; used by commands (migrate, health) that never call Run.
func (a *App) Close() error {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	err := a.store.Close()
	_ = a.logger.Sync()
	return err
}
