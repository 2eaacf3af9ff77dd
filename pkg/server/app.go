package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinFusion/internal/engine"
	"FinFusion/internal/handler/ws"
	"FinFusion/internal/usecase"
	"FinFusion/pkg/config"
	xhttp "FinFusion/pkg/http"
	pkgkafka "FinFusion/pkg/kafka"
	applogger "FinFusion/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	registry   *engine.Registry
	confluence *usecase.ConfluenceUseCase
	training   *usecase.TrainingUseCase
	hub        *ws.Hub
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	registry *engine.Registry,
	confluence *usecase.ConfluenceUseCase,
	training *usecase.TrainingUseCase,
	hub *ws.Hub,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	httpServer *xhttp.Server,
) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        log,
		registry:   registry,
		confluence: confluence,
		training:   training,
		hub:        hub,
		consumer:   consumer,
		kh:         kh,
		httpServer: httpServer,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext is Run with the caller owning cancellation.
func (a *App) RunContext(ctx context.Context) error {
	if a.cfg.History.Warmup && a.confluence != nil {
		wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		n := a.confluence.Warmup(wctx, a.cfg.Symbols, a.cfg.Timeframes)
		cancel()
		a.log.Info("history warmed",
			applogger.Int("pairs", n),
			applogger.Strings("symbols", a.cfg.Symbols),
			applogger.Strings("timeframes", a.cfg.Timeframes),
		)
	}

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-a.httpServer.Errors():
		a.log.Error("http server failed", applogger.Error(runErr))
	}

	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown stops intake first so no bar reaches an engine after it closed.
// Infrastructure clients are closed by the DI cleanup.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.log.Info("shutting down...")

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	var httpErr error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		httpErr = err
	}

	if a.training != nil {
		a.training.Close()
	}
	if a.registry != nil {
		a.registry.Close()
	}
	if a.hub != nil {
		a.hub.Close()
	}

	a.log.Info("shutdown complete")
	return httpErr
}
