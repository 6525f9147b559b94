package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "sentioracle/internal/domain/repository"
	domsvc "sentioracle/internal/domain/service"
	"sentioracle/internal/usecase"
	pkgch "sentioracle/pkg/clickhouse"
	"sentioracle/pkg/config"
	xhttp "sentioracle/pkg/http"
	applogger "sentioracle/pkg/logger"
)

// App encapsulates the oracle pipeline's whole process lifecycle: one
// Orchestrator per configured cohort, an admin/health HTTP surface, and
// the shared infrastructure clients everything underneath depends on.
// Modeled on the teacher's App (construct-then-Run, ordered shutdown on
// signal) with the collector+consumer pair replaced by the Orchestrator.
type App struct {
	cfg          *config.Config
	orchestrator *usecase.Orchestrator
	submitter    domsvc.Submitter
	chClient     *pkgch.Client
	txLog        domrepo.TxLogStore
	cycleMetrics domrepo.CycleMetricsStore
	publisher    domrepo.Publisher
	httpServer   *xhttp.Server
	httpHandler  xhttp.Handler
	streams      []StreamRunner
	creds        domrepo.CredentialStore
	log          *applogger.Logger
}

// reloadable is satisfied by a CredentialStore that supports re-reading
// its backing secret volume without a restart.
type reloadable interface {
	Reload(ctx context.Context) error
}

// StreamRunner is satisfied by push-style Collectors (e.g.
// collectors.WebSocketStream) that need a long-lived goroutine
// independent of the Orchestrator's cycle cadence to keep their buffer
// filled between cycles.
type StreamRunner interface {
	Run(ctx context.Context)
}

// New creates a new App instance with all dependencies. reconciler is
// called once before the Orchestrator's first cycle so the Submitter
// starts from the chain's actual pending nonce rather than an assumed
// zero state.
func New(
	cfg *config.Config,
	orchestrator *usecase.Orchestrator,
	submitter domsvc.Submitter,
	chClient *pkgch.Client,
	txLog domrepo.TxLogStore,
	cycleMetrics domrepo.CycleMetricsStore,
	publisher domrepo.Publisher,
	log *applogger.Logger,
) *App {
	return &App{
		cfg:          cfg,
		orchestrator: orchestrator,
		submitter:    submitter,
		chClient:     chClient,
		txLog:        txLog,
		cycleMetrics: cycleMetrics,
		publisher:    publisher,
		log:          log,
	}
}

// SetHTTPHandler allows DI to inject the admin/health HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// SetStreams allows DI to inject the process-lifetime streaming
// collectors that must run independently of any one cycle.
func (a *App) SetStreams(streams []StreamRunner) { a.streams = streams }

// SetCredentialStore allows DI to inject the CredentialStore so Run can
// re-read it on SIGHUP without the caller needing a reference.
func (a *App) SetCredentialStore(creds domrepo.CredentialStore) { a.creds = creds }

// reconciler is satisfied by submitter.Submitter, which also exposes
// Reconcile for nonce resync at startup.
type reconciler interface {
	Reconcile(ctx context.Context) error
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.log
	if l == nil {
		var err error
		l, err = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
		if err != nil {
			return err
		}
	}

	if r, ok := a.submitter.(reconciler); ok {
		if err := r.Reconcile(ctx); err != nil {
			l.Error("nonce reconciliation failed", applogger.Error(err))
			return err
		}
		l.Info("nonce reconciled")
	}

	if a.txLog != nil {
		if err := a.txLog.Init(ctx); err != nil {
			l.Error("tx log init failed", applogger.Error(err))
			return err
		}
	}
	if a.cycleMetrics != nil {
		if err := a.cycleMetrics.Init(ctx); err != nil {
			l.Error("cycle metrics init failed", applogger.Error(err))
			return err
		}
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	for _, s := range a.streams {
		go s.Run(ctx)
	}
	l.Info("streaming collectors started", applogger.Int("count", len(a.streams)))

	go a.orchestrator.Run(ctx)
	l.Info("orchestrator running", applogger.Strings("assets", a.cfg.Cycle.Assets))

	if r, ok := a.creds.(reloadable); ok {
		hupCh := make(chan os.Signal, 1)
		signal.Notify(hupCh, syscall.SIGHUP)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-hupCh:
					if err := r.Reload(ctx); err != nil {
						l.Warn("credential reload failed", applogger.Error(err))
						continue
					}
					l.Info("credentials reloaded")
				}
			}
		}()
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background(), l)
}

// shutdown runs after Run has cancelled the Orchestrator's context; it
// drains the HTTP server, then closes
// infrastructure clients in dependency order: Orchestrator first (it
// drives everything downstream), HTTP surface, then storage/publisher
// clients last since the last cycle's audit writes may still be
// in-flight when the Orchestrator's context is cancelled.
func (a *App) shutdown(ctx context.Context, l *applogger.Logger) error {
	l.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			l.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.txLog != nil {
		if err := a.txLog.Close(); err != nil {
			l.Warn("tx log close error", applogger.Error(err))
		}
	}
	if a.cycleMetrics != nil {
		if err := a.cycleMetrics.Close(); err != nil {
			l.Warn("cycle metrics close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
