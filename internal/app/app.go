// Package app wires the services of scriptdesk together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/scriptdesk/internal/boltstore"
	"github.com/nfrund/scriptdesk/internal/config"
	"github.com/nfrund/scriptdesk/internal/database"
	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/nfrund/scriptdesk/internal/jobclient"
	"github.com/nfrund/scriptdesk/internal/lifecycle"
	"github.com/nfrund/scriptdesk/internal/permission"
	"github.com/nfrund/scriptdesk/internal/pubsub"
	"github.com/nfrund/scriptdesk/internal/script"
	"github.com/nfrund/scriptdesk/internal/server"
	"github.com/nfrund/scriptdesk/internal/storage"
	"github.com/nfrund/scriptdesk/internal/workflow"
	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace"
)

const connectTimeout = 30 * time.Second

// Stores groups the two repositories of the configured backend.
type Stores struct {
	Scripts   domain.ScriptRepository
	Documents domain.DocumentStore
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// App is the composition root. Services are built lazily on first use and
// released in reverse order by Close.
type App struct {
	injector do.Injector

	mu      sync.Mutex
	closers []closer
}

// New registers every service provider for cfg. Nothing is connected until a
// service is requested.
func New(cfg config.Provider) *App {
	a := &App{injector: do.New()}

	do.ProvideValue(a.injector, cfg)
	do.Provide(a.injector, a.provideStores)
	do.Provide(a.injector, a.provideFileStore)
	do.Provide(a.injector, a.provideEngines)
	do.Provide(a.injector, a.provideOrchestrator)
	do.Provide(a.injector, a.provideJobClient)
	do.Provide(a.injector, a.provideGate)
	do.Provide(a.injector, a.provideTracer)
	do.Provide(a.injector, a.provideBus)
	do.Provide(a.injector, a.provideCoordinator)
	do.Provide(a.injector, a.provideReconciler)
	do.Provide(a.injector, a.provideServer)
	return a
}

// Coordinator returns the lifecycle coordinator.
func (a *App) Coordinator() (*lifecycle.Coordinator, error) {
	return do.Invoke[*lifecycle.Coordinator](a.injector)
}

// Stores returns the configured repositories.
func (a *App) Stores() (*Stores, error) {
	return do.Invoke[*Stores](a.injector)
}

// Serve starts the orphaned job reconciler and the HTTP server and blocks
// until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	cfg := do.MustInvoke[config.Provider](a.injector)

	rec, err := do.Invoke[*lifecycle.Reconciler](a.injector)
	if err != nil {
		return err
	}
	bus, err := do.Invoke[pubsub.Bus](a.injector)
	if err != nil {
		return err
	}
	if err := rec.Start(ctx, bus); err != nil {
		return fmt.Errorf("failed to start reconciler: %w", err)
	}

	srv, err := do.Invoke[*server.Server](a.injector)
	if err != nil {
		return err
	}
	return srv.Start(ctx, cfg.GetServerAddr())
}

// Close releases every service that was created, newest first.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.fn(ctx); err != nil {
			slog.ErrorContext(ctx, "Failed to close service", "event", "service_close_failed", "service", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) provideStores(i do.Injector) (*Stores, error) {
	cfg := do.MustInvoke[config.Provider](i)

	switch cfg.GetStoreBackend() {
	case config.BackendSurreal:
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		conn := database.NewConnection(cfg)
		if err := conn.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to surrealdb: %w", err)
		}
		conn.StartMonitoring()
		a.onClose("surrealdb", conn.Close)

		scripts, err := database.NewScriptStore(conn)
		if err != nil {
			return nil, err
		}
		docs, err := database.NewDocumentStore(conn)
		if err != nil {
			return nil, err
		}
		return &Stores{Scripts: scripts, Documents: docs}, nil

	case config.BackendBolt:
		db, err := boltstore.Open(cfg.GetBoltPath())
		if err != nil {
			return nil, err
		}
		a.onClose("bolt", func(context.Context) error { return db.Close() })
		return &Stores{Scripts: db.Scripts(), Documents: db.Documents()}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.GetStoreBackend())
	}
}

func (a *App) provideFileStore(i do.Injector) (storage.Store, error) {
	cfg := do.MustInvoke[config.Provider](i)
	if cfg.GetFileStoreRoot() == "" {
		slog.Warn("FILESTORE_ROOT is not set, deployed scripts and outputs are kept in memory", "event", "filestore_in_memory")
	}
	return storage.New(cfg.GetFileStoreRoot()), nil
}

func (a *App) provideEngines(i do.Injector) (*script.Factory, error) {
	cfg := do.MustInvoke[config.Provider](i)
	return script.NewFactory(cfg.GetScriptTimeout()), nil
}

func (a *App) provideOrchestrator(i do.Injector) (workflow.Orchestrator, error) {
	cfg := do.MustInvoke[config.Provider](i)

	switch cfg.GetOrchestrator() {
	case config.OrchestratorOozie:
		return workflow.NewOozie(cfg.GetOozieURL()), nil
	case config.OrchestratorLocal:
		engines, err := do.Invoke[*script.Factory](i)
		if err != nil {
			return nil, err
		}
		store, err := do.Invoke[storage.Store](i)
		if err != nil {
			return nil, err
		}
		local := workflow.NewLocal(engines, store, cfg.GetOutputDir())
		a.onClose("local orchestrator", func(context.Context) error { return local.Close() })
		return local, nil
	default:
		return nil, fmt.Errorf("unknown orchestrator %q", cfg.GetOrchestrator())
	}
}

func (a *App) provideJobClient(i do.Injector) (*jobclient.Client, error) {
	orch, err := do.Invoke[workflow.Orchestrator](i)
	if err != nil {
		return nil, err
	}
	store, err := do.Invoke[storage.Store](i)
	if err != nil {
		return nil, err
	}
	return jobclient.New(orch, store, do.MustInvoke[config.Provider](i)), nil
}

func (a *App) provideGate(i do.Injector) (*permission.Gate, error) {
	stores, err := do.Invoke[*Stores](i)
	if err != nil {
		return nil, err
	}
	return permission.NewGate(stores.Documents), nil
}

func (a *App) provideTracer(i do.Injector) (trace.Tracer, error) {
	cfg := do.MustInvoke[config.Provider](i)
	tracer, shutdown, err := pubsub.SetupOTel(context.Background(), pubsub.TracingConfigFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	a.onClose("tracing", shutdown)
	return tracer, nil
}

func (a *App) provideBus(i do.Injector) (pubsub.Bus, error) {
	tracer, err := do.Invoke[trace.Tracer](i)
	if err != nil {
		return nil, err
	}
	bus := pubsub.NewWatermillBridgeWithTracer(tracer)
	a.onClose("event bus", func(context.Context) error { return bus.Close() })
	return bus, nil
}

func (a *App) provideCoordinator(i do.Injector) (*lifecycle.Coordinator, error) {
	cfg := do.MustInvoke[config.Provider](i)

	stores, err := do.Invoke[*Stores](i)
	if err != nil {
		return nil, err
	}
	gate, err := do.Invoke[*permission.Gate](i)
	if err != nil {
		return nil, err
	}
	jobs, err := do.Invoke[*jobclient.Client](i)
	if err != nil {
		return nil, err
	}
	bus, err := do.Invoke[pubsub.Bus](i)
	if err != nil {
		return nil, err
	}

	return lifecycle.New(stores.Scripts, stores.Documents, gate, jobs,
		lifecycle.WithPublisher(bus),
		lifecycle.WithLinks(lifecycle.Links{WatchBase: "/spark/watch", DashboardBase: cfg.GetDashboardBaseURL()}),
	), nil
}

func (a *App) provideReconciler(i do.Injector) (*lifecycle.Reconciler, error) {
	stores, err := do.Invoke[*Stores](i)
	if err != nil {
		return nil, err
	}
	return lifecycle.NewReconciler(stores.Scripts, nil), nil
}

func (a *App) provideServer(i do.Injector) (*server.Server, error) {
	coord, err := do.Invoke[*lifecycle.Coordinator](i)
	if err != nil {
		return nil, err
	}
	return server.New(do.MustInvoke[config.Provider](i), coord), nil
}
