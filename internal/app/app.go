// Package app wires the client: config, logging and telemetry, storage, the
// identity and cart backends, and the session components built on them.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	otellog "go.opentelemetry.io/otel/log"

	cartrepo "storefront/client/internal/cart/repository"
	cartservice "storefront/client/internal/cart/service"
	"storefront/client/internal/config"
	identityrepo "storefront/client/internal/identity/repository"
	identityservice "storefront/client/internal/identity/service"
	"storefront/client/internal/inactivity"
	"storefront/client/internal/logger"
	"storefront/client/internal/mfa"
	mfarepo "storefront/client/internal/mfa/repository"
	"storefront/client/internal/reconcile"
	"storefront/client/internal/session/domain"
	sessionrepo "storefront/client/internal/session/repository"
	sessionservice "storefront/client/internal/session/service"
	"storefront/client/internal/storage"
	"storefront/client/internal/telemetry"
	telemetryotel "storefront/client/internal/telemetry/otel"
	"storefront/client/internal/telemetry/producer"
	"storefront/client/internal/transport"
	wishlistrepo "storefront/client/internal/wishlist/repository"
)

const serviceName = "storefront-client"

// Deps overrides the backends New would otherwise build from config. Nil
// fields are built from config.
type Deps struct {
	// Identity replaces the HTTP identity backend.
	Identity identityrepo.Repository
	// Cart replaces the HTTP cart backend.
	Cart reconcile.CartBackend
	// Store replaces the storage selected by STORAGE_BACKEND.
	Store storage.Store
	// MonitorOptions add hooks to the inactivity monitor (e.g. a countdown display).
	MonitorOptions []inactivity.Option
}

// App is the wired client.
type App struct {
	Config     *config.Config
	Log        *slog.Logger
	Store      storage.Store
	Validator  *identityservice.Validator
	Challenges *mfa.Manager
	Session    *sessionservice.Manager
	Cart       *cartservice.Service
	Reconciler *reconcile.Reconciler
	Monitor    *inactivity.Monitor

	events      *telemetry.Async
	unsubscribe func()
	closers     []func(context.Context) error
}

// New builds the App. Call Close when done to flush events and release storage.
func New(ctx context.Context, cfg *config.Config, logOut io.Writer, deps Deps) (*App, error) {
	a := &App{Config: cfg}

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	a.closers = append(a.closers, providers.Shutdown)

	var logProvider otellog.LoggerProvider
	if cfg.OTLPEndpoint != "" {
		logProvider = providers.LoggerProvider
	}
	a.Log = logger.New(logOut, cfg.LogLevel, logProvider)

	if deps.Store != nil {
		a.Store = deps.Store
	} else {
		store, closeStore, err := storage.Open(cfg)
		if err != nil {
			a.shutdown(ctx)
			return nil, fmt.Errorf("storage: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, func(context.Context) error { return closeStore() })
	}

	identity := deps.Identity
	if identity == nil {
		identity = identityrepo.NewHTTPRepository(transport.New(cfg.IdentityAPIURL, cfg.Timeout()))
	}
	cartBackend := deps.Cart
	if cartBackend == nil {
		cartBackend = cartrepo.NewRemote(transport.New(cfg.CartAPIURL, cfg.Timeout()))
	}

	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		a.shutdown(ctx)
		return nil, fmt.Errorf("metrics: %w", err)
	}
	sinks := telemetry.Fanout{telemetryotel.NewEventEmitter(logProvider)}
	for _, p := range producers(cfg) {
		sinks = append(sinks, p)
		a.closers = append(a.closers, func(context.Context) error { return p.Close() })
	}
	a.events = telemetry.NewAsync(sinks, a.Log)

	a.Validator = identityservice.NewValidator(identity, a.Log)
	a.Challenges = mfa.NewManager(identity, mfarepo.NewMemoryStore(), cfg.ChallengeTTL(), cfg.ResendInterval(), mfa.WithLogger(a.Log))

	localCart := cartrepo.NewLocal(a.Store)
	a.Cart = cartservice.NewService(localCart, cartBackend, func() string { return a.Session.State().UserID() }, a.Log)
	a.Reconciler = reconcile.NewReconciler(localCart, cartBackend, wishlistrepo.NewLocal(a.Store), a.Cart, a.events, metrics, a.Log)

	a.Session = sessionservice.NewManager(
		a.Validator,
		a.Challenges,
		identity,
		sessionrepo.NewStoreRepository(a.Store),
		a.Reconciler,
		sessionservice.WithLogger(a.Log),
		sessionservice.WithEvents(a.events),
		sessionservice.WithMetrics(metrics),
	)

	monitorOpts := append([]inactivity.Option{
		inactivity.OnExpired(func() {
			a.Log.Info("session expired after inactivity")
			a.Session.Expire(context.Background(), nil)
		}),
	}, deps.MonitorOptions...)
	a.Monitor = inactivity.NewMonitor(cfg.WarnAfter(), cfg.Countdown(), monitorOpts...)
	a.unsubscribe = a.Session.Subscribe(a.followSession)

	return a, nil
}

// producers returns the broker sinks enabled by cfg.
func producers(cfg *config.Config) []producer.Producer {
	var out []producer.Producer
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.SessionEventsTopic); kp != nil {
		out = append(out, kp)
	}
	return out
}

// followSession keeps the monitor running exactly while a session is established.
func (a *App) followSession(st domain.AuthState) {
	if !st.Authenticated() {
		a.Monitor.Stop()
		return
	}
	switch a.Monitor.State() {
	case inactivity.StateIdle, inactivity.StateExpired:
		a.Monitor.Start()
	}
}

// Logout stops the monitor, then tears the session down.
func (a *App) Logout(ctx context.Context, onComplete func()) {
	a.Monitor.Stop()
	a.Session.Teardown(ctx, onComplete)
}

// Close waits for in-flight events and background refreshes, then releases
// storage and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.Monitor.Stop()
	a.Session.Wait()
	var errs []error
	if err := a.events.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain events: %w", err))
	}
	if err := a.shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) shutdown(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
