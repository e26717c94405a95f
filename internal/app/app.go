package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/notify"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/promo"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/internal/idempotency"
	"github.com/xenking/kart-checkout/internal/notify/lognotify"
	"github.com/xenking/kart-checkout/internal/notify/stannotify"
	"github.com/xenking/kart-checkout/internal/repository"
	"github.com/xenking/kart-checkout/pkg/health"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

const serviceName = "kart-checkout"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	svc, err := newService(ctx, lg, m.TracerProvider(), m.MeterProvider(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Leaves room for a gateway call at its full timeout.
		WriteTimeout:   cfg.Gateway.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler:        svc.Handler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		svc.Health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		if err := svc.Dispatcher.Close(shutdownCtx); err != nil {
			lg.Warn("Notifications not drained", zap.Error(err))
		}
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// service is the assembled application behind the HTTP listener.
type service struct {
	Handler    http.Handler
	Health     *health.Health
	Dispatcher *notify.Dispatcher

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (s *service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newService connects to the stores, migrates the schema and builds the
// fully wrapped HTTP handler. Background workers stop when ctx is done.
func newService(
	ctx context.Context,
	lg *zap.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	cfg *Config,
) (_ *service, rerr error) {
	svc := &service{}
	defer func() {
		if rerr != nil {
			svc.Close()
		}
	}()

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	svc.closers = append(svc.closers, pool.Close)

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	svc.Health = health.New()
	svc.Health.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	svc.Health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	svc.closers = append(svc.closers, svc.Health.Stop)

	idem, closeIdem := newIdempotencyStore(cfg.Redis, svc.Health)
	svc.closers = append(svc.closers, closeIdem)

	notifier, closeNotifier, err := newNotifier(cfg.Notify)
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, closeNotifier)

	svc.Dispatcher = notify.NewDispatcher(notifier, lg, notify.Options{
		QueueSize: cfg.Notify.QueueSize,
		Workers:   cfg.Notify.Workers,
		Timeout:   cfg.Notify.Timeout,
	})
	svc.Dispatcher.Start()
	svc.closers = append(svc.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Dispatcher.Close(ctx)
	})

	h, err := newHandler(pool, cfg, mp.Meter(serviceName), idem, svc.Dispatcher)
	if err != nil {
		return nil, err
	}

	svc.Health.Start(ctx, 10*time.Second)
	svc.Health.SetReady(true)

	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})
	go limiter.Run(ctx)

	router := h.Router(
		httpmiddleware.LogRequests(),
		limiter.Middleware(),
	)
	router.Get("/livez", svc.Health.LiveEndpoint)
	router.Get("/readyz", svc.Health.ReadyEndpoint)

	svc.Handler = httpmiddleware.Wrap(router,
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		httpmiddleware.Instrument(serviceName, tp, mp),
	)
	return svc, nil
}

func newHandler(
	pool *pgxpool.Pool,
	cfg *Config,
	meter metric.Meter,
	idem idempotency.Store,
	notifications order.Notifications,
) (*handler.Handler, error) {
	rate, err := cfg.Currency.rate()
	if err != nil {
		return nil, err
	}
	fee, freeOver, err := cfg.Orders.fees()
	if err != nil {
		return nil, err
	}
	var (
		tx     = repository.NewTransactor(pool)
		orders = repository.NewOrderRepository(pool)
	)
	orderSvc, err := order.NewService(order.Deps{
		Tx:            tx,
		Orders:        orders,
		Products:      repository.NewProductRepository(pool),
		Carts:         repository.NewCartRepository(pool),
		Promos:        promo.NewRepoValidator(repository.NewPromoRepository(pool)),
		Rates:         rate,
		Sequence:      repository.NewOrderSequence(pool),
		Idempotency:   idem,
		Notifications: notifications,
		Delivery:      order.FixedDelivery(cfg.Orders.DeliveryTime),
		Shipping:      order.FlatShipping{Fee: fee, FreeOver: freeOver, Rates: rate},
		NumberPrefix:  cfg.Orders.NumberPrefix,
		Meter:         meter,
	})
	if err != nil {
		return nil, errors.Wrap(err, "order service")
	}

	payments, err := payment.NewClient(cfg.Gateway.payment(), orders, nil, meter)
	if err != nil {
		return nil, errors.Wrap(err, "payment client")
	}
	webhooks, err := payment.NewProcessor(tx, orders, repository.NewWebhookLedger(pool), notifications,
		cfg.Gateway.SecretKey, meter)
	if err != nil {
		return nil, errors.Wrap(err, "webhook processor")
	}

	authn := handler.NewAuthenticator(repository.NewAPIKeyRepository(pool), []byte(cfg.APIKeyPepper))
	return handler.NewHandler(orderSvc, payments, webhooks, authn), nil
}

func newIdempotencyStore(cfg RedisConfig, h *health.Health) (idempotency.Store, func()) {
	if cfg.Addr == "" {
		return idempotency.NewMemoryStore(cfg.IdempotencyTTL), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	h.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(client))
	return idempotency.NewRedisStore(client, "kart:idem:", cfg.IdempotencyTTL), func() { _ = client.Close() }
}

func newNotifier(cfg NotifyConfig) (notify.Notifier, func(), error) {
	if cfg.Driver != "stan" {
		return lognotify.Notifier{}, func() {}, nil
	}
	n, conn, err := stannotify.Connect(stannotify.Config{
		URL:       cfg.NATSURL,
		ClusterID: cfg.ClusterID,
		ClientID:  cfg.ClientID,
		Subject:   cfg.Subject,
	})
	if err != nil {
		return nil, nil, err
	}
	return n, func() { _ = conn.Close() }, nil
}
