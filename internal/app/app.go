package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/epicerie/internal/domain/auth"
	"github.com/xenking/epicerie/internal/domain/cart"
	"github.com/xenking/epicerie/internal/domain/customer"
	"github.com/xenking/epicerie/internal/domain/order"
	"github.com/xenking/epicerie/internal/events"
	"github.com/xenking/epicerie/internal/handler"
	"github.com/xenking/epicerie/internal/repository"
	"github.com/xenking/epicerie/pkg/health"
	"github.com/xenking/epicerie/pkg/httpmiddleware"
)

const serviceName = "epicerie-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	if err := repository.RunMigrations(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Order events are optional; without brokers the publisher stays nil.
	var publisher order.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := producer.Close(); err != nil {
				lg.Warn("Close kafka producer", zap.Error(err))
			}
		}()
		publisher = producer
		healthSvc.AddReadinessCheck("kafka", 5*time.Second, health.KafkaCheck(cfg.Kafka.Brokers))
		lg.Info("Publishing order events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	if err := registerAPI(mux, cfg, pool, publisher, m.TracerProvider(), m.MeterProvider()); err != nil {
		return err
	}
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Order.Timeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.LoginMax,
				Window: cfg.RateLimit.Window,
				Match:  httpmiddleware.MatchRoute(http.MethodPost, strings.TrimRight(cfg.BasePath, "/")+"/clients/login"),
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	return g.Wait()
}

// registerAPI builds repositories, services and handlers on pool and mounts
// the storefront routes on mux.
func registerAPI(
	mux *http.ServeMux,
	cfg *Config,
	pool *pgxpool.Pool,
	publisher order.Publisher,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) error {
	customerRepo := repository.NewCustomerRepository(pool)
	productRepo := repository.NewProductRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	orderStore := repository.NewOrderStore(pool)

	tokens := auth.NewTokens([]byte(cfg.Auth.Secret), cfg.Auth.TTL)
	customerService := customer.NewService(customerRepo, auth.NewHasher(cfg.Auth.BcryptCost), tokens)
	cartService := cart.NewService(cartRepo)
	orderService, err := order.NewService(orderStore, publisher, order.Config{
		Timeout:        cfg.Order.Timeout,
		LeadTime:       cfg.Order.LeadTime,
		PublishTimeout: cfg.Order.PublishTimeout,
		TracerProvider: tp,
		MeterProvider:  mp,
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	h := handler.NewHandler(
		handler.HandlerConfig{
			ImageBaseURL:  cfg.ImageBaseURL,
			BestSellers:   cfg.BestSellers,
			SecureCookies: cfg.Auth.SecureCookies,
			BasePath:      cfg.BasePath,
		},
		customerService,
		productRepo,
		cartService,
		orderService,
		handler.NewAuthenticator(tokens),
	)
	h.Routes(mux)
	return nil
}
