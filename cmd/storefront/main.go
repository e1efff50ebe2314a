package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/htkfoods/storefront/internal/api/handlers"
	"github.com/htkfoods/storefront/internal/api/middleware"
	"github.com/htkfoods/storefront/internal/cache"
	"github.com/htkfoods/storefront/internal/config"
	"github.com/htkfoods/storefront/internal/coupon"
	"github.com/htkfoods/storefront/internal/currency"
	"github.com/htkfoods/storefront/internal/docstore"
	"github.com/htkfoods/storefront/internal/health"
	"github.com/htkfoods/storefront/internal/metrics"
	"github.com/htkfoods/storefront/internal/ratelimit"
	"github.com/htkfoods/storefront/internal/rewards"
	"github.com/htkfoods/storefront/internal/session"
	"github.com/htkfoods/storefront/internal/storage"
	"github.com/htkfoods/storefront/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const janitorInterval = time.Minute

func main() {

	// .env is optional, real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", slog.String("error", err.Error()))
	}

	// Load config
	cfg := config.MustLoad()

	// Logger setup
	logger := telemetry.NewLogger(os.Stdout, cfg.Env)
	slog.SetDefault(logger)

	ctx := context.Background()

	shutdownTracer, err := telemetry.SetupTracer(ctx, &cfg.Otel, cfg.Env)
	if err != nil {
		slog.Error("❌ Error setting up tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var (
		db          *sql.DB
		redisClient *redis.Client
		closers     []io.Closer
	)

	// Redis backs guest storage, the coupon cache and the redis docstore
	if cfg.DocStore.Driver != config.DriverMemory {
		redisClient, err = storage.NewRedisClient(ctx, &cfg.RedisConnect)
		if err != nil {
			slog.Error("❌ Error accessing the redis instance", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("✅ Successfully connected to Redis")
	}

	// Document store
	var docs docstore.Store
	switch cfg.DocStore.Driver {
	case config.DriverPostgres:
		db, err = storage.OpenPostgres(ctx, &cfg.Database)
		if err != nil {
			slog.Error("❌ Error accessing the database", slog.String("error", err.Error()))
			os.Exit(1)
		}

		pg, err := docstore.NewPostgresStore(db, cfg.DocStore.Channel, docstore.NewListener(cfg.Database.GetDSN()))
		if err != nil {
			slog.Error("❌ Error starting document listener", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := pg.InitSchema(ctx); err != nil {
			slog.Error("❌ Error creating document schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
		docs = pg
	case config.DriverRedis:
		docs = docstore.NewRedisStore(redisClient)
	default:
		mem := docstore.NewMemoryStore()
		if err := coupon.Seed(ctx, mem, coupon.DemoCoupons); err != nil {
			slog.Error("❌ Error seeding demo coupons", slog.String("error", err.Error()))
			os.Exit(1)
		}
		docs = mem
		slog.Warn("⚠️ Using the in-memory document store, data is lost on restart")
	}
	closers = append(closers, docs)

	// Guest storage, coupon lookups and the coupon rate limiter
	var (
		guestCache    cache.Cache
		couponRepo    = coupon.NewCouponRepo(docs)
		couponLimiter = ratelimit.NewMemoryLimiter(&cfg.RateConfig)
	)
	if redisClient != nil {
		guestCache = cache.NewRedisCache(redisClient, &cfg.Cache)
		couponRepo = coupon.NewCachedRepo(couponRepo, guestCache, cfg.Cache.CouponTTL)
		couponLimiter = ratelimit.NewRedisLimiter(redisClient, &cfg.RateConfig)
		closers = append(closers, redisClient)
	}
	if db != nil {
		closers = append(closers, db)
	}

	detector := currency.NewDetector(&cfg.Currency, &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})

	manager := session.NewManager(session.Deps{
		Cache:    guestCache,
		Docs:     docs,
		Coupons:  coupon.NewEvaluator(couponRepo),
		Detector: detector,
		Logger:   logger,
	}, cfg)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	go manager.RunJanitor(janitorCtx, janitorInterval)

	healthHandler, err := health.NewHealthHandler(cfg)
	if err != nil {
		slog.Error("❌ Error setting up health checks", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sessionHandler := handlers.NewSessionHandler()
	cartHandler := handlers.NewCartHandler(couponLimiter)
	ledger := rewards.NewLedger(docs)
	liveHandler := handlers.NewLiveHandler(ledger)
	rewardsHandler := handlers.NewRewardsHandler(ledger)
	wishlistHandler := handlers.NewWishlistHandler()
	recentHandler := handlers.NewRecentHandler()
	preferencesHandler := handlers.NewPreferencesHandler()
	authMiddleware := middleware.NewAuthMiddleware([]byte(cfg.Security.JWTKey))
	sessionMiddleware := middleware.NewSessionMiddleware(manager, &cfg.Session, []byte(cfg.Security.SessionKey))

	slog.Info("storage initialized",
		slog.String("env", cfg.Env),
		slog.String("docstore", cfg.DocStore.Driver),
		slog.String("version", health.Version),
	)

	// Setup router
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/v1/session", sessionHandler.GetSession())
	apiMux.HandleFunc("POST /api/v1/session/logout", sessionHandler.Logout())
	apiMux.HandleFunc("GET /api/v1/cart", cartHandler.GetCart())
	apiMux.HandleFunc("POST /api/v1/cart/items", cartHandler.AddItem())
	apiMux.HandleFunc("PATCH /api/v1/cart/items/{id}", cartHandler.UpdateQuantity())
	apiMux.HandleFunc("DELETE /api/v1/cart/items/{id}", cartHandler.RemoveItem())
	apiMux.HandleFunc("DELETE /api/v1/cart", cartHandler.ClearCart())
	apiMux.HandleFunc("POST /api/v1/cart/coupon", cartHandler.ApplyCoupon())
	apiMux.HandleFunc("DELETE /api/v1/cart/coupon", cartHandler.RemoveCoupon())
	apiMux.HandleFunc("POST /api/v1/cart/drawer/close", cartHandler.CloseDrawer())
	apiMux.HandleFunc("GET /api/v1/cart/live", liveHandler.CartFeed())
	apiMux.HandleFunc("GET /api/v1/rewards", middleware.RequireAuth(rewardsHandler.GetAccount()))
	apiMux.HandleFunc("POST /api/v1/rewards/redeem", middleware.RequireAuth(rewardsHandler.Redeem()))
	apiMux.HandleFunc("GET /api/v1/rewards/quote", middleware.RequireAuth(rewardsHandler.Quote()))
	apiMux.HandleFunc("GET /api/v1/rewards/live", middleware.RequireAuth(liveHandler.RewardsFeed()))
	apiMux.HandleFunc("GET /api/v1/wishlist", wishlistHandler.GetWishlist())
	apiMux.HandleFunc("POST /api/v1/wishlist/toggle", wishlistHandler.ToggleWishlist())
	apiMux.HandleFunc("DELETE /api/v1/wishlist/{id}", wishlistHandler.RemoveWishlistItem())
	apiMux.HandleFunc("GET /api/v1/compare", wishlistHandler.GetCompare())
	apiMux.HandleFunc("POST /api/v1/compare/toggle", wishlistHandler.ToggleCompare())
	apiMux.HandleFunc("DELETE /api/v1/compare", wishlistHandler.ClearCompare())
	apiMux.HandleFunc("GET /api/v1/recent", recentHandler.GetRecent())
	apiMux.HandleFunc("POST /api/v1/recent", recentHandler.AddRecent())
	apiMux.HandleFunc("GET /api/v1/preferences", preferencesHandler.GetPreferences())
	apiMux.HandleFunc("PUT /api/v1/preferences", preferencesHandler.UpdatePreferences())
	apiMux.HandleFunc("GET /api/v1/currency/convert", preferencesHandler.Convert())

	// Metrics sit right before the mux so the matched pattern is visible
	var api http.Handler = metrics.Middleware(apiMux)
	api = sessionMiddleware.Handle(api)
	api = authMiddleware.Authenticate(api)

	rootMux := http.NewServeMux()
	rootMux.Handle("GET /health", healthHandler.Handler())
	rootMux.Handle("GET /metrics", metrics.Handler())
	rootMux.Handle("/api/", api)

	// Middleware chaining
	var handler http.Handler = rootMux
	handler = middleware.Logging(handler)
	handler = otelhttp.NewHandler(handler, cfg.Otel.ServiceName)

	// Setup http server
	server := http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("🚀 Server is starting...", slog.String("address", cfg.Addr))

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("❌ Failed to start server", slog.String("error", err.Error()))
			done <- syscall.SIGTERM
		}
	}()

	<-done

	slog.Warn("🛑 Shutdown signal received. Preparing to stop the server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("⚠️ Server shutdown encountered an issue", slog.String("error", err.Error()))
	} else {
		slog.Info("✅ Server shut down gracefully. All connections closed.")
	}

	stopJanitor()

	// Pending cart writes go out before the stores close
	if err := manager.CloseAll(shutdownCtx); err != nil {
		slog.Error("⚠️ Some sessions failed to flush", slog.String("error", err.Error()))
	}

	for _, c := range closers {
		if err := c.Close(); err != nil {
			slog.Error("⚠️ Error closing connection", slog.String("error", err.Error()))
		}
	}

	if err := shutdownTracer(shutdownCtx); err != nil {
		slog.Error("⚠️ Error flushing traces", slog.String("error", err.Error()))
	}
}
