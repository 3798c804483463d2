package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/grocery-storefront/api/internal/di"
	"github.com/grocery-storefront/api/internal/handlers"
	"github.com/grocery-storefront/api/internal/platform/auth"
	"github.com/grocery-storefront/api/internal/platform/config"
	pfirestore "github.com/grocery-storefront/api/internal/platform/firestore"
	"github.com/grocery-storefront/api/internal/platform/idempotency"
	"github.com/grocery-storefront/api/internal/platform/jobs"
	"github.com/grocery-storefront/api/internal/platform/observability"
	"github.com/grocery-storefront/api/internal/platform/ratelimit"
	"github.com/grocery-storefront/api/internal/platform/secrets"
	"github.com/grocery-storefront/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(
		observability.WithLevel(os.Getenv("LOG_LEVEL")),
		observability.WithServiceContext("grocery-storefront-api", os.Getenv("API_BUILD_VERSION")),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	var firestoreProvider *pfirestore.Provider
	var firestoreClient *firestore.Client
	if usesFirestore(cfg) {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		firestoreClient, err = firestoreProvider.Client(ctx)
		if err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
	}

	registry, err := di.OpenRegistry(ctx, cfg, firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err), zap.String("driver", cfg.Store.Driver))
	}

	containerOpts := []di.Option{
		di.WithLogger(logger),
		di.WithBuildInfo(buildInfo),
	}
	pubsubClient, publisher, err := newOrderEventPublisher(ctx, cfg)
	if err != nil {
		logger.Warn("order events: publisher unavailable; notifications will be recorded as skipped", zap.Error(err))
	}
	if publisher != nil {
		containerOpts = append(containerOpts, di.WithPublisher(publisher))
	}

	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
		if firestoreProvider != nil && cfg.Store.Driver != config.StoreDriverFirestore {
			if err := firestoreProvider.Close(closeCtx); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	authenticator, err := newAuthenticator(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err), zap.String("mode", cfg.Auth.Mode))
	}

	guestPolicy := ratelimit.Policy{Max: cfg.RateLimits.GuestOrderMax, Window: cfg.RateLimits.GuestOrderWindow}
	var guestLimiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(guestPolicy, time.Now)
	if cfg.RateLimits.Backend == config.RateLimitBackendFirestore {
		guestLimiter = ratelimit.NewFirestoreLimiter(firestoreClient, guestPolicy, ratelimit.WithScope("guest-orders"))
	}

	var idempotencyStore idempotency.Store = idempotency.NewMemoryStore()
	if cfg.Idempotency.Backend == config.IdempotencyBackendFirestore {
		idempotencyStore = idempotency.NewFirestoreStore(firestoreClient)
	}
	orderGuard := idempotency.Middleware(idempotencyStore, idempotency.WithTTL(cfg.Idempotency.TTL))

	svc := container.Services
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, svc.Queries, handlers.WithOrderCreateGuard(orderGuard))
	publicHandlers := handlers.NewPublicOrderHandlers(svc.Orders, guestLimiter, orderGuard)
	meHandlers := handlers.NewMeHandlers(authenticator, svc.Notifications)
	adminHandlers := handlers.NewAdminHandlers(authenticator, handlers.AdminServices{
		Status:    svc.Status,
		Queries:   svc.Queries,
		Coupons:   svc.Coupons,
		Inventory: svc.Inventory,
		Analytics: svc.Analytics,
	})
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicRoutes(publicHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("store", cfg.Store.Driver))
	go func() {
		serverLogger.Info("grocery storefront api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func usesFirestore(cfg config.Config) bool {
	return cfg.Store.Driver == config.StoreDriverFirestore ||
		cfg.RateLimits.Backend == config.RateLimitBackendFirestore ||
		cfg.Idempotency.Backend == config.IdempotencyBackendFirestore
}

func newAuthenticator(ctx context.Context, cfg config.Config) (*auth.Authenticator, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeJWT:
		var opts []auth.JWTOption
		if issuer := strings.TrimSpace(cfg.Auth.JWTIssuer); issuer != "" {
			opts = append(opts, auth.WithJWTIssuer(issuer))
		}
		verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, opts...)
		if err != nil {
			return nil, err
		}
		return auth.NewAuthenticator(verifier), nil
	default:
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		return auth.NewAuthenticator(verifier), nil
	}
}

// newOrderEventPublisher returns a nil publisher when no project or topic is configured.
func newOrderEventPublisher(ctx context.Context, cfg config.Config) (*pubsub.Client, services.OrderEventPublisher, error) {
	topicName := strings.TrimSpace(cfg.Notifications.Topic)
	projectID := traceProjectID(cfg)
	if topicName == "" || projectID == "" {
		return nil, nil, nil
	}
	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	publisher, err := jobs.NewPubSubOrderEventPublisher(client.Topic(topicName))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return client, publisher, nil
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets the selected drivers cannot run without.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.EqualFold(strings.TrimSpace(env["API_STORE_DRIVER"]), config.StoreDriverPostgres) {
		required = append(required, "Postgres.DSN")
	}
	if strings.EqualFold(strings.TrimSpace(env["API_AUTH_MODE"]), config.AuthModeJWT) {
		required = append(required, "Auth.JWTSecret")
	}
	return required
}
