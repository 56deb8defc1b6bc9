package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iago/extensao-whatsapp-back/internal/cache"
	"github.com/iago/extensao-whatsapp-back/internal/circuitbreaker"
	"github.com/iago/extensao-whatsapp-back/internal/config"
	contextengine "github.com/iago/extensao-whatsapp-back/internal/context"
	"github.com/iago/extensao-whatsapp-back/internal/domain"
	"github.com/iago/extensao-whatsapp-back/internal/gateway"
	"github.com/iago/extensao-whatsapp-back/internal/heartbeat"
	httpserver "github.com/iago/extensao-whatsapp-back/internal/http"
	"github.com/iago/extensao-whatsapp-back/internal/http/handlers"
	"github.com/iago/extensao-whatsapp-back/internal/llm"
	"github.com/iago/extensao-whatsapp-back/internal/logging"
	"github.com/iago/extensao-whatsapp-back/internal/metrics"
	"github.com/iago/extensao-whatsapp-back/internal/queue"
	"github.com/iago/extensao-whatsapp-back/internal/ratelimit"
	"github.com/iago/extensao-whatsapp-back/internal/repository"
	"github.com/iago/extensao-whatsapp-back/internal/template"
	"github.com/iago/extensao-whatsapp-back/internal/worker"
)

// geminiEndpoint is the Gemini REST API base the upstream gateway talks
// to; not tenant-configurable, so it isn't one of the named environment
// variables.
const geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

func main() {
	bootLogger, err := logging.New(logging.Config{Level: "info"})
	if err != nil {
		panic(err)
	}

	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		bootLogger.Warn("failed loading .env files", zap.Error(err))
	}
	cfg := config.Load()

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel})
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metricsCollector := metrics.New(registry)

	repos, repoCloser := setupRepositories(ctx, cfg, logger)
	defer repoCloser()

	redisClient, redisCloser := setupRedis(cfg, logger)
	defer redisCloser()

	producer, consumer, queueCloser := setupQueue(ctx, cfg, redisClient, logger)
	defer queueCloser()

	cacheStore := setupCache(cfg, redisClient)

	templates, err := loadTemplates(cfg)
	if err != nil {
		logger.Fatal("failed loading response templates", zap.Error(err))
	}
	templates.SetMetrics(metricsCollector)

	engine := contextengine.New(
		cacheStore,
		repos.conversations,
		repos.customerContexts,
		repos.personalizationConfigs,
		templates,
		cfg.ContextMaxMessages,
	)

	llmClient := llm.New(llm.Config{
		Endpoint:        geminiEndpoint,
		APIKey:          cfg.GeminiAPIKey,
		Model:           cfg.GeminiModel,
		Timeout:         time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
		MaxAttempts:     cfg.LLMRetryAttempts,
		BreakerLimit:    cfg.LLMBreakerThreshold,
		BreakerCooldown: time.Duration(cfg.LLMBreakerResetSeconds) * time.Second,
	}, metricsCollector)

	gatewayClient := gateway.New(gateway.Config{
		BaseURL:       cfg.WhatsAppAPIURL,
		BearerToken:   cfg.WhatsAppBearerToken,
		LoginEmail:    cfg.WhaticketJWTEmail,
		LoginPassword: cfg.WhaticketJWTPass,
		Timeout:       time.Duration(cfg.GatewayTimeoutMS) * time.Millisecond,
		MaxAttempts:   cfg.GatewayMaxRetries,
		BackoffBase:   time.Duration(cfg.GatewayBackoffMS) * time.Millisecond,
	})

	breakerFactory := func(tenantID int64) *circuitbreaker.Breaker {
		key := "company:" + strconv.FormatInt(tenantID, 10) + ":llm:circuit"
		return circuitbreaker.New(redisClient, key, cfg.LLMBreakerThreshold, time.Duration(cfg.LLMBreakerResetSeconds)*time.Second)
	}

	workerHeartbeat := heartbeat.New(180 * time.Second)

	processor := worker.NewProcessor(
		consumer,
		engine,
		llmClient,
		gatewayClient,
		repos.conversations,
		repos.deliveryLogs,
		breakerFactory,
		metricsCollector,
		logger,
		cfg.RQRetryMaxAttempts,
		workerHeartbeat,
	)
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		go processor.Start(ctx)
	}
	logger.Info("worker pool started", zap.Int("concurrency", cfg.WorkerConcurrency))

	limiter := ratelimit.New(redisClient, cfg.WebhookRateLimitIP, time.Duration(cfg.RateLimitWindowSeconds)*time.Second)

	webhookAPI := handlers.NewWebhookAPI(repos.tenants, producer, limiter, metricsCollector, handlers.WebhookConfig{
		SharedSecret: cfg.SharedSecret,
		SkewSeconds:  cfg.WebhookSkewSeconds,
		WebhookToken: cfg.WebhookToken,
	}, logger)
	healthAPI := handlers.NewHealthAPI(repos.pinger, redisPinger{client: redisClient}, workerHeartbeat, metricsCollector)
	adminAPI := handlers.NewAdminAPI(producer.(queue.DeadLetterRequeuer))

	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		Webhook:        webhookAPI,
		Health:         healthAPI,
		Admin:          adminAPI,
		Registerer:     registry,
		Logger:         logger,
		AdminToken:     cfg.AdminToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   float64(cfg.WebhookRateLimitIP),
		RateLimitBurst: cfg.WebhookRateLimitIP * 2,
	})

	server := &http.Server{
		Addr:              ":" + portFromAddr(cfg.HTTPAddr),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", server.Addr))
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// redisPinger adapts *redis.Client to handlers.Pinger, since Ping
// returns a *redis.StatusCmd rather than a plain error.
type redisPinger struct {
	client *redis.Client
}

func (r redisPinger) Ping(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

func portFromAddr(addr string) string {
	if addr == "" {
		return "8080"
	}
	return addr
}

func loadTemplates(cfg config.Config) (*template.Set, error) {
	if cfg.ResponseTemplatesPath == "" {
		return template.LoadDefault()
	}
	raw, err := os.ReadFile(cfg.ResponseTemplatesPath)
	if err != nil {
		return nil, err
	}
	return template.Load(raw)
}

type repositories struct {
	tenants                repository.TenantsRepository
	conversations          repository.ConversationsRepository
	deliveryLogs           repository.DeliveryLogsRepository
	customerContexts       repository.CustomerContextsRepository
	personalizationConfigs repository.PersonalizationConfigsRepository
	pinger                 handlers.Pinger
}

func setupRepositories(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories, func()) {
	memoryFallback := func() repositories {
		tenants := repository.NewMemoryTenantsRepository()
		tenants.Register(domain.Tenant{ID: 1, Label: "dev", Domain: "localhost", Status: domain.TenantStatusActive})
		return repositories{
			tenants:                tenants,
			conversations:          repository.NewMemoryConversationsRepository(),
			deliveryLogs:           repository.NewMemoryDeliveryLogsRepository(),
			customerContexts:       repository.NewMemoryCustomerContextsRepository(),
			personalizationConfigs: repository.NewMemoryPersonalizationConfigsRepository(),
			pinger:                 nil,
		}
	}

	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not configured, using in-memory repositories")
		return memoryFallback(), func() {}
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to initialize postgres pool, falling back to memory repositories", zap.Error(err))
		return memoryFallback(), func() {}
	}

	logger.Info("postgres repositories initialized")
	return repositories{
		tenants:                repository.NewPostgresTenantsRepository(pool),
		conversations:          repository.NewPostgresConversationsRepository(pool),
		deliveryLogs:           repository.NewPostgresDeliveryLogsRepository(pool),
		customerContexts:       repository.NewPostgresCustomerContextsRepository(pool),
		personalizationConfigs: repository.NewPostgresPersonalizationConfigsRepository(pool),
		pinger:                 pool,
	}, pool.Close
}

func setupRedis(cfg config.Config, logger *zap.Logger) (*redis.Client, func()) {
	addr := cfg.RedisAddr
	if addr == "" {
		logger.Warn("REDIS_ADDR not configured, caching/rate-limiting/circuit-breaking degrade to a local default address")
		addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }
}

func setupCache(cfg config.Config, redisClient *redis.Client) cache.Store {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryStore(cache.MemoryConfig{TTL: time.Duration(cfg.ContextTTLSeconds) * time.Second})
	}
	return cache.NewRedisStore(redisClient, time.Duration(cfg.ContextTTLSeconds)*time.Second)
}

func setupQueue(ctx context.Context, cfg config.Config, redisClient *redis.Client, logger *zap.Logger) (queue.Producer, queue.Consumer, func()) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not configured, using local in-memory queue fallback")
		local := queue.NewLocalQueue(512, cfg.RQRetryMaxAttempts, logger)
		return local, local, func() {}
	}

	streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		Prefix:      cfg.RQQueuePrefix,
		DLQStream:   cfg.RQQueuePrefix + "_" + cfg.RQDeadLetterQueue,
		Group:       cfg.RQGroup,
		Consumer:    cfg.RQConsumer,
		MaxAttempts: cfg.RQRetryMaxAttempts,
	})
	if err != nil {
		logger.Error("failed to initialize redis streams queue, falling back to local queue", zap.Error(err))
		local := queue.NewLocalQueue(512, cfg.RQRetryMaxAttempts, logger)
		return local, local, func() {}
	}

	logger.Info("redis streams queue initialized", zap.String("prefix", cfg.RQQueuePrefix))
	return streams, streams, func() { _ = streams.Close() }
}
