// Command load drives the signed webhook ingress with concurrent
// requests against a local, in-memory wiring of the pipeline (no real
// Redis/Postgres/LLM/gateway), reporting latency percentiles and
// throughput the way the upstream project's benchmark script does.
package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iago/extensao-whatsapp-back/internal/cache"
	"github.com/iago/extensao-whatsapp-back/internal/circuitbreaker"
	contextengine "github.com/iago/extensao-whatsapp-back/internal/context"
	"github.com/iago/extensao-whatsapp-back/internal/domain"
	"github.com/iago/extensao-whatsapp-back/internal/gateway"
	"github.com/iago/extensao-whatsapp-back/internal/heartbeat"
	httpserver "github.com/iago/extensao-whatsapp-back/internal/http"
	"github.com/iago/extensao-whatsapp-back/internal/http/handlers"
	"github.com/iago/extensao-whatsapp-back/internal/llm"
	"github.com/iago/extensao-whatsapp-back/internal/metrics"
	"github.com/iago/extensao-whatsapp-back/internal/queue"
	"github.com/iago/extensao-whatsapp-back/internal/ratelimit"
	"github.com/iago/extensao-whatsapp-back/internal/repository"
	"github.com/iago/extensao-whatsapp-back/internal/template"
	"github.com/iago/extensao-whatsapp-back/internal/worker"
)

const sharedSecret = "load-test-secret"

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

type benchmarkEnv struct {
	server *httptest.Server
	cancel func()
}

func main() {
	webhookTotal := flag.Int("webhook-total", 400, "total webhook requests")
	webhookConcurrency := flag.Int("webhook-concurrency", 32, "concurrency for webhook requests")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	env, err := startBenchmarkEnvironment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start local benchmark environment: %v\n", err)
		os.Exit(1)
	}
	defer env.cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	var counter int64

	webhookScenario := runScenario("webhook_ingress", *webhookTotal, *webhookConcurrency, func(index int) error {
		id := atomic.AddInt64(&counter, 1)
		number := fmt.Sprintf("55119999%05d", id%90000)
		body, _ := json.Marshal(map[string]any{
			"message": map[string]any{"conversation": fmt.Sprintf("mensagem de carga %d", index)},
			"number":  number,
		})
		return postSignedWebhook(client, env.server.URL+"/webhook/whaticket", body, http.StatusAccepted)
	})

	results := []scenarioResult{webhookScenario}
	slo := map[string]bool{
		"webhook_ingress_p95_le_500ms": webhookScenario.P95MS <= 500,
	}

	report := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        results,
		SLOEvaluation:  slo,
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal benchmark report: %v\n", err)
		os.Exit(1)
	}

	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write output file: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Fprintln(os.Stdout, string(encoded))
}

func startBenchmarkEnvironment() (*benchmarkEnv, error) {
	ctx, cancelWorker := context.WithCancel(context.Background())
	logger := zap.NewNop()

	miniRedisServer, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("start miniredis: %w", err)
	}
	redisClient := redis.NewClient(&redis.Options{Addr: miniRedisServer.Addr()})

	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "Obrigado pelo contato."}}}},
			},
		})
	}))

	gatewayServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "load-test-id"})
	}))

	tenantsRepo := repository.NewMemoryTenantsRepository()
	tenantsRepo.Register(domain.Tenant{ID: 1, Label: "load-test", Domain: "load.local", Status: domain.TenantStatusActive})

	conversations := repository.NewMemoryConversationsRepository()
	deliveryLogs := repository.NewMemoryDeliveryLogsRepository()
	customerContexts := repository.NewMemoryCustomerContextsRepository()
	personalizationConfigs := repository.NewMemoryPersonalizationConfigsRepository()

	templates, err := template.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	cacheStore := cache.NewRedisStore(redisClient, 10*time.Minute)
	engine := contextengine.New(cacheStore, conversations, customerContexts, personalizationConfigs, templates, 20)

	registry := prometheus.NewRegistry()
	metricsCollector := metrics.New(registry)
	templates.SetMetrics(metricsCollector)

	llmClient := llm.New(llm.Config{
		Endpoint:        llmServer.URL,
		APIKey:          "load-test-key",
		Model:           "gemini-2.5-flash",
		Timeout:         2 * time.Second,
		MaxAttempts:     2,
		BackoffBase:     5 * time.Millisecond,
		BackoffCap:      20 * time.Millisecond,
		BreakerLimit:    50,
		BreakerCooldown: time.Second,
	}, metricsCollector)

	gatewayClient := gateway.New(gateway.Config{
		BaseURL:     gatewayServer.URL,
		BearerToken: "load-test-token",
		Timeout:     2 * time.Second,
		MaxAttempts: 2,
		BackoffBase: 5 * time.Millisecond,
		BackoffCap:  20 * time.Millisecond,
	})

	localQueue := queue.NewLocalQueue(8192, 5, logger)
	breakerFactory := func(tenantID int64) *circuitbreaker.Breaker {
		return circuitbreaker.New(redisClient, "load:breaker:"+strconv.FormatInt(tenantID, 10), 50, 5*time.Minute)
	}

	workerHeartbeat := heartbeat.New(180 * time.Second)

	processor := worker.NewProcessor(
		localQueue,
		engine,
		llmClient,
		gatewayClient,
		conversations,
		deliveryLogs,
		breakerFactory,
		metricsCollector,
		logger,
		5,
		workerHeartbeat,
	)
	for i := 0; i < 8; i++ {
		go processor.Start(ctx)
	}

	limiter := ratelimit.New(redisClient, 100000, time.Minute)
	webhookAPI := handlers.NewWebhookAPI(tenantsRepo, localQueue, limiter, metricsCollector, handlers.WebhookConfig{
		SharedSecret: sharedSecret,
		SkewSeconds:  300,
	}, logger)
	healthAPI := handlers.NewHealthAPI(nil, nil, workerHeartbeat, metricsCollector)
	adminAPI := handlers.NewAdminAPI(localQueue)

	router := httpserver.NewRouter(httpserver.RouterDependencies{
		Webhook:        webhookAPI,
		Health:         healthAPI,
		Admin:          adminAPI,
		Registerer:     registry,
		Logger:         logger,
		RateLimitRPS:   100000,
		RateLimitBurst: 100000,
	})

	server := httptest.NewServer(router)
	return &benchmarkEnv{
		server: server,
		cancel: func() {
			cancelWorker()
			server.Close()
			llmServer.Close()
			gatewayServer.Close()
			redisClient.Close()
			miniRedisServer.Close()
		},
	}, nil
}

func postSignedWebhook(client *http.Client, url string, body []byte, expectedStatus int) error {
	ts := time.Now().Unix()
	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("X-Company-Domain", "load.local")
	request.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	request.Header.Set("X-Signature", signBody(sharedSecret, ts, body))

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		raw, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(raw))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func signBody(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10) + "."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{
					durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0,
				}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
