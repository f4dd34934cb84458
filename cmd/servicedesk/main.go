package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"servicedesk/internal/attachments"
	"servicedesk/internal/cache"
	"servicedesk/internal/config"
	"servicedesk/internal/httpapi"
	"servicedesk/internal/ingest"
	"servicedesk/internal/metrics"
	"servicedesk/internal/omni"
	"servicedesk/internal/realtime"
	"servicedesk/internal/store/postgres"
	"servicedesk/internal/telemetry"
	"servicedesk/internal/worker"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "servicedesk"

func main() {
	cfg := config.Load()

	shutdownTracing := telemetry.Setup(telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		SampleRatio: cfg.TraceSampleRatio,
	})

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	rules, err := config.LoadClaimRules(cfg.ClaimRulesFile)
	if err != nil {
		log.Fatalf("claim rules: %v", err)
	}

	store := postgres.NewStore(pool, postgres.Options{
		Rules:                 rules,
		HighPriorityThreshold: cfg.HighPriorityThreshold,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	hub := realtime.New()
	hub.OnDrop(recorder.RealtimeDropped)

	var monitorCache httpapi.MonitorCache
	var invalidator ingest.CacheInvalidator
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()
		c := cache.NewMonitorCache(redisClient, cfg.MonitorCache)
		monitorCache = c
		invalidator = c
		log.Printf("monitor cache enabled addr=%s ttl=%s", cfg.RedisAddr, cfg.MonitorCache)
	}

	ingestor := ingest.NewService(store, invalidator, hub, recorder)
	if cfg.MQTTBroker != "" {
		subscriber, err := ingest.Subscribe(ingest.SubscriberConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTTopic,
		}, ingestor)
		if err != nil {
			log.Fatalf("mqtt subscribe: %v", err)
		}
		defer subscriber.Close()
	}

	omniClient := omni.NewClient(omni.Config{
		Enabled:         cfg.OmniEnabled,
		APIURL:          cfg.OmniAPIURL,
		Token:           cfg.OmniAPIToken,
		UpdateStatusURL: cfg.OmniUpdateStatusURL,
		Timeout:         cfg.OmniTimeout,
	}, store)
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if omniClient.Enabled() {
		log.Printf("omni mirroring enabled url=%s", cfg.OmniAPIURL)
		if cfg.OmniRetryInterval > 0 {
			retry := worker.New(store, omniClient, recorder, worker.Config{
				BatchSize:   cfg.OmniRetryBatchSize,
				MaxAttempts: cfg.OmniRetryMaxAttempts,
				CallTimeout: cfg.OmniTimeout,
			})
			go worker.Start(workerCtx, cfg.OmniRetryInterval, retry)
		}
	}

	handler := httpapi.NewHandler(store, httpapi.Options{
		Rules:         rules,
		Cache:         monitorCache,
		Ingestor:      ingestor,
		Publisher:     hub,
		Omni:          omniClient,
		Files:         attachments.NewStorage(cfg.UploadDir),
		Metrics:       recorder,
		MirrorTimeout: cfg.OmniTimeout,
	})
	router := handler.Routes()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.PathPrefix("/realtime/").Handler(realtime.NewHandler("/realtime", store, hub, rules))

	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:   cfg.RateLimitPerMinute,
		IPBurst:       cfg.RateLimitBurst,
		UserPerMinute: cfg.UserRateLimitPerMinute,
		UserBurst:     cfg.UserRateLimitBurst,
	})
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Session-ID", "X-Request-ID", "X-API-Key"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Cache"},
		AllowCredentials: true,
	})

	var app http.Handler = httpapi.AuthMiddleware(store, limiter.UserMiddleware(router))
	app = limiter.Middleware(app)
	app = corsHandler.Handler(app)
	app = httpapi.LoggingMiddleware(recorder, app)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(app, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// SockJS streaming transports hold responses open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("%s listening on %s", serviceName, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	tracingCtx, tracingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer tracingCancel()
	if err := shutdownTracing(tracingCtx); err != nil {
		log.Printf("tracing shutdown error: %v", err)
	}
}
