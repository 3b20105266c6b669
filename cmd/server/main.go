package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-payables/internal/client"
	"github.com/pesio-ai/be-ap-payables/internal/config"
	"github.com/pesio-ai/be-ap-payables/internal/events"
	"github.com/pesio-ai/be-ap-payables/internal/handler"
	"github.com/pesio-ai/be-ap-payables/internal/logger"
	"github.com/pesio-ai/be-ap-payables/internal/ocr"
	"github.com/pesio-ai/be-ap-payables/internal/paymentmethod"
	"github.com/pesio-ai/be-ap-payables/internal/rollup"
	"github.com/pesio-ai/be-ap-payables/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
		Version:     cfg.ServiceVersion,
	})

	log.Info().
		Str("service", cfg.ServiceName).
		Str("version", cfg.ServiceVersion).
		Str("environment", cfg.Environment).
		Msg("Starting Payables Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Invoicing API client
	api, closeAPI, err := newInvoicingClient(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create invoicing client")
	}
	defer closeAPI()

	opts := service.Options{
		CurrencyMode: rollup.ParseMinorUnitMode(cfg.CurrencyMinorUnitMode),
		Poll: ocr.PollConfig{
			Interval:    cfg.OCRPollInterval,
			MaxInterval: cfg.OCRPollMaxInterval,
			MaxAttempts: cfg.OCRPollMaxAttempts,
			Timeout:     cfg.OCRPollTimeout,
		},
	}

	// Off-platform provisioning lock
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, using in-process provisioning lock")
		} else {
			opts.Locker = paymentmethod.NewRedisLocker(rdb, cfg.OffPlatformLockTTL, cfg.OffPlatformLockTTL)
			log.Info().Str("addr", cfg.RedisAddr).Msg("Redis provisioning lock enabled")
		}
	}

	// Lifecycle events
	nc, err := events.Connect(cfg.NATSURL, cfg.ServiceName, log)
	if err != nil {
		log.Warn().Err(err).Msg("NATS unavailable, lifecycle events disabled")
	}
	if nc != nil {
		defer nc.Drain()
		opts.Events = events.NewPublisher(nc, cfg.EventsSubject, log)
		log.Info().Str("url", cfg.NATSURL).Msg("NATS event publisher enabled")
	}

	// Document OCR
	if cfg.DocumentAIProjectID != "" && cfg.DocumentAIProcessorID != "" {
		docAI, err := ocr.NewDocumentAIService(ctx, ocr.DocumentAIConfig{
			ProjectID:       cfg.DocumentAIProjectID,
			Location:        cfg.DocumentAILocation,
			ProcessorID:     cfg.DocumentAIProcessorID,
			CredentialsFile: cfg.DocumentAICredentials,
			JobTTL:          cfg.OCRJobTTL,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Document AI client")
		}
		defer docAI.Close()
		opts.OCR = docAI
		log.Info().Str("processor", cfg.DocumentAIProcessorID).Msg("Document AI OCR enabled")
	}

	svc := service.NewService(api, opts, logger.WithComponent(log, "service"))
	httpHandler := handler.NewHTTPHandler(svc, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	httpHandler.Routes(r)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      r,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

// newInvoicingClient builds the Invoicing API client for the configured
// transport and returns its close function.
func newInvoicingClient(cfg *config.Config, log zerolog.Logger) (client.InvoicingAPI, func(), error) {
	clientLog := logger.WithComponent(log, "invoicing-client")
	if cfg.InvoicingTransport == "grpc" {
		c, err := client.NewGRPCClient(cfg.InvoicingGRPCAddr, cfg.InvoicingAPIToken, clientLog)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("addr", cfg.InvoicingGRPCAddr).Msg("Invoicing gRPC client initialized")
		return c, func() { c.Close() }, nil
	}
	c := client.NewRESTClient(cfg.InvoicingBaseURL, cfg.InvoicingAPIToken, cfg.InvoicingTimeout, clientLog)
	log.Info().Str("url", cfg.InvoicingBaseURL).Msg("Invoicing REST client initialized")
	return c, func() {}, nil
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
