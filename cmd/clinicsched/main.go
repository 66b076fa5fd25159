package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ariel-montero/clinicsched/internal/handlers"
	"github.com/ariel-montero/clinicsched/internal/locks"
	"github.com/ariel-montero/clinicsched/internal/outbox"
	"github.com/ariel-montero/clinicsched/internal/schedule"
	"github.com/ariel-montero/clinicsched/internal/storage"
	"github.com/ariel-montero/clinicsched/libs/config"
	"github.com/ariel-montero/clinicsched/libs/db"
	"github.com/ariel-montero/clinicsched/libs/httpx"
	"github.com/ariel-montero/clinicsched/libs/kafkax"
	otelx "github.com/ariel-montero/clinicsched/libs/otel"
	"github.com/ariel-montero/clinicsched/libs/runtime"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "clinicsched")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository(pool)
	schedulingRepo := storage.NewSchedulingRepository(pool, outboxRepo)
	appointmentRepo := storage.NewAppointmentRepository(pool, outboxRepo)
	therapistRepo := storage.NewTherapistRepository(pool)
	machineRepo := storage.NewMachineRepository(pool)
	patientRepo := storage.NewPatientRepository(pool)
	idemRepo := storage.NewIdempotencyRepository(pool)

	var slotLocker schedule.SlotLocker = schedule.NopLocker{}
	var rateLimitMW httpx.Middleware
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		lockTTL := time.Duration(config.Int("SLOT_LOCK_TTL_SECONDS", 10)) * time.Second
		slotLocker = locks.NewSlotLocker(rdb, lockTTL, logger)
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("redis enabled", "addr", addr, "slot_lock_ttl", lockTTL)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Warn("redis not configured; slot locking disabled, rate limiting in-memory")
	}

	engine := schedule.NewEngine(schedulingRepo, slotLocker, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(engine, idemRepo, logger)
	appointmentHandler := handlers.NewAppointmentHandler(appointmentRepo, logger)
	therapistHandler := handlers.NewTherapistHandler(therapistRepo, logger)
	machineHandler := handlers.NewMachineHandler(machineRepo, logger)
	patientHandler := handlers.NewPatientHandler(patientRepo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/slots/propose", bookingHandler.Propose)
	mux.HandleFunc("/api/v1/bookings/preview", bookingHandler.Preview)
	mux.HandleFunc("/api/v1/appointments/book", bookingHandler.Book)
	mux.HandleFunc("/api/v1/series/book", bookingHandler.BookSeries)
	mux.HandleFunc("/api/v1/appointments", appointmentHandler.List)
	mux.HandleFunc("/api/v1/appointments/update", appointmentHandler.Update)
	mux.HandleFunc("/api/v1/appointments/delete", appointmentHandler.Delete)
	mux.HandleFunc("/api/v1/therapists", therapistHandler.List)
	mux.HandleFunc("/api/v1/therapists/create", therapistHandler.Create)
	mux.HandleFunc("/api/v1/therapists/availability", therapistHandler.SetAvailability)
	mux.HandleFunc("/api/v1/therapists/delete", therapistHandler.Delete)
	mux.HandleFunc("/api/v1/machines", machineHandler.List)
	mux.HandleFunc("/api/v1/machines/create", machineHandler.Create)
	mux.HandleFunc("/api/v1/machines/status", machineHandler.SetStatus)
	mux.HandleFunc("/api/v1/patients", patientHandler.List)
	mux.HandleFunc("/api/v1/patients/create", patientHandler.Create)
	mux.HandleFunc("/api/v1/patients/lookup", patientHandler.Lookup)

	bodyLimit := int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))
	requestTimeout := time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders:   parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,Idempotency-Key")),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           time.Duration(config.Int("CORS_MAX_AGE_SECONDS", 600)) * time.Second,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(bodyLimit),
		httpx.WithTimeout(requestTimeout),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, service)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
