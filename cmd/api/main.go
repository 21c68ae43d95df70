package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduler/cmd/mainconfig"
	"github.com/wolfman30/clinic-scheduler/internal/api/router"
	"github.com/wolfman30/clinic-scheduler/internal/app/bootstrap"
	"github.com/wolfman30/clinic-scheduler/internal/booking"
	"github.com/wolfman30/clinic-scheduler/internal/calendar"
	"github.com/wolfman30/clinic-scheduler/internal/clinicapi"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/dashboard"
	"github.com/wolfman30/clinic-scheduler/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-scheduler/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting clinic scheduler gateway",
		"env", cfg.Env,
		"port", cfg.Port,
		"backend", cfg.BackendBaseURL,
		"push_source", cfg.PushSource,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	gw, err := buildGateway(cfg, redisClient, prometheus.NewRegistry(), logger)
	if err != nil {
		logger.Error("failed to wire gateway", "error", err)
		os.Exit(1)
	}
	wait := bootstrap.Supervise(ctx, logger, gw.tasks...)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      gw.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	stop()
	gw.close()
	if err := wait(); err != nil {
		logger.Warn("background task ended with error", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// gateway is the wired HTTP surface plus the loops that feed it.
type gateway struct {
	handler http.Handler
	tasks   []bootstrap.Task
	close   func()
}

func setupMetrics(reg *prometheus.Registry) (http.Handler, *metrics.SchedulingMetrics) {
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewSchedulingMetrics(reg)
}

func buildGateway(cfg *appconfig.Config, redisClient *redis.Client, reg *prometheus.Registry, logger *logging.Logger) (*gateway, error) {
	metricsHandler, m := setupMetrics(reg)
	loc := cfg.Location()

	client := mainconfig.NewClinicClient(cfg, m, logger)

	bus := notify.NewBus(m, logger)
	source, err := bootstrap.BuildPushSource(cfg, redisClient, logger)
	if err != nil {
		return nil, err
	}

	feed := dashboard.NewFeed(client, bootstrap.BuildFeedCache(redisClient, logger), cfg.AppointmentCacheTTL, m, logger)
	detach := feed.Attach(bus)

	svc := dashboard.NewService(client, feed, dashboard.Options{
		Grid:      mainconfig.GridConfig(cfg),
		Builder:   calendar.NewBuilder(loc),
		Announcer: bootstrap.BuildAnnouncer(cfg, redisClient),
		Observer:  m,
	}, logger)

	bookingHandler := handlers.NewBookingHandler(handlers.BookingConfig{
		Backend: func(s clinicapi.Session) booking.Backend { return client.WithSession(s) },
		Appointments: func(s clinicapi.Session) handlers.PatientAppointments {
			return client.WithSession(s)
		},
		Wizard: booking.Options{
			Pricing:      mainconfig.Pricing(cfg),
			Location:     loc,
			FetchTimeout: cfg.BackendTimeout,
			Observer:     m,
		},
		MaxActive:  cfg.WizardSessionLimit,
		SessionTTL: cfg.WizardSessionTTL,
		Gauge:      m,
	}, logger)

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	handler := router.New(&router.Config{
		Logger:             logger,
		StaffHandler:       handlers.NewStaffHandler(svc, loc, logger),
		BookingHandler:     bookingHandler,
		MetricsHandler:     metricsHandler,
		RateLimiter:        limiter,
		StaffAPIKey:        cfg.StaffAPIKey,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	tasks := []bootstrap.Task{{
		Name: "rate-limit-sweeper",
		Run: func(ctx context.Context) error {
			limiter.Run(ctx)
			return nil
		},
	}}
	if source != nil {
		tasks = append(tasks, bootstrap.Task{
			Name: "push-" + source.Name(),
			Run:  func(ctx context.Context) error { return source.Run(ctx, bus) },
		})
	}

	closeAll := func() {
		detach()
		bookingHandler.Close()
	}
	return &gateway{handler: handler, tasks: tasks, close: closeAll}, nil
}
