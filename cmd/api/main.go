package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"academy-caller/internal/calls"
	"academy-caller/internal/callstate"
	"academy-caller/internal/config"
	"academy-caller/internal/httpapi"
	"academy-caller/internal/messaging"
	"academy-caller/internal/push"
	"academy-caller/internal/sched"
	"academy-caller/internal/students"
	"academy-caller/internal/telephony"
	"academy-caller/pkg/logger"
	"academy-caller/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	var provider telephony.Provider
	if cfg.Twilio.Simulated() {
		provider = telephony.NewSimulatedProvider()
		log.Warn("call provider credentials absent, running simulated")
	} else {
		provider = telephony.NewTwilioProvider(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, log)
	}

	// Push fan-out: registry of observer channels, one dispatch loop.
	registry := push.NewRegistry(cfg.Push.MaxObservers, log)
	dispatcher := push.NewDispatcher(registry, log)
	go dispatcher.Run(rootCtx)

	store := callstate.NewStore()
	studentSvc := students.NewService(students.NewPostgresRepo(db))
	callSvc := calls.NewService(store, provider, dispatcher, calls.NewPostgresRepo(db), studentSvc, calls.Options{
		FromNumber:         cfg.Twilio.FromNumber,
		CallbackBaseURL:    cfg.Twilio.CallbackBaseURL,
		RecordCalls:        true,
		TerminalRetention:  cfg.Calls.TerminalRetention,
		MaxRecordAge:       cfg.Calls.MaxRecordAge,
		InboundRingTimeout: cfg.Calls.InboundRingTimeout,
	}, log)
	msgSvc := messaging.NewService(provider, messaging.NewPostgresRepo(db), messaging.NewRedisUnreadCounter(rdb), messaging.Options{
		FromNumber:      cfg.Twilio.FromNumber,
		CallbackBaseURL: cfg.Twilio.CallbackBaseURL,
	}, log)
	videoSvc := telephony.NewVideoTokenService(cfg.Twilio.AccountSID, cfg.Twilio.APIKeySID, cfg.Twilio.APIKeySecret)

	// Background cycles: observer liveness sweep and call record GC.
	heartbeat := &sched.Periodic{
		Name:     "observer-sweep",
		Interval: cfg.Push.HeartbeatInterval,
		Fn:       func(now time.Time) { registry.SweepDead(now) },
	}
	go heartbeat.Start(rootCtx)

	gc := &sched.Periodic{
		Name:     "call-gc",
		Interval: cfg.Calls.GCInterval,
		Fn:       func(now time.Time) { callSvc.CollectStale(now) },
	}
	go gc.Start(rootCtx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, app{
		db: db,
		handlers: httpapi.Handlers{
			Calls:    callSvc,
			Messages: msgSvc,
			Students: studentSvc,
			Video:    videoSvc,
		},
		webhooks: httpapi.WebhookHandlers{Calls: callSvc, Messages: msgSvc, Log: log},
		push:     push.NewHandler(registry),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "provider", provider.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
