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

	"github.com/gin-gonic/gin"

	"github.com/Devon-White/livewire/internal/callinfo"
	"github.com/Devon-White/livewire/internal/config"
	"github.com/Devon-White/livewire/internal/httpapi"
	"github.com/Devon-White/livewire/internal/members"
	"github.com/Devon-White/livewire/internal/routing"
	"github.com/Devon-White/livewire/internal/session"
	"github.com/Devon-White/livewire/internal/subscribers"
	"github.com/Devon-White/livewire/internal/users"
	"github.com/Devon-White/livewire/pkg/logger"
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

	sessions, err := session.NewManager(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		log.Error("session init failed", "err", err)
		os.Exit(1)
	}

	// All state is in-process by design: losing the process loses live
	// call context and presence, which is acceptable for this demo.
	calls := callinfo.NewStore(log)
	directory := subscribers.NewDirectory(log)
	memberDir := members.NewDirectory(log)
	accounts := users.NewStore(log)

	if cfg.Seed.TestUser {
		if err := accounts.SeedTestUser(); err != nil {
			log.Error("test user seed failed", "err", err)
			os.Exit(1)
		}
	}
	if cfg.Seed.SampleMember {
		memberDir.SeedSample()
	}

	h := httpapi.Handlers{
		Sessions:    sessions,
		Calls:       calls,
		Subscribers: directory,
		Members:     memberDir,
		Users:       accounts,
		Router: &routing.Orchestrator{
			Calls:       calls,
			Subscribers: directory,
			PublicURL:   cfg.App.PublicURL,
			Log:         log,
		},
		NewClient: httpapi.DefaultClientFactory(log),
		PublicURL: cfg.App.PublicURL,
		Log:       log,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(sessions.Middleware())

	registerRoutes(r, h)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "public_url", cfg.App.PublicURL)
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
