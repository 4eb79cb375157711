package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"lostfound/internal/api"
	"lostfound/internal/audit"
	"lostfound/internal/config"
	"lostfound/internal/db"
	"lostfound/internal/janitor"
	"lostfound/internal/logging"
	"lostfound/internal/notify"
	"lostfound/internal/ratelimit"
	"lostfound/internal/security"
	"lostfound/internal/service"
	"lostfound/internal/session"
	"lostfound/internal/store"
	"lostfound/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	sqdb, dialect, err := db.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer sqdb.Close()
	if err := db.Migrate(sqdb, dialect); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	st := store.New(sqdb, dialect)
	var backend ratelimit.Backend = st
	if cfg.Security.RateLimitBackend == "memory" {
		backend = ratelimit.NewMemory()
	}
	sec := security.New(cfg, st, ratelimit.New(backend))
	sender, err := notify.NewSender(cfg, log)
	if err != nil {
		return fmt.Errorf("notify sender: %w", err)
	}
	svc := service.New(cfg, st, sec, audit.New(st, log), sender, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.BootstrapAdmin(ctx); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	go janitor.New(cfg, st, log).Run(ctx)

	hsrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(cfg, svc, session.NewManager(cfg, st), log),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		info := version.Current()
		log.Info("listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("db", dialect),
			zap.String("version", info.Version),
			zap.String("commit", info.Commit),
		)
		errCh <- hsrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return hsrv.Shutdown(shutdownCtx)
}
