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
	"go.uber.org/zap/zapcore"

	"github.com/DoyleJ11/vote-admin/internal/audit"
	"github.com/DoyleJ11/vote-admin/internal/backend"
	"github.com/DoyleJ11/vote-admin/internal/config"
	"github.com/DoyleJ11/vote-admin/internal/httpapi"
	"github.com/DoyleJ11/vote-admin/internal/hub"
	"github.com/DoyleJ11/vote-admin/internal/push"
	"github.com/DoyleJ11/vote-admin/internal/summary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	store, closeStore, err := openAudit(ctx, cfg, log)
	if err != nil {
		log.Fatal("audit store", zap.Error(err))
	}
	defer closeStore()

	client := backend.NewClient(cfg.BackendURL, cfg.HTTPTimeout, log.Named("backend"))

	h := hub.NewHub(ctx, func(ctx context.Context, token string) *summary.View {
		return summary.Open(ctx, summary.Options{
			Source: client.WithToken(token),
			Push: push.Config{
				URL:            cfg.BackendWSURL,
				Token:          token,
				ReconnectDelay: cfg.ReconnectDelay,
			},
			PollInterval: cfg.PollInterval,
			Log:          log.Named("summary"),
		})
	}, log.Named("hub"))

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Backend:    func(token string) httpapi.Backend { return client.WithToken(token) },
		Hub:        h,
		Audit:      store,
		AuditLimit: cfg.AuditLimit,
		Log:        log.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("backend", cfg.BackendURL),
			zap.String("push", cfg.BackendWSURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	h.Shutdown()
	log.Info("stopped")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// openAudit uses postgres when DATABASE_URL is set and an in-memory ring
// otherwise.
func openAudit(ctx context.Context, cfg config.Config, log *zap.Logger) (audit.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Info("audit store: memory", zap.Int("capacity", cfg.AuditLimit))
		return audit.NewMemoryStore(cfg.AuditLimit), func() {}, nil
	}
	s, err := audit.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	log.Info("audit store: postgres")
	return s, func() { _ = s.Close() }, nil
}
