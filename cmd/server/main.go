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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"guardrail/internal/app"
	"guardrail/internal/guardrail/handler"
	jwttoken "guardrail/internal/jwt_token"
	"guardrail/internal/overdraft"
	"guardrail/internal/platform/config"
	"guardrail/internal/platform/httpserver"
	"guardrail/internal/platform/logger"
	"guardrail/internal/platform/metrics"
	"guardrail/internal/usage/archive"
	"guardrail/pkg/platform/httputil"
	"guardrail/pkg/platform/middleware/admin"
	"guardrail/pkg/platform/middleware/auth"
	"guardrail/pkg/platform/middleware/request"
	"guardrail/pkg/platform/middleware/requesttime"
	"guardrail/pkg/requestcontext"
)

const (
	shutdownTimeout = 10 * time.Second
	healthTimeout   = 2 * time.Second
	redeliverBatch  = 100
)

// main wires the guardrail engine, exposes the HTTP router and runs the
// background workers until SIGINT or SIGTERM.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("guardrail exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpserver.New(cfg.Addr, newRouter(a, cfg, log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting guardrail", "addr", cfg.Addr, "backend", cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := a.Dispatcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		every(gctx, cfg.SweepInterval, func(ctx context.Context) {
			result, err := a.Workflow.Sweep(ctx, time.Now().UTC())
			if err != nil {
				log.ErrorContext(ctx, "overdraft sweep failed", "error", err)
				return
			}
			if result != (overdraft.SweepResult{}) {
				log.DebugContext(ctx, "overdraft sweep done",
					"expired", result.Expired,
					"auto_denied", result.AutoDenied,
					"activated", result.Activated,
					"alerts", result.Alerts,
				)
			}
		})
		return nil
	})
	g.Go(func() error {
		every(gctx, cfg.RedeliverInterval, func(ctx context.Context) {
			n, err := a.Dispatcher.Redeliver(ctx, redeliverBatch)
			if err != nil {
				log.ErrorContext(ctx, "notification redelivery failed", "error", err)
				return
			}
			if n > 0 {
				log.InfoContext(ctx, "notifications requeued", "count", n)
			}
		})
		return nil
	})
	if cfg.ArchivePath != "" {
		store, err := archive.NewSQLite(cfg.ArchivePath)
		if err != nil {
			return err
		}
		defer store.Close()
		g.Go(func() error {
			every(gctx, 24*time.Hour, func(ctx context.Context) {
				result, err := a.Tracker.Archive(ctx, store, time.Now().UTC().Add(-cfg.ArchiveAfter))
				if err != nil {
					log.ErrorContext(ctx, "usage archive failed", "error", err)
					return
				}
				log.InfoContext(ctx, "usage archived",
					"records", result.Records,
					"before_day", result.BeforeDay,
				)
			})
			return nil
		})
	}

	return g.Wait()
}

func newRouter(a *app.App, cfg config.Server, log *slog.Logger) http.Handler {
	httpMetrics := metrics.New()
	h := handler.New(a.Engine, a.Notifier, log)
	reviewers := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(httpMetrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := a.Health(ctx); err != nil {
			log.WarnContext(ctx, "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":     "unavailable",
				"request_id": requestcontext.RequestID(ctx),
			})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"status":     "ok",
			"request_id": requestcontext.RequestID(ctx),
		})
	})
	r.Handle("/metrics", metrics.Handler())

	h.RegisterSubmission(r)
	h.RegisterNotifications(r)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireReviewer(reviewers, log))
		h.RegisterReview(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.AdminToken, log))
		h.RegisterCompliance(r)
	})
	return r
}

// every runs fn on each tick until ctx is done. A non-positive interval
// disables the worker.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
