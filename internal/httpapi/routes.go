package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/vote-admin/internal/audit"
	"github.com/DoyleJ11/vote-admin/internal/hub"
	"github.com/DoyleJ11/vote-admin/internal/ws"
)

type Deps struct {
	Backend    BackendFor
	Hub        *hub.Hub
	Audit      audit.Store
	AuditLimit int
	Log        *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	if d.Audit == nil {
		d.Audit = audit.NewMemoryStore(d.AuditLimit)
	}
	a := &api{backend: d.Backend, audit: d.Audit, auditLimit: d.AuditLimit, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Post("/api/login", a.Login)
	if d.Hub != nil {
		r.Get("/ws", ws.Handler(d.Hub, log.Named("ws")))
	}

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(RequireToken)
		r.Get("/api/summary", a.Summary)
		r.Post("/api/candidates", a.CreateCandidate)
		r.Post("/api/votes/verify", a.VerifyVotes)
		r.Post("/api/votes/reset", a.ResetVotes)
		r.Get("/api/audit", a.Audit)
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}
