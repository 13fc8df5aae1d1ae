package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/welanie/dealpipe/internal/metrics"
	"github.com/welanie/dealpipe/internal/notify"
	"github.com/welanie/dealpipe/internal/product"
)

// MessageQueue accepts captured messages into the pending backlog.
type MessageQueue interface {
	Enqueue(ctx context.Context, msg product.RawMessage) error
}

// RecordLister reads stored records for operator queries.
type RecordLister interface {
	List(ctx context.Context, limit int) ([]product.StoredRecord, error)
}

// UserStore manages the Telegram users registered for notifications.
type UserStore interface {
	Upsert(ctx context.Context, user notify.User) error
	Get(ctx context.Context, id int64) (notify.User, error)
	List(ctx context.Context) ([]notify.User, error)
}

// Server wires HTTP handlers to the queue, stores, and notifier.
type Server struct {
	router  chi.Router
	queue   MessageQueue
	records RecordLister
	users   UserStore
	sender  notify.Sender
	idGen   product.IDGenerator
	clock   product.Clock
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The sender may
// be nil, in which case notification requests report 503.
func NewServer(
	queue MessageQueue,
	records RecordLister,
	users UserStore,
	sender notify.Sender,
	idGen product.IDGenerator,
	clock product.Clock,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		queue:   queue,
		records: records,
		users:   users,
		sender:  sender,
		idGen:   idGen,
		clock:   clock,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.submitMessage)
		r.Get("/products", s.listProducts)
		r.Route("/users", func(r chi.Router) {
			r.Post("/", s.registerUser)
			r.Get("/", s.listUsers)
		})
		r.Post("/notifications", s.sendNotification)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}
