// Package server exposes invoice extraction over HTTP.
//
// Routes:
//   - GET  /         plain-text liveness check
//   - GET  /health   JSON health check
//   - POST /extract  multipart upload (field "invoice" or "file")
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"invoice-extractor/internal/document"
	"invoice-extractor/internal/logger"
	"invoice-extractor/pkg/models"
)

// Processor extracts invoice fields from a document.
type Processor interface {
	Process(ctx context.Context, doc *document.Document) (*models.Extraction, error)
}

// Options configures the HTTP surface.
type Options struct {
	Addr           string
	RequestTimeout time.Duration
	MaxUploadBytes int64
	MaxConcurrent  int
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string
	Version        string

	// ShutdownTimeout is how long in-flight requests may run after a
	// shutdown signal before their contexts are canceled.
	ShutdownTimeout time.Duration
}

const defaultShutdownTimeout = 30 * time.Second

// Server is the HTTP API.
type Server struct {
	processor Processor
	opts      Options
	limiter   *rate.Limiter
	semaphore chan struct{} // bounds concurrent extractions
	router    http.Handler
	log       zerolog.Logger

	// inflight counts running extractions so shutdown can wait for their
	// temporary files to be removed.
	inflight sync.WaitGroup
}

// New creates the server and its routes.
func New(processor Processor, opts Options) *Server {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = float64(rate.Inf)
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = max(defaultShutdownTimeout, opts.RequestTimeout)
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		processor: processor,
		opts:      opts,
		limiter:   rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		semaphore: make(chan struct{}, opts.MaxConcurrent),
		log:       logger.WithComponent("server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.accessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors(s.opts.AllowedOrigins))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.With(s.rateLimit, s.trackInflight).Post("/extract", s.handleExtract)

	return r
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe listens on Options.Addr and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully. Requests still running after ShutdownTimeout have their
// contexts canceled; Serve returns only once every extraction has finished
// its cleanup.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info().Dur("timeout", s.opts.ShutdownTimeout).Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Shutdown timed out, canceling in-flight extractions")
		cancelRequests()
		_ = srv.Close()
	}

	s.inflight.Wait()
	return err
}

// trackInflight registers a request with the shutdown wait group.
func (s *Server) trackInflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.inflight.Add(1)
		defer s.inflight.Done()
		next.ServeHTTP(w, r)
	})
}
