/**
 * HTTP API for the detection worker.
 *
 * Exposes task submission, status, cancellation and signed-archive download.
 * Single-process deployments mount this in front of the in-memory
 * orchestrator; the handlers never touch pipeline internals directly.
 */

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aerovision/detect-worker/internal/logging"
	"github.com/aerovision/detect-worker/internal/storage"
	"github.com/aerovision/detect-worker/internal/task"
)

// Config holds the HTTP server settings.
type Config struct {
	Addr      string
	UploadDir string
	WorkDir   string

	// Per-job pipeline defaults applied to submissions.
	ScreenThreshold float64
	DetectThreshold float64
	DedupeIoU       float64

	// MaxUploadBytes caps multipart request bodies. Zero means 512 MiB.
	MaxUploadBytes int64
}

// Server wires the HTTP API to the orchestrator.
type Server struct {
	cfg      Config
	orch     *task.Orchestrator
	signer   *task.TokenSigner
	archives *storage.ArchiveStore
	log      *logging.Logger
	httpSrv  *http.Server
}

// New creates a server. Start must be called to begin serving.
func New(cfg Config, orch *task.Orchestrator, signer *task.TokenSigner,
	archives *storage.ArchiveStore, log *logging.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 512 << 20
	}
	s := &Server{
		cfg:      cfg,
		orch:     orch,
		signer:   signer,
		archives: archives,
		log:      log,
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)

	r.Route("/web", func(r chi.Router) {
		r.Post("/predict", s.handlePredict)
		r.Get("/status/{taskID}", s.handleStatus)
		r.Post("/cancel/{taskID}", s.handleCancel)
	})

	r.Get("/download/{token}", s.handleDownload)

	return r
}

// requestLogger logs one line per request with latency and status.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"requestID", middleware.GetReqID(r.Context()),
		)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.cfg.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}
