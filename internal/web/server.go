// Package web provides the thin HTTP submission surface for the import
// pipeline: create an import, enqueue a processing or resume run, initiate
// batched deletion, and inspect status and error reports. All heavy work
// happens on the job workers; handlers only persist state and enqueue.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/csvflow/importer/internal/config"
	"github.com/csvflow/importer/internal/importer"
	"github.com/csvflow/importer/internal/jobs"
	"github.com/csvflow/importer/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP server for the import service.
type Server struct {
	imports *store.Imports
	deleter *importer.Deleter
	queue   *jobs.Queue
	blobs   importer.BlobStore
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server wired to the pipeline's collaborators.
func NewServer(imports *store.Imports, deleter *importer.Deleter, queue *jobs.Queue, blobs importer.BlobStore, cfg *config.Config) *Server {
	s := &Server{
		imports: imports,
		deleter: deleter,
		queue:   queue,
		blobs:   blobs,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/import-types", s.handleListImportTypes)

		r.Route("/imports", func(r chi.Router) {
			r.Post("/", s.handleCreateImport)
			r.Get("/", s.handleListImports)

			r.Route("/{importID}", func(r chi.Router) {
				r.Get("/", s.handleGetImport)
				r.Post("/process", s.handleProcessImport)
				r.Post("/delete", s.handleDeleteImport)
				r.Get("/errors", s.handleDownloadErrors)
			})
		})
	})
}

// Start begins serving HTTP requests. Blocks until the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
