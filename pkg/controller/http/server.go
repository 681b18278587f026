package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/tributary/pkg/usecase"
	"github.com/secmon-lab/tributary/pkg/utils/logging"
)

type Server struct {
	router   *chi.Mux
	uc       *usecase.UseCases
	apiToken string
}

type Options func(*Server)

// WithAPIToken requires "Authorization: Bearer <token>" on every /api route
func WithAPIToken(token string) Options {
	return func(s *Server) {
		s.apiToken = token
	}
}

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)

	r.Route("/api", func(r chi.Router) {
		if s.apiToken != "" {
			r.Use(tokenAuthMiddleware(s.apiToken))
		}

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", s.listConnections)
			r.Post("/", s.createConnection)

			r.Route("/{connectionID}", func(r chi.Router) {
				r.Get("/", s.getConnection)
				r.Patch("/", s.updateConnection)
				r.Delete("/", s.deleteConnection)
				r.Post("/test", s.testConnection)
				r.Get("/containers", s.listContainers)

				r.Post("/sync", s.syncConnection)
				r.Get("/sync-runs", s.listSyncRuns)

				r.Get("/work-items", s.listWorkItems)
				r.Get("/commits", s.listCommits)
				r.Get("/pages", s.listPages)

				r.Route("/mappings", func(r chi.Router) {
					r.Get("/", s.listMappings)
					r.Post("/", s.createMapping)
					r.Post("/discover", s.discoverMappings)
					r.Put("/{mappingID}", s.assignMapping)
					r.Delete("/{mappingID}", s.deleteMapping)
				})
			})
		})
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		logger := logging.Default().With("request_id", middleware.GetReqID(r.Context()))
		r = r.WithContext(logging.With(r.Context(), logger))

		defer func() {
			logger.Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
