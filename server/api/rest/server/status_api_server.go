package server

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pipewright/pipewright/common/logger"
)

type StatusAPIServerConfig struct {
	HTTPServerConfig
}

// StatusAPIServer serves the read-only build status API.
type StatusAPIServer struct {
	*HTTPServer
}

func NewStatusAPIServer(router *StatusAPIRouter, config StatusAPIServerConfig, logFactory logger.LogFactory) *StatusAPIServer {
	return &StatusAPIServer{
		HTTPServer: NewHTTPServer(router, config.HTTPServerConfig, logFactory),
	}
}

type StatusAPIRouter struct {
	chi.Router
}

func NewStatusAPIRouter(
	build *BuildAPI,
	root *RootAPI,
	logFactory logger.LogFactory) *StatusAPIRouter {

	logger := logFactory("StatusAPIRouter").
		WithField("version", "v1")

	middleware.DefaultLogger = middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger, NoColor: true})
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Compress(6))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300, // Maximum value not ignored by any of major browsers
		}))

		r.Route("/v1", func(r chi.Router) {
			r.Get("/", root.GetRootDocument)
			r.Get("/ping", root.Ping)
			r.Route("/builds", func(r chi.Router) {
				r.Get("/", build.List)
				r.Route("/{build_id}", func(r chi.Router) {
					r.Get("/", build.Get)
				})
			})
		})
	})

	return &StatusAPIRouter{Router: r}
}
