package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the handlers and browser settings of the HTTP surface.
type RouterConfig struct {
	Learners       *LearnerHandler
	Instructors    *InstructorHandler
	Notifications  *WSHandler
	AllowedOrigins []string
}

// NewRouter wires every route of the service.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if cfg.Notifications != nil {
		r.Get("/ws/notifications", cfg.Notifications.ServeWS)
	}
	if cfg.Learners != nil {
		r.Route("/learners/{learnerID}", cfg.Learners.Routes)
	}
	if cfg.Instructors != nil {
		r.Route("/instructor", cfg.Instructors.Routes)
	}
	return r
}
