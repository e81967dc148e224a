// Package webhook exposes the daemon over HTTP: action triggers that are
// published to the event bus, and read-only views of lights, scenes,
// schedules and the rate-limit budget.
package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lifxd/internal/eventbus"
	"github.com/dokzlo13/lifxd/internal/lifx"
	"github.com/dokzlo13/lifxd/internal/scheduler"
)

// Actions reports which action names can be triggered.
type Actions interface {
	HasAction(name string) bool
}

// Lights is the read side of the LIFX client used by the server.
type Lights interface {
	ListLights(ctx context.Context, selector string) ([]lifx.Light, error)
	ListScenes(ctx context.Context) ([]lifx.Scene, error)
	RateLimit() *lifx.RateLimit
}

// LightCache serves the last refreshed light list.
type LightCache interface {
	Lights() ([]lifx.Light, time.Time, error)
}

// Schedules lists the occurrences of a calendar day.
type Schedules interface {
	Day(day time.Time) []scheduler.Entry
}

// Deps are the collaborators behind the routes. Nil Cache or Schedules
// disable the matching routes.
type Deps struct {
	Bus       *eventbus.Bus
	Actions   Actions
	Lights    Lights
	Cache     LightCache
	Schedules Schedules
}

// Server is an HTTP server that receives webhooks and publishes events to the bus.
type Server struct {
	addr       string
	deps       Deps
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a new webhook server.
func NewServer(host string, port int, deps Deps) *Server {
	s := &Server{
		addr: fmt.Sprintf("%s:%d", host, port),
		deps: deps,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/actions/{name}", s.handleAction)
	r.Get("/lights", s.handleLights)
	r.Get("/lights/{selector}", s.handleLights)
	r.Get("/scenes", s.handleScenes)
	r.Get("/ratelimit", s.handleRateLimit)
	if deps.Cache != nil {
		r.Get("/cache/lights", s.handleCachedLights)
	}
	if deps.Schedules != nil {
		r.Get("/schedules", s.handleSchedules)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.router = r
	return s
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the webhook server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting webhook server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Webhook server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// requestLogger logs every request at debug level
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Webhook request")
	})
}
