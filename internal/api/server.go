// Package api exposes the HTTP control surface: exercise lifecycle,
// scenario and timeline management, media and IQ libraries, analytics and
// service health.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rangeops/excon/internal/analytics"
	"github.com/rangeops/excon/internal/config"
	"github.com/rangeops/excon/internal/exercise"
	"github.com/rangeops/excon/internal/library"
	"github.com/rangeops/excon/internal/scenario"
	"github.com/rangeops/excon/internal/status"
)

// Server wires the control surface onto the orchestrator internals.
type Server struct {
	cfg       *config.Config
	table     *exercise.Table
	loader    *scenario.Loader
	index     *scenario.Index
	store     status.Store
	media     *library.MediaLibrary
	iqlib     *library.IQLibrary
	analytics *analytics.Store
	busUp     func() bool
	logger    zerolog.Logger
}

// Deps carries the server's collaborators.
type Deps struct {
	Config    *config.Config
	Table     *exercise.Table
	Loader    *scenario.Loader
	Index     *scenario.Index
	Store     status.Store
	Media     *library.MediaLibrary
	IQLibrary *library.IQLibrary
	Analytics *analytics.Store
	// BusUp reports broker connectivity for the service status endpoint.
	BusUp func() bool
}

func NewServer(deps Deps, logger zerolog.Logger) *Server {
	busUp := deps.BusUp
	if busUp == nil {
		busUp = func() bool { return false }
	}
	return &Server{
		cfg:       deps.Config,
		table:     deps.Table,
		loader:    deps.Loader,
		index:     deps.Index,
		store:     deps.Store,
		media:     deps.Media,
		iqlib:     deps.IQLibrary,
		analytics: deps.Analytics,
		busUp:     busUp,
		logger:    logger,
	}
}

// Router builds the chi router with the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(httprate.Limit(
		s.cfg.RateLimitRPS,
		time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	))

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleServiceStatus)

		r.Get("/scenarios", s.handleListScenarios)
		r.Get("/scenarios/{id}", s.handleGetScenario)
		r.Get("/scenarios/{id}/timeline/{team}", s.handleGetTimeline)
		r.Put("/scenarios/{id}/timeline/{team}", s.handlePutTimeline)

		r.Post("/exercises/{id}/deploy", s.handleDeploy)
		r.Post("/exercises/{id}/start", s.handleStart)
		r.Post("/exercises/{id}/pause", s.handlePause)
		r.Post("/exercises/{id}/resume", s.handleResume)
		r.Post("/exercises/{id}/finish", s.handleFinish)
		r.Post("/exercises/{id}/stop", s.handleStop)
		r.Get("/exercises/{id}/status", s.handleExerciseStatus)
		r.Get("/exercises/current", s.handleCurrentExercise)

		r.Get("/media", s.handleListMedia)
		r.Post("/media", s.handleUploadMedia)
		r.Delete("/media", s.handleDeleteMedia)

		r.Get("/iq-library", s.handleListIQ)
		r.Post("/iq-library", s.handleUploadIQ)
		r.Delete("/iq-library", s.handleDeleteIQ)

		r.Get("/analytics", s.handleAnalytics)
		r.Get("/analytics/{id}", s.handleScenarioAnalytics)
	})

	// Uploaded media, IQ recordings and scenario assets (thumbnails) are
	// served straight off disk.
	r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(s.media.Root()))))
	r.Handle("/iq_library/*", http.StripPrefix("/iq_library/", http.FileServer(http.Dir(s.iqlib.Root()))))
	r.Handle("/scenarios/*", http.StripPrefix("/scenarios/", http.FileServer(http.Dir(s.loader.Root()))))

	return r
}

// Serve runs the HTTP server until ctx is canceled, then drains with a
// short grace period.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("http server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// requestLogger emits one structured line per request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
