package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/raven-go"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"

	"github.com/0x13a/jobapply/internal/apperror"
	"github.com/0x13a/jobapply/internal/config"
	"github.com/0x13a/jobapply/internal/metrics"
	"github.com/0x13a/jobapply/internal/middleware"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	cfg          config.Config
	Conn         *sql.DB
	router       *mux.Router
	SessionStore *sessions.CookieStore
	log          zerolog.Logger
}

// Envelope is the body of every API response.
type Envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    interface{}       `json:"data,omitempty"`
	Count   *int              `json:"count,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func NewServer(
	cfg config.Config,
	conn *sql.DB,
	r *mux.Router,
	sessionStore *sessions.CookieStore,
	logger zerolog.Logger,
	m *metrics.Metrics,
) Server {
	if cfg.SentryDSN != "" {
		if err := raven.SetDSN(cfg.SentryDSN); err != nil {
			logger.Warn().Err(err).Msg("unable to configure sentry")
		}
	}
	r.Use(middleware.LoggingMiddleware(logger, m))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, Envelope{Message: "Route not found"})
	})

	return Server{
		cfg:          cfg,
		Conn:         conn,
		router:       r,
		SessionStore: sessionStore,
		log:          logger,
	}
}

func (s Server) RegisterRoute(path string, handler http.Handler, methods []string) {
	s.router.Handle(path, handler).Methods(methods...)
}

func (s Server) RegisterPathPrefix(path string, handler http.Handler, methods []string) {
	s.router.PathPrefix(path).Handler(handler).Methods(methods...)
}

func (s Server) GetConfig() config.Config {
	return s.cfg
}

func (s Server) Logger() zerolog.Logger {
	return s.log
}

func (s Server) JSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, data)
}

// OK writes a success envelope.
func (s Server) OK(w http.ResponseWriter, status int, data interface{}, msg string) {
	writeJSON(w, status, Envelope{Success: true, Message: msg, Data: data})
}

func (s Server) OKList(w http.ResponseWriter, data interface{}, count int) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Count: &count})
}

// Error maps err onto its status code. Server side failures are reported and
// answered with a generic message.
func (s Server) Error(w http.ResponseWriter, err error) {
	e := apperror.As(err)
	status := apperror.HTTPStatus(e.Kind)
	if status >= http.StatusInternalServerError {
		s.Log(err, e.Message)
		writeJSON(w, status, Envelope{Message: "Server error"})
		return
	}
	writeJSON(w, status, Envelope{Message: e.Message, Errors: e.Fields})
}

func (s Server) Log(err error, msg string) {
	if s.cfg.SentryDSN != "" {
		raven.CaptureErrorAndWait(err, map[string]string{"ctx": msg})
	}
	s.log.Error().Err(err).Msg(msg)
}

// Run serves until ctx is cancelled, then drains in flight requests.
func (s Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%s", s.cfg.Port)
	if s.cfg.IsDev() {
		s.log.Info().Msgf("local env http://localhost:%s", s.cfg.Port)
		addr = fmt.Sprintf("localhost:%s", s.cfg.Port)
	}
	srv := &http.Server{
		Addr: addr,
		Handler: middleware.HTTPSMiddleware(
			middleware.CORSMiddleware(
				middleware.HeadersMiddleware(s.router, s.cfg.Env),
				s.cfg.CorsOrigins,
			),
			s.cfg.Env,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}
