package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/0x13a/jobapply/internal/application"
	"github.com/0x13a/jobapply/internal/auth"
	"github.com/0x13a/jobapply/internal/config"
	"github.com/0x13a/jobapply/internal/database"
	"github.com/0x13a/jobapply/internal/handler"
	"github.com/0x13a/jobapply/internal/job"
	"github.com/0x13a/jobapply/internal/metrics"
	"github.com/0x13a/jobapply/internal/middleware"
	"github.com/0x13a/jobapply/internal/server"
	"github.com/0x13a/jobapply/internal/storage"
	"github.com/0x13a/jobapply/internal/upload"
	"github.com/0x13a/jobapply/internal/user"
)

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("unable to load config")
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := database.GetDbConn(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to postgres")
	}
	defer database.CloseDbConn(conn)
	if err := database.EnsureSchema(ctx, conn); err != nil {
		log.Fatal().Err(err).Msg("unable to prepare schema")
	}

	store, err := storage.NewStore(afero.NewOsFs(), cfg.UploadDir, cfg.MaxFileSizeBytes())
	if err != nil {
		log.Fatal().Err(err).Msg("unable to open resume store")
	}
	gate := upload.NewGatekeeper(cfg.MaxFileSizeBytes())
	m := metrics.New(prometheus.DefaultRegisterer)

	jobRepo := job.NewRepository(conn)
	jobCache, err := job.NewCache(ctx, jobRepo, cfg.JobCacheTTL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to create job cache")
	}
	defer jobCache.Close()
	userRepo := user.NewRepository(conn, cfg.BcryptCost)
	applicationRepo := application.NewRepository(conn)

	intake := application.NewIntakeService(jobCache, applicationRepo, store, gate, log, m)
	lifecycle := application.NewLifecycleService(applicationRepo, log, m)

	sessionStore := sessions.NewCookieStore(cfg.SessionKey)
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.Secure = !cfg.IsDev()
	sessionStore.Options.SameSite = http.SameSiteLaxMode
	authoriser := auth.NewAuthoriser(cfg)
	authn := middleware.NewAuthenticator(authoriser, sessionStore)

	var limiter middleware.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("unable to parse REDIS_URL")
		}
		client := redis.NewClient(opts)
		defer client.Close()
		limiter = middleware.NewRedisLimiter(client, log)
	}
	submitLimit := middleware.RateLimit(limiter, "ratelimit:submit:", middleware.ClientIPFunc(cfg.TrustedProxyHops), cfg.SubmitRateLimit, cfg.SubmitRateWindow)

	svr := server.NewServer(cfg, conn, mux.NewRouter(), sessionStore, log, m)

	svr.RegisterRoute("/healthz", handler.HealthHandler(svr, conn), []string{"GET"})
	svr.RegisterRoute("/metrics", promhttp.Handler(), []string{"GET"})

	// auth
	svr.RegisterRoute("/auth/register", handler.RegisterHandler(svr, userRepo), []string{"POST"})
	svr.RegisterRoute("/auth/login", handler.LoginHandler(svr, userRepo, authoriser), []string{"POST"})
	svr.RegisterRoute("/auth/logout", handler.LogoutHandler(svr), []string{"POST"})

	// jobs
	svr.RegisterRoute("/jobs", handler.ListJobsHandler(svr, jobRepo), []string{"GET"})
	svr.RegisterRoute("/jobs", authn.Authenticate(handler.CreateJobHandler(svr, jobRepo)), []string{"POST"})
	svr.RegisterRoute("/jobs/{id}", handler.GetJobHandler(svr, jobRepo), []string{"GET"})
	svr.RegisterRoute("/jobs/{id}", authn.Authenticate(middleware.RequireAdmin(handler.UpdateJobHandler(svr, jobRepo, jobCache))), []string{"PUT"})
	svr.RegisterRoute("/jobs/{id}", authn.Authenticate(middleware.RequireAdmin(handler.DeleteJobHandler(svr, jobRepo, jobCache))), []string{"DELETE"})

	// applications, fixed paths before {id}
	svr.RegisterRoute("/applications/submit", submitLimit(authn.OptionalAuthenticate(handler.SubmitApplicationHandler(svr, intake, gate))), []string{"POST"})
	svr.RegisterRoute("/applications/user", authn.Authenticate(handler.ListCallerApplicationsHandler(svr, lifecycle)), []string{"GET"})
	svr.RegisterRoute("/applications/job/{jobId}", authn.Authenticate(middleware.RequireAdmin(handler.ListJobApplicationsHandler(svr, lifecycle))), []string{"GET"})
	svr.RegisterRoute("/applications/{id}", authn.Authenticate(handler.GetApplicationHandler(svr, lifecycle)), []string{"GET"})
	svr.RegisterRoute("/applications/{id}/status", authn.Authenticate(middleware.RequireAdmin(handler.UpdateApplicationStatusHandler(svr, lifecycle))), []string{"PATCH"})
	svr.RegisterRoute("/applications/{id}", authn.Authenticate(middleware.RequireAdmin(handler.DeleteApplicationHandler(svr, lifecycle))), []string{"DELETE"})

	svr.RegisterPathPrefix(storage.PublicPrefix, http.StripPrefix(storage.PublicPrefix, handler.ResumeFileHandler(store.FileServer())), []string{"GET"})

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting server")
	if err := svr.Run(ctx); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}
