package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/0x13a/jobapply/internal/application"
	"github.com/0x13a/jobapply/internal/config"
	"github.com/0x13a/jobapply/internal/database"
	"github.com/0x13a/jobapply/internal/storage"
	"github.com/0x13a/jobapply/internal/sweep"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "report orphaned resumes without removing them")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("cmd", "resume-sweep").Logger()
	log.Info().Bool("dry_run", *dryRun).Msg("looking for orphaned resumes")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load config")
	}
	conn, err := database.GetDbConn(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to postgres")
	}
	defer database.CloseDbConn(conn)

	store, err := storage.NewStore(afero.NewOsFs(), cfg.UploadDir, cfg.MaxFileSizeBytes())
	if err != nil {
		log.Fatal().Err(err).Msg("unable to open resume store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := sweep.New(store, application.NewRepository(conn), cfg.OrphanGrace, *dryRun, log).Run(ctx, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("sweep failed")
	}
	log.Info().
		Int("scanned", rep.Scanned).
		Int("kept", rep.Kept).
		Int("young", rep.Young).
		Int("removed", rep.Removed).
		Int("failed", rep.Failed).
		Str("reclaimed", humanize.IBytes(uint64(rep.Bytes))).
		Msg("sweep done")
}
