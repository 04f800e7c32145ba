// Package sweep removes stored resumes that no application references.
package sweep

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/0x13a/jobapply/internal/storage"
)

type blobLister interface {
	List(ctx context.Context) ([]storage.Object, error)
	Delete(ctx context.Context, ref string) error
}

type referenceSource interface {
	ResumeURLs(ctx context.Context) (map[string]struct{}, error)
}

type Report struct {
	Scanned int
	Kept    int
	Young   int // unreferenced but inside the grace period
	Removed int
	Failed  int
	Bytes   int64
}

type Sweeper struct {
	blobs  blobLister
	refs   referenceSource
	grace  time.Duration
	dryRun bool
	log    zerolog.Logger
}

func New(blobs blobLister, refs referenceSource, grace time.Duration, dryRun bool, log zerolog.Logger) *Sweeper {
	return &Sweeper{blobs: blobs, refs: refs, grace: grace, dryRun: dryRun, log: log}
}

// Run removes unreferenced files last modified before now minus the grace
// period. A file written by a submission still in flight is younger than that
// and survives. References are read after listing so a record committed in
// between protects its file.
func (s *Sweeper) Run(ctx context.Context, now time.Time) (Report, error) {
	var rep Report
	objects, err := s.blobs.List(ctx)
	if err != nil {
		return rep, errors.Wrap(err, "unable to list stored resumes")
	}
	refs, err := s.refs.ResumeURLs(ctx)
	if err != nil {
		return rep, errors.Wrap(err, "unable to load resume references")
	}
	cutoff := now.Add(-s.grace)
	for _, obj := range objects {
		rep.Scanned++
		if _, ok := refs[obj.URL]; ok {
			rep.Kept++
			continue
		}
		if obj.ModTime.After(cutoff) {
			rep.Young++
			continue
		}
		l := s.log.With().
			Str("name", obj.Name).
			Str("size", humanize.IBytes(uint64(obj.Size))).
			Str("age", humanize.RelTime(obj.ModTime, now, "old", "")).
			Logger()
		if s.dryRun {
			l.Info().Msg("would remove orphaned resume")
			rep.Removed++
			rep.Bytes += obj.Size
			continue
		}
		if err := s.blobs.Delete(ctx, obj.URL); err != nil {
			l.Error().Err(err).Msg("unable to remove orphaned resume")
			rep.Failed++
			continue
		}
		l.Info().Msg("removed orphaned resume")
		rep.Removed++
		rep.Bytes += obj.Size
	}
	return rep, nil
}
