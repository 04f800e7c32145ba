package application

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/0x13a/jobapply/internal/apperror"
	"github.com/0x13a/jobapply/internal/auth"
	"github.com/0x13a/jobapply/internal/metrics"
	"github.com/0x13a/jobapply/internal/storage"
	"github.com/0x13a/jobapply/internal/upload"
)

const (
	msgMissingResume = "Resume file is required"
	msgJobNotFound   = "Job not found"
	msgDuplicate     = "You have already applied for this job"
	msgNotFound      = "Application not found"

	releaseTimeout = 10 * time.Second
)

type jobLookup interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type intakeRepository interface {
	ExistsForJobAndEmail(ctx context.Context, jobID, email string) (bool, error)
	Insert(ctx context.Context, a *Application) error
}

type blobStore interface {
	Save(ctx context.Context, name string, r io.Reader) (storage.Object, error)
	Delete(ctx context.Context, ref string) error
}

type IntakeService struct {
	jobs    jobLookup
	repo    intakeRepository
	blobs   blobStore
	gate    upload.Gatekeeper
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewIntakeService(jobs jobLookup, repo intakeRepository, blobs blobStore, gate upload.Gatekeeper, log zerolog.Logger, m *metrics.Metrics) *IntakeService {
	return &IntakeService{
		jobs:    jobs,
		repo:    repo,
		blobs:   blobs,
		gate:    gate,
		log:     log.With().Str("component", "intake").Logger(),
		metrics: m,
	}
}

// Submit stores the resume, then checks the job, the (job, email) pair and the
// applicant fields in that order and persists the application. Once the resume
// is written, every failure path removes it again.
func (s *IntakeService) Submit(ctx context.Context, caller auth.Identity, jobID string, fields Fields, file *upload.File) (app *Application, err error) {
	defer func() { s.metrics.ObserveSubmission(err) }()

	if file == nil || file.Content == nil {
		return nil, apperror.New(apperror.KindMissingResume, msgMissingResume)
	}
	if err := s.gate.Check(*file); err != nil {
		return nil, err
	}

	obj, err := s.blobs.Save(ctx, upload.StoredName(*file), file.Content)
	if errors.Is(err, storage.ErrTooLarge) {
		return nil, s.gate.TooLarge()
	}
	if err != nil {
		return nil, apperror.NewStorage(err, "unable to store resume")
	}
	committed := false
	defer func() {
		if !committed {
			s.release(ctx, obj)
		}
	}()

	exists, err := s.jobs.Exists(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperror.New(apperror.KindJobNotFound, msgJobNotFound)
	}

	fields.Email = strings.ToLower(strings.TrimSpace(fields.Email))
	duplicate, err := s.repo.ExistsForJobAndEmail(ctx, jobID, fields.Email)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return nil, apperror.New(apperror.KindDuplicate, msgDuplicate)
	}

	if invalid := fields.Validate(); len(invalid) > 0 {
		return nil, apperror.NewValidation("Validation failed", invalid)
	}

	app, err = s.build(caller, jobID, fields, obj)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, app); err != nil {
		return nil, err
	}
	committed = true

	s.log.Info().
		Str("application_id", app.ID).
		Str("job_id", jobID).
		Bool("authenticated", caller.Authenticated()).
		Msg("application submitted")
	return app, nil
}

func (s *IntakeService) build(caller auth.Identity, jobID string, fields Fields, obj storage.Object) (*Application, error) {
	id, err := ksuid.NewRandom()
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate application id")
	}
	now := time.Now().UTC()
	app := &Application{
		ID:              id.String(),
		JobID:           jobID,
		FullName:        fields.FullName,
		Email:           fields.Email,
		Phone:           fields.Phone,
		Age:             fields.Age,
		Experience:      fields.Experience,
		CurrentCompany:  fields.CurrentCompany,
		CurrentPosition: fields.CurrentPosition,
		Education:       fields.Education,
		ResumeURL:       obj.URL,
		CoverLetter:     fields.CoverLetter,
		PortfolioURL:    fields.PortfolioURL,
		LinkedinURL:     fields.LinkedinURL,
		Status:          StatusPending,
		NoticePeriod:    fields.noticePeriod(),
		ExpectedSalary:  fields.ExpectedSalary,
		AppliedAt:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if userID, ok := caller.UserID(); ok {
		app.UserID = &userID
	}
	return app, nil
}

// release deletes a resume whose submission failed. It runs detached from the
// request so a client hanging up does not keep the file around, and its own
// failure is only logged.
func (s *IntakeService) release(ctx context.Context, obj storage.Object) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	err := s.blobs.Delete(ctx, obj.URL)
	s.metrics.ObserveCompensatingDelete(err)
	if err != nil {
		s.log.Error().Err(err).Str("resume_url", obj.URL).Msg("unable to delete resume of failed submission")
		return
	}
	s.log.Debug().Str("resume_url", obj.URL).Msg("deleted resume of failed submission")
}
