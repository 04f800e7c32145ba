package application

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/0x13a/jobapply/internal/apperror"
	"github.com/0x13a/jobapply/internal/auth"
	"github.com/0x13a/jobapply/internal/metrics"
)

const msgAdminOnly = "Access denied. Admin privileges required."

type lifecycleRepository interface {
	GetByID(ctx context.Context, id string) (*Application, error)
	ListByJob(ctx context.Context, jobID string) ([]*Application, error)
	ListByUser(ctx context.Context, userID string) ([]*Application, error)
	ListByEmail(ctx context.Context, email string) ([]*Application, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Application, error)
	Delete(ctx context.Context, id string) error
}

// LifecycleService reads applications and moves them through the status
// workflow. Admin checks happen before any lookup, so a non admin caller
// learns nothing about whether a record exists.
type LifecycleService struct {
	repo    lifecycleRepository
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewLifecycleService(repo lifecycleRepository, log zerolog.Logger, m *metrics.Metrics) *LifecycleService {
	return &LifecycleService{
		repo:    repo,
		log:     log.With().Str("component", "lifecycle").Logger(),
		metrics: m,
	}
}

func (s *LifecycleService) ListByJob(ctx context.Context, caller auth.Identity, jobID string) ([]*Application, error) {
	if !caller.IsAdmin() {
		return nil, apperror.New(apperror.KindForbidden, msgAdminOnly)
	}
	return s.repo.ListByJob(ctx, jobID)
}

// ListByCaller lists by the caller's user id, falling back to email when the
// caller has none.
func (s *LifecycleService) ListByCaller(ctx context.Context, caller auth.Identity, email string) ([]*Application, error) {
	if userID, ok := caller.UserID(); ok {
		return s.repo.ListByUser(ctx, userID)
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperror.New(apperror.KindBadRequest, "User ID or email is required")
	}
	return s.repo.ListByEmail(ctx, email)
}

func (s *LifecycleService) GetByID(ctx context.Context, id string) (*Application, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateStatus accepts any workflow state after any other.
func (s *LifecycleService) UpdateStatus(ctx context.Context, caller auth.Identity, id, status string) (*Application, error) {
	if !caller.IsAdmin() {
		return nil, apperror.New(apperror.KindForbidden, msgAdminOnly)
	}
	st, ok := ParseStatus(status)
	if !ok {
		return nil, apperror.New(apperror.KindInvalidStatus, "Invalid status")
	}
	app, err := s.repo.UpdateStatus(ctx, id, st)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveStatusTransition(string(st))
	s.log.Info().Str("application_id", id).Str("status", string(st)).Msg("application status updated")
	return app, nil
}

// Delete removes the record only. The resume file stays until resume-sweep
// finds it unreferenced.
func (s *LifecycleService) Delete(ctx context.Context, caller auth.Identity, id string) error {
	if !caller.IsAdmin() {
		return apperror.New(apperror.KindForbidden, msgAdminOnly)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("application_id", id).Msg("application deleted")
	return nil
}
