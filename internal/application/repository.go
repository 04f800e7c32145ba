package application

import (
	"context"
	"database/sql"
	"time"

	"github.com/0x13a/jobapply/internal/apperror"
	"github.com/0x13a/jobapply/internal/database"
	"github.com/0x13a/jobapply/internal/job"
	"github.com/0x13a/jobapply/internal/user"
)

const (
	applicationColumns = `a.id, a.job_id, a.user_id, a.full_name, a.email, a.phone, a.age, a.experience, a.current_company, a.current_position, a.education, a.resume_url, a.cover_letter, a.portfolio_url, a.linkedin_url, a.status, a.notice_period, a.expected_salary, a.applied_at, a.created_at, a.updated_at`
	summaryColumns     = `j.id, j.title, j.company, j.location, j.salary, u.id, u.name, u.email`
	summaryJoins       = `JOIN job j ON j.id = a.job_id LEFT JOIN users u ON u.id = a.user_id`
	selectApplications = `SELECT ` + applicationColumns + `, ` + summaryColumns + ` FROM application a ` + summaryJoins
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row scanner) (*Application, error) {
	a := &Application{}
	js := &job.Summary{}
	var userID, uID, uName, uEmail sql.NullString
	err := row.Scan(
		&a.ID,
		&a.JobID,
		&userID,
		&a.FullName,
		&a.Email,
		&a.Phone,
		&a.Age,
		&a.Experience,
		&a.CurrentCompany,
		&a.CurrentPosition,
		&a.Education,
		&a.ResumeURL,
		&a.CoverLetter,
		&a.PortfolioURL,
		&a.LinkedinURL,
		&a.Status,
		&a.NoticePeriod,
		&a.ExpectedSalary,
		&a.AppliedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
		&js.ID,
		&js.Title,
		&js.Company,
		&js.Location,
		&js.Salary,
		&uID,
		&uName,
		&uEmail,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		a.UserID = &userID.String
	}
	a.Job = js
	if uID.Valid {
		a.User = &user.Summary{ID: uID.String, Name: uName.String, Email: uEmail.String}
	}
	return a, nil
}

func (r *Repository) list(ctx context.Context, where string, arg interface{}) ([]*Application, error) {
	applications := []*Application{}
	rows, err := r.db.QueryContext(ctx, selectApplications+` WHERE `+where+` ORDER BY a.applied_at DESC`, arg)
	if err != nil {
		return applications, apperror.NewStorage(err, "unable to list applications")
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return applications, apperror.NewStorage(err, "unable to list applications")
		}
		applications = append(applications, a)
	}
	if err := rows.Err(); err != nil {
		return applications, apperror.NewStorage(err, "unable to list applications")
	}
	return applications, nil
}

// Insert persists a new application. The (job, email) unique index turns a
// concurrent second submission into a duplicate error.
func (r *Repository) Insert(ctx context.Context, a *Application) error {
	var userID sql.NullString
	if a.UserID != nil {
		userID = sql.NullString{String: *a.UserID, Valid: true}
	}
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO application (id, job_id, user_id, full_name, email, phone, age, experience, current_company, current_position, education, resume_url, cover_letter, portfolio_url, linkedin_url, status, notice_period, expected_salary, applied_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		a.ID,
		a.JobID,
		userID,
		a.FullName,
		a.Email,
		a.Phone,
		a.Age,
		a.Experience,
		a.CurrentCompany,
		a.CurrentPosition,
		a.Education,
		a.ResumeURL,
		a.CoverLetter,
		a.PortfolioURL,
		a.LinkedinURL,
		string(a.Status),
		a.NoticePeriod,
		a.ExpectedSalary,
		a.AppliedAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if database.IsUniqueViolation(err, database.UniqueJobEmailConstraint) {
		return apperror.Wrap(apperror.KindDuplicate, err, msgDuplicate)
	}
	// the job went away after the existence check
	if database.IsForeignKeyViolation(err, database.JobForeignKeyConstraint) {
		return apperror.Wrap(apperror.KindJobNotFound, err, msgJobNotFound)
	}
	if err != nil {
		return apperror.NewStorage(err, "unable to save application")
	}
	return nil
}

func (r *Repository) ExistsForJobAndEmail(ctx context.Context, jobID, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM application WHERE job_id = $1 AND email = $2)`, jobID, email).Scan(&exists)
	if err != nil {
		return false, apperror.NewStorage(err, "unable to check for existing application")
	}
	return exists, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Application, error) {
	a, err := scanApplication(r.db.QueryRowContext(ctx, selectApplications+` WHERE a.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, apperror.New(apperror.KindNotFound, msgNotFound)
	}
	if err != nil {
		return nil, apperror.NewStorage(err, "unable to retrieve application")
	}
	return a, nil
}

func (r *Repository) ListByJob(ctx context.Context, jobID string) ([]*Application, error) {
	return r.list(ctx, `a.job_id = $1`, jobID)
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]*Application, error) {
	return r.list(ctx, `a.user_id = $1`, userID)
}

func (r *Repository) ListByEmail(ctx context.Context, email string) ([]*Application, error) {
	return r.list(ctx, `a.email = $1`, email)
}

// UpdateStatus sets the status and returns the updated record with its
// summaries in a single round trip.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status) (*Application, error) {
	row := r.db.QueryRowContext(
		ctx,
		`WITH a AS (UPDATE application SET status = $1, updated_at = $2 WHERE id = $3 RETURNING *)
		SELECT `+applicationColumns+`, `+summaryColumns+` FROM a `+summaryJoins,
		string(status),
		time.Now().UTC(),
		id,
	)
	a, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, apperror.New(apperror.KindNotFound, msgNotFound)
	}
	if err != nil {
		return nil, apperror.NewStorage(err, "unable to update application")
	}
	return a, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM application WHERE id = $1`, id)
	if err != nil {
		return apperror.NewStorage(err, "unable to delete application")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperror.NewStorage(err, "unable to delete application")
	}
	if n == 0 {
		return apperror.New(apperror.KindNotFound, msgNotFound)
	}
	return nil
}

// ResumeURLs returns every resume reference held by an application.
func (r *Repository) ResumeURLs(ctx context.Context) (map[string]struct{}, error) {
	refs := make(map[string]struct{})
	rows, err := r.db.QueryContext(ctx, `SELECT resume_url FROM application`)
	if err != nil {
		return nil, apperror.NewStorage(err, "unable to list resume references")
	}
	defer rows.Close()
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, apperror.NewStorage(err, "unable to list resume references")
		}
		refs[ref] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewStorage(err, "unable to list resume references")
	}
	return refs, nil
}
