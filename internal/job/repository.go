package job

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gosimple/slug"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"

	"github.com/0x13a/jobapply/internal/apperror"
)

const jobColumns = `id, title, description, location, salary, company, benefits, responsibilities, requirements, slug, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*Job, error) {
	j := &Job{}
	err := row.Scan(
		&j.ID,
		&j.Title,
		&j.Description,
		&j.Location,
		&j.Salary,
		&j.Company,
		(*pq.StringArray)(&j.Benefits),
		(*pq.StringArray)(&j.Responsibilities),
		(*pq.StringArray)(&j.Requirements),
		&j.Slug,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *Repository) Create(ctx context.Context, rq JobRq) (*Job, error) {
	id, err := ksuid.NewRandom()
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate job id")
	}
	now := time.Now().UTC()
	row := r.db.QueryRowContext(
		ctx,
		`INSERT INTO job (id, title, description, location, salary, company, benefits, responsibilities, requirements, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11) RETURNING `+jobColumns,
		id.String(),
		rq.Title,
		rq.Description,
		rq.Location,
		rq.Salary,
		rq.Company,
		pq.Array(nonNil(rq.Benefits)),
		pq.Array(nonNil(rq.Responsibilities)),
		pq.Array(nonNil(rq.Requirements)),
		makeSlug(rq.Title, rq.Company, now),
		now,
	)
	j, err := scanJob(row)
	if err != nil {
		return nil, apperror.NewStorage(err, "unable to save job")
	}
	return j, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM job WHERE id = $1`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, apperror.New(apperror.KindNotFound, "Job not found")
	}
	if err != nil {
		return nil, apperror.NewStorage(err, "unable to retrieve job")
	}
	return j, nil
}

func (r *Repository) List(ctx context.Context) ([]*Job, error) {
	jobs := []*Job{}
	rows, err := r.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM job ORDER BY created_at DESC`)
	if err != nil {
		return jobs, apperror.NewStorage(err, "unable to list jobs")
	}
	defer rows.Close()
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return jobs, apperror.NewStorage(err, "unable to list jobs")
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return jobs, apperror.NewStorage(err, "unable to list jobs")
	}
	return jobs, nil
}

// Update overwrites the fields set in rq and keeps the stored value for the
// empty ones. The slug follows the title and company.
func (r *Repository) Update(ctx context.Context, id string, rq JobRq) (*Job, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := rq.merge(current)
	now := time.Now().UTC()
	row := r.db.QueryRowContext(
		ctx,
		`UPDATE job SET title = $1, description = $2, location = $3, salary = $4, company = $5, benefits = $6, responsibilities = $7, requirements = $8, slug = $9, updated_at = $10
		WHERE id = $11 RETURNING `+jobColumns,
		merged.Title,
		merged.Description,
		merged.Location,
		merged.Salary,
		merged.Company,
		pq.Array(nonNil(merged.Benefits)),
		pq.Array(nonNil(merged.Responsibilities)),
		pq.Array(nonNil(merged.Requirements)),
		makeSlug(merged.Title, merged.Company, current.CreatedAt),
		now,
		id,
	)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, apperror.New(apperror.KindNotFound, "Job not found")
	}
	if err != nil {
		return nil, apperror.NewStorage(err, "unable to update job")
	}
	return j, nil
}

// Delete removes the job, its applications go with it through the foreign key.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM job WHERE id = $1`, id)
	if err != nil {
		return apperror.NewStorage(err, "unable to delete job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperror.NewStorage(err, "unable to delete job")
	}
	if n == 0 {
		return apperror.New(apperror.KindNotFound, "Job not found")
	}
	return nil
}

func (r *Repository) Summary(ctx context.Context, id string) (Summary, error) {
	var s Summary
	err := r.db.QueryRowContext(ctx, `SELECT id, title, company, location, salary FROM job WHERE id = $1`, id).
		Scan(&s.ID, &s.Title, &s.Company, &s.Location, &s.Salary)
	if err == sql.ErrNoRows {
		return Summary{}, apperror.New(apperror.KindNotFound, "Job not found")
	}
	if err != nil {
		return Summary{}, apperror.NewStorage(err, "unable to retrieve job")
	}
	return s, nil
}

func makeSlug(title, company string, createdAt time.Time) string {
	return slug.Make(fmt.Sprintf("%s %s %d", title, company, createdAt.Unix()))
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
