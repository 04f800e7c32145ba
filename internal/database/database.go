package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// Table Structure:
//
// CREATE TABLE IF NOT EXISTS users (
//   id         CHAR(27) NOT NULL UNIQUE,
//   name       VARCHAR(255) NOT NULL,
//   email      VARCHAR(255) NOT NULL UNIQUE,
//   password   VARCHAR(255) NOT NULL,
//   created_at TIMESTAMP NOT NULL,
//   PRIMARY KEY(id)
// );
//
// CREATE TABLE IF NOT EXISTS job (...);         -- see schema below
// CREATE TABLE IF NOT EXISTS application (...); -- see schema below
// CREATE UNIQUE INDEX application_job_id_email_key ON application (job_id, email);
//
// application.user_id is not a foreign key: the env admin account
// signs tokens with subject "admin" and has no users row.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         CHAR(27) NOT NULL UNIQUE,
		name       VARCHAR(255) NOT NULL,
		email      VARCHAR(255) NOT NULL UNIQUE,
		password   VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY(id)
	)`,
	`CREATE TABLE IF NOT EXISTS job (
		id               CHAR(27) NOT NULL UNIQUE,
		title            VARCHAR(255) NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		location         VARCHAR(255) NOT NULL DEFAULT '',
		salary           VARCHAR(255) NOT NULL DEFAULT '',
		company          VARCHAR(255) NOT NULL DEFAULT '',
		benefits         TEXT[] NOT NULL DEFAULT '{}',
		responsibilities TEXT[] NOT NULL DEFAULT '{}',
		requirements     TEXT[] NOT NULL DEFAULT '{}',
		slug             VARCHAR(255) NOT NULL,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL,
		PRIMARY KEY(id)
	)`,
	`CREATE TABLE IF NOT EXISTS application (
		id               CHAR(27) NOT NULL UNIQUE,
		job_id           CHAR(27) NOT NULL REFERENCES job (id) ON DELETE CASCADE,
		user_id          VARCHAR(64) DEFAULT NULL,
		full_name        VARCHAR(255) NOT NULL,
		email            VARCHAR(255) NOT NULL,
		phone            VARCHAR(64) NOT NULL,
		age              INTEGER NOT NULL CHECK (age BETWEEN 18 AND 100),
		experience       INTEGER NOT NULL CHECK (experience >= 0),
		current_company  VARCHAR(255) NOT NULL DEFAULT '',
		current_position VARCHAR(255) NOT NULL DEFAULT '',
		education        TEXT NOT NULL,
		resume_url       VARCHAR(512) NOT NULL,
		cover_letter     TEXT NOT NULL DEFAULT '',
		portfolio_url    VARCHAR(512) NOT NULL DEFAULT '',
		linkedin_url     VARCHAR(512) NOT NULL DEFAULT '',
		status           VARCHAR(20) NOT NULL DEFAULT 'pending',
		notice_period    VARCHAR(255) NOT NULL DEFAULT 'Immediate',
		expected_salary  NUMERIC NOT NULL DEFAULT 0,
		applied_at       TIMESTAMP NOT NULL,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL,
		PRIMARY KEY(id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS application_job_id_email_key ON application (job_id, email)`,
	`CREATE INDEX IF NOT EXISTS application_user_id_idx ON application (user_id)`,
}

const (
	// UniqueJobEmailConstraint is the index backing one application per (job, email).
	UniqueJobEmailConstraint = "application_job_id_email_key"
	// JobForeignKeyConstraint ties an application to an existing job.
	JobForeignKeyConstraint = "application_job_id_fkey"
)

const (
	uniqueViolation     = pq.ErrorCode("23505")
	foreignKeyViolation = pq.ErrorCode("23503")
)

func GetDbConn(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// CloseDbConn closes db conn
func CloseDbConn(conn *sql.DB) {
	conn.Close()
}

// EnsureSchema creates the tables and indexes when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "unable to apply schema")
		}
	}
	return nil
}

// IsUniqueViolation reports whether err is a postgres unique violation, optionally
// restricted to the given constraint name.
func IsUniqueViolation(err error, constraint string) bool {
	return isViolation(err, uniqueViolation, constraint)
}

// IsForeignKeyViolation reports whether err is a postgres foreign key violation,
// optionally restricted to the given constraint name.
func IsForeignKeyViolation(err error, constraint string) bool {
	return isViolation(err, foreignKeyViolation, constraint)
}

func isViolation(err error, code pq.ErrorCode, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != code {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
