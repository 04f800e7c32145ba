package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: "23505", Constraint: UniqueJobEmailConstraint}

	assert.True(t, IsUniqueViolation(dup, ""))
	assert.True(t, IsUniqueViolation(dup, UniqueJobEmailConstraint))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", dup), UniqueJobEmailConstraint))
	assert.False(t, IsUniqueViolation(dup, "users_email_key"))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}, ""))
	assert.False(t, IsUniqueViolation(errors.New("connection reset"), ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}

func TestIsForeignKeyViolation(t *testing.T) {
	missingJob := &pq.Error{Code: "23503", Constraint: JobForeignKeyConstraint}

	assert.True(t, IsForeignKeyViolation(missingJob, JobForeignKeyConstraint))
	assert.True(t, IsForeignKeyViolation(fmt.Errorf("insert: %w", missingJob), ""))
	assert.False(t, IsForeignKeyViolation(missingJob, "application_user_id_fkey"))
	assert.False(t, IsForeignKeyViolation(&pq.Error{Code: "23505", Constraint: JobForeignKeyConstraint}, ""))
	assert.False(t, IsUniqueViolation(missingJob, ""))
	assert.False(t, IsForeignKeyViolation(nil, ""))
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range schema {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema_StopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(schema[0])).WillReturnError(errors.New("permission denied"))

	err = EnsureSchema(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}
