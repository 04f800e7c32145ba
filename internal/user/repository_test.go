package user

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/0x13a/jobapply/internal/apperror"
)

func newMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db, bcrypt.MinCost), mock
}

func TestCreate(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users (id, name, email, password, created_at)`)).
		WithArgs(sqlmock.AnyArg(), "Ada", "ada@example.com", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := repo.Create(context.Background(), RegisterRq{Name: " Ada ", Email: " Ada@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Len(t, u.ID, 27)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_EmailTaken(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err := repo.Create(context.Background(), RegisterRq{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindBadRequest))
	assert.Equal(t, "Email already registered", apperror.As(err).Message)
}

func TestCreate_Validation(t *testing.T) {
	repo, mock := newMock(t)

	_, err := repo.Create(context.Background(), RegisterRq{Email: "nope", Password: "123"})
	require.Error(t, err)
	fields := apperror.As(err).Fields
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticate(t *testing.T) {
	repo, mock := newMock(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	columns := []string{"id", "name", "email", "password", "created_at"}
	query := regexp.QuoteMeta(`SELECT id, name, email, password, created_at FROM users WHERE email = $1`)

	mock.ExpectQuery(query).WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("u1", "Ada", "ada@example.com", string(hash), time.Now()))
	mock.ExpectQuery(query).WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("u1", "Ada", "ada@example.com", string(hash), time.Now()))
	mock.ExpectQuery(query).WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	u, err := repo.Authenticate(context.Background(), "Ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = repo.Authenticate(context.Background(), "ada@example.com", "wrong")
	assert.True(t, apperror.IsKind(err, apperror.KindAuth))

	_, err = repo.Authenticate(context.Background(), "ghost@example.com", "secret1")
	assert.True(t, apperror.IsKind(err, apperror.KindAuth))

	assert.NoError(t, mock.ExpectationsWereMet())
}
