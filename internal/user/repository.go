package user

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/0x13a/jobapply/internal/apperror"
	"github.com/0x13a/jobapply/internal/database"
)

const minPasswordLength = 6

type Repository struct {
	db   *sql.DB
	cost int
}

func NewRepository(db *sql.DB, bcryptCost int) *Repository {
	return &Repository{db: db, cost: bcryptCost}
}

// Create registers a new user with a bcrypt hashed password.
func (r *Repository) Create(ctx context.Context, rq RegisterRq) (User, error) {
	rq.Name = strings.TrimSpace(rq.Name)
	rq.Email = strings.ToLower(strings.TrimSpace(rq.Email))
	fields := make(map[string]string)
	if rq.Name == "" {
		fields["name"] = "Name is required"
	}
	if rq.Email == "" || !strings.Contains(rq.Email, "@") {
		fields["email"] = "Please provide a valid email"
	}
	if len(rq.Password) < minPasswordLength {
		fields["password"] = "Password must be at least 6 characters"
	}
	if len(fields) > 0 {
		return User{}, apperror.NewValidation("Validation failed", fields)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(rq.Password), r.cost)
	if err != nil {
		return User{}, errors.Wrap(err, "unable to hash password")
	}
	userID, err := ksuid.NewRandom()
	if err != nil {
		return User{}, errors.Wrap(err, "unable to generate user id")
	}
	u := User{
		ID:        userID.String(),
		Name:      rq.Name,
		Email:     rq.Email,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.db.ExecContext(
		ctx,
		`INSERT INTO users (id, name, email, password, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Name, u.Email, string(hash), u.CreatedAt,
	); err != nil {
		if database.IsUniqueViolation(err, "") {
			return User{}, apperror.New(apperror.KindBadRequest, "Email already registered")
		}
		return User{}, apperror.NewStorage(err, "unable to save user")
	}
	return u, nil
}

// Authenticate returns the user matching email and password. Unknown email and
// wrong password are indistinguishable to the caller.
func (r *Repository) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := r.GetUser(ctx, email)
	if apperror.IsKind(err, apperror.KindNotFound) {
		return User{}, apperror.New(apperror.KindAuth, "Invalid credentials")
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(password)); err != nil {
		return User{}, apperror.New(apperror.KindAuth, "Invalid credentials")
	}
	return u, nil
}

func (r *Repository) GetUser(ctx context.Context, email string) (User, error) {
	u := User{}
	row := r.db.QueryRowContext(ctx, `SELECT id, name, email, password, created_at FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.passwordHash, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return User{}, apperror.New(apperror.KindNotFound, "User not found")
		}
		return User{}, apperror.NewStorage(err, "unable to retrieve user")
	}
	return u, nil
}
