package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/0x13a/jobapply/internal/apperror"
	"github.com/0x13a/jobapply/internal/auth"
	"github.com/0x13a/jobapply/internal/middleware"
	"github.com/0x13a/jobapply/internal/server"
	"github.com/0x13a/jobapply/internal/user"
)

type userStore interface {
	Create(ctx context.Context, rq user.RegisterRq) (user.User, error)
	Authenticate(ctx context.Context, email, password string) (user.User, error)
}

type tokenIssuer interface {
	ValidAdmin(rq auth.AuthRq) bool
	IssueToken(id auth.Identity) (string, time.Time, error)
}

type loginUser struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  auth.Role `json:"role"`
}

type loginRs struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Token   string    `json:"token"`
	User    loginUser `json:"user"`
}

func RegisterHandler(svr server.Server, users userStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rq user.RegisterRq
		if err := json.NewDecoder(r.Body).Decode(&rq); err != nil {
			svr.Error(w, apperror.Wrap(apperror.KindBadRequest, err, "Invalid request body"))
			return
		}
		u, err := users.Create(r.Context(), rq)
		if err != nil {
			svr.Error(w, err)
			return
		}
		svr.OK(w, http.StatusCreated, user.Summary{ID: u.ID, Name: u.Name, Email: u.Email}, "User registered successfully")
	}
}

// LoginHandler checks the env admin account first and registered users after.
// The token is returned in the body and kept in the session cookie.
func LoginHandler(svr server.Server, users userStore, authoriser tokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rq auth.AuthRq
		if err := json.NewDecoder(r.Body).Decode(&rq); err != nil {
			svr.Error(w, apperror.Wrap(apperror.KindBadRequest, err, "Invalid request body"))
			return
		}
		if strings.TrimSpace(rq.Email) == "" || rq.Password == "" {
			svr.Error(w, apperror.New(apperror.KindBadRequest, "Email and password are required"))
			return
		}

		var (
			id   auth.Identity
			name string
			msg  string
		)
		if authoriser.ValidAdmin(rq) {
			id = auth.Identity{ID: auth.AdminSubject, Email: strings.ToLower(strings.TrimSpace(rq.Email)), Role: auth.RoleAdmin}
			name = "Admin"
			msg = "Admin login successful"
		} else {
			u, err := users.Authenticate(r.Context(), rq.Email, rq.Password)
			if err != nil {
				svr.Error(w, err)
				return
			}
			id = auth.Identity{ID: u.ID, Email: u.Email, Role: auth.RoleUser}
			name = u.Name
			msg = "Login successful"
		}

		ss, expiresAt, err := authoriser.IssueToken(id)
		if err != nil {
			svr.Error(w, err)
			return
		}
		sess, err := svr.SessionStore.Get(r, middleware.SessionName)
		if err != nil {
			svr.Log(err, "unable to decode existing session, issuing a new one")
		}
		sess.Values[middleware.SessionTokenKey] = ss
		sess.Options.MaxAge = int(time.Until(expiresAt).Seconds())
		if err := sess.Save(r, w); err != nil {
			svr.Error(w, errors.Wrap(err, "unable to save session"))
			return
		}
		svr.JSON(w, http.StatusOK, loginRs{
			Success: true,
			Message: msg,
			Token:   ss,
			User:    loginUser{Name: name, Email: id.Email, Role: id.Role},
		})
	}
}

func LogoutHandler(svr server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := svr.SessionStore.Get(r, middleware.SessionName)
		delete(sess.Values, middleware.SessionTokenKey)
		sess.Options.MaxAge = -1
		if err := sess.Save(r, w); err != nil {
			svr.Error(w, errors.Wrap(err, "unable to clear session"))
			return
		}
		svr.OK(w, http.StatusOK, nil, "Logout successful")
	}
}
