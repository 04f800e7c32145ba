package auth

import (
	"crypto/subtle"
	"strings"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/0x13a/jobapply/internal/config"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"

	// AdminSubject is the token subject of the env configured admin account.
	AdminSubject = "admin"

	issuer = "jobapply"
)

// Identity is the caller as seen by the services. The zero value is Anonymous.
type Identity struct {
	ID    string
	Email string
	Role  Role
}

var Anonymous = Identity{}

func (i Identity) Authenticated() bool {
	return i.ID != ""
}

func (i Identity) IsAdmin() bool {
	return i.Authenticated() && i.Role == RoleAdmin
}

// UserID is the id recorded on applications, absent for anonymous callers.
func (i Identity) UserID() (string, bool) {
	if !i.Authenticated() {
		return "", false
	}
	return i.ID, true
}

type UserJWT struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.StandardClaims
}

type Authoriser struct {
	adminEmail    string
	adminPassword string
	signingKey    []byte
	ttl           time.Duration
}

type AuthRq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func NewAuthoriser(cfg config.Config) Authoriser {
	return Authoriser{
		adminEmail:    cfg.AdminEmail,
		adminPassword: cfg.AdminPassword,
		signingKey:    cfg.JwtSigningKey,
		ttl:           cfg.JwtExpire,
	}
}

// ValidAdmin reports whether the credentials match the env admin account.
func (a Authoriser) ValidAdmin(rq AuthRq) bool {
	if a.adminEmail == "" || a.adminPassword == "" {
		return false
	}
	emailOK := strings.EqualFold(strings.TrimSpace(rq.Email), a.adminEmail)
	passOK := subtle.ConstantTimeCompare([]byte(rq.Password), []byte(a.adminPassword)) == 1
	return emailOK && passOK
}

func (a Authoriser) IssueToken(id Identity) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(a.ttl)
	claims := UserJWT{
		ID:    id.ID,
		Email: id.Email,
		Role:  id.Role,
		StandardClaims: jwt.StandardClaims{
			Subject:   id.ID,
			ExpiresAt: expiresAt.Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    issuer,
		},
	}
	tkn := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := tkn.SignedString(a.signingKey)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "unable to sign token")
	}
	return ss, expiresAt, nil
}

func (a Authoriser) ParseToken(tk string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tk, &UserJWT{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return Anonymous, errors.Wrap(err, "invalid token")
	}
	claims, ok := token.Claims.(*UserJWT)
	if !ok || !token.Valid {
		return Anonymous, errors.New("invalid token")
	}
	if claims.ID == "" {
		return Anonymous, errors.New("token has no subject")
	}
	if claims.Role != RoleAdmin && claims.Role != RoleUser {
		return Anonymous, errors.Errorf("unknown role %q", claims.Role)
	}
	return Identity{ID: claims.ID, Email: claims.Email, Role: claims.Role}, nil
}
