package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/0x13a/jobapply/internal/server"
)

const healthTimeout = 2 * time.Second

type pinger interface {
	PingContext(ctx context.Context) error
}

func HealthHandler(svr server.Server, db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			svr.Log(err, "health check failed")
			svr.JSON(w, http.StatusServiceUnavailable, server.Envelope{Message: "Database unavailable"})
			return
		}
		svr.OK(w, http.StatusOK, map[string]string{"status": "ok"}, "")
	}
}

// ResumeFileHandler serves stored resumes by name. Directory listings are not
// exposed.
func ResumeFileHandler(files http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
