package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/0x13a/jobapply/internal/auth"
	"github.com/0x13a/jobapply/internal/config"
	"github.com/0x13a/jobapply/internal/middleware"
	"github.com/0x13a/jobapply/internal/server"
)

var (
	adminID = auth.Identity{ID: auth.AdminSubject, Email: "admin@x.com", Role: auth.RoleAdmin}
	userID  = auth.Identity{ID: "u1", Email: "ada@x.com", Role: auth.RoleUser}
)

func newTestServer() server.Server {
	return server.NewServer(
		config.Config{Env: "dev"},
		nil,
		mux.NewRouter(),
		sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef")),
		zerolog.Nop(),
		nil,
	)
}

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Count   *int              `json:"count"`
	Errors  map[string]string `json:"errors"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

// as attaches the identity the auth middleware would have resolved.
func as(r *http.Request, id auth.Identity) *http.Request {
	return r.WithContext(middleware.WithIdentity(r.Context(), id))
}

type part struct {
	filename    string
	contentType string
	content     []byte
}

func multipartRequest(t *testing.T, url string, fields map[string]string, resume *part) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if resume != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="resume"; filename="`+resume.filename+`"`)
		h.Set("Content-Type", resume.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(resume.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
