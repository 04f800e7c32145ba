package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/0x13a/jobapply/internal/application"
	"github.com/0x13a/jobapply/internal/apperror"
	"github.com/0x13a/jobapply/internal/auth"
	"github.com/0x13a/jobapply/internal/middleware"
	"github.com/0x13a/jobapply/internal/server"
	"github.com/0x13a/jobapply/internal/upload"
)

const (
	// room for the applicant fields and multipart framing on top of the resume
	multipartOverhead = 1 << 20
	multipartMemory   = 1 << 20
)

type submitter interface {
	Submit(ctx context.Context, caller auth.Identity, jobID string, fields application.Fields, file *upload.File) (*application.Application, error)
}

type applicationManager interface {
	ListByJob(ctx context.Context, caller auth.Identity, jobID string) ([]*application.Application, error)
	ListByCaller(ctx context.Context, caller auth.Identity, email string) ([]*application.Application, error)
	GetByID(ctx context.Context, id string) (*application.Application, error)
	UpdateStatus(ctx context.Context, caller auth.Identity, id, status string) (*application.Application, error)
	Delete(ctx context.Context, caller auth.Identity, id string) error
}

func SubmitApplicationHandler(svr server.Server, intake submitter, gate upload.Gatekeeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, gate.MaxBytes()+multipartOverhead)
		err := r.ParseMultipartForm(multipartMemory)
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			svr.Error(w, gate.TooLarge())
			return
		case err != nil && err != http.ErrNotMultipart:
			svr.Error(w, apperror.Wrap(apperror.KindBadRequest, err, "Malformed form data"))
			return
		}
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}

		var file *upload.File
		if r.MultipartForm != nil {
			f, header, err := r.FormFile(upload.FieldName)
			switch {
			case err == http.ErrMissingFile:
			case err != nil:
				svr.Error(w, apperror.Wrap(apperror.KindBadRequest, err, "Malformed form data"))
				return
			default:
				defer f.Close()
				file = &upload.File{
					Filename:    header.Filename,
					ContentType: header.Header.Get("Content-Type"),
					Size:        header.Size,
					Content:     f,
				}
			}
		}

		app, err := intake.Submit(
			r.Context(),
			middleware.IdentityFromContext(r.Context()),
			r.PostForm.Get("jobId"),
			application.ParseFields(r.PostForm),
			file,
		)
		if err != nil {
			svr.Error(w, err)
			return
		}
		svr.OK(w, http.StatusCreated, app, "Application submitted successfully")
	}
}

func ListCallerApplicationsHandler(svr server.Server, apps applicationManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := apps.ListByCaller(r.Context(), middleware.IdentityFromContext(r.Context()), r.URL.Query().Get("email"))
		if err != nil {
			svr.Error(w, err)
			return
		}
		svr.OKList(w, out, len(out))
	}
}

func ListJobApplicationsHandler(svr server.Server, apps applicationManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := apps.ListByJob(r.Context(), middleware.IdentityFromContext(r.Context()), mux.Vars(r)["jobId"])
		if err != nil {
			svr.Error(w, err)
			return
		}
		svr.OKList(w, out, len(out))
	}
}

func GetApplicationHandler(svr server.Server, apps applicationManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app, err := apps.GetByID(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			svr.Error(w, err)
			return
		}
		svr.OK(w, http.StatusOK, app, "")
	}
}

func UpdateApplicationStatusHandler(svr server.Server, apps applicationManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := &struct {
			Status string `json:"status"`
		}{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			svr.Error(w, apperror.Wrap(apperror.KindBadRequest, err, "Invalid request body"))
			return
		}
		app, err := apps.UpdateStatus(r.Context(), middleware.IdentityFromContext(r.Context()), mux.Vars(r)["id"], req.Status)
		if err != nil {
			svr.Error(w, err)
			return
		}
		svr.OK(w, http.StatusOK, app, "Application status updated successfully")
	}
}

func DeleteApplicationHandler(svr server.Server, apps applicationManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := apps.Delete(r.Context(), middleware.IdentityFromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
			svr.Error(w, err)
			return
		}
		svr.OK(w, http.StatusOK, nil, "Application deleted successfully")
	}
}
