package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/0x13a/jobapply/internal/apperror"
	"github.com/0x13a/jobapply/internal/job"
	"github.com/0x13a/jobapply/internal/server"
)

type jobStore interface {
	Create(ctx context.Context, rq job.JobRq) (*job.Job, error)
	GetByID(ctx context.Context, id string) (*job.Job, error)
	List(ctx context.Context) ([]*job.Job, error)
	Update(ctx context.Context, id string, rq job.JobRq) (*job.Job, error)
	Delete(ctx context.Context, id string) error
}

type summaryInvalidator interface {
	Invalidate(id string)
}

func decodeJobRq(r *http.Request) (job.JobRq, error) {
	var rq job.JobRq
	if err := json.NewDecoder(r.Body).Decode(&rq); err != nil {
		return rq, apperror.Wrap(apperror.KindBadRequest, err, "Invalid request body")
	}
	rq.Sanitize()
	return rq, nil
}

func CreateJobHandler(svr server.Server, jobs jobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rq, err := decodeJobRq(r)
		if err != nil {
			svr.Error(w, err)
			return
		}
		if fields := rq.Validate(); len(fields) > 0 {
			svr.Error(w, apperror.NewValidation("Validation failed", fields))
			return
		}
		j, err := jobs.Create(r.Context(), rq)
		if err != nil {
			svr.Error(w, err)
			return
		}
		svr.OK(w, http.StatusCreated, j, "Job created successfully")
	}
}

func ListJobsHandler(svr server.Server, jobs jobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := jobs.List(r.Context())
		if err != nil {
			svr.Error(w, err)
			return
		}
		svr.OKList(w, out, len(out))
	}
}

func GetJobHandler(svr server.Server, jobs jobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := jobs.GetByID(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			svr.Error(w, err)
			return
		}
		svr.OK(w, http.StatusOK, j, "")
	}
}

func UpdateJobHandler(svr server.Server, jobs jobStore, cache summaryInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rq, err := decodeJobRq(r)
		if err != nil {
			svr.Error(w, err)
			return
		}
		id := mux.Vars(r)["id"]
		j, err := jobs.Update(r.Context(), id, rq)
		if err != nil {
			svr.Error(w, err)
			return
		}
		cache.Invalidate(id)
		svr.OK(w, http.StatusOK, j, "Job updated successfully")
	}
}

func DeleteJobHandler(svr server.Server, jobs jobStore, cache summaryInvalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := jobs.Delete(r.Context(), id); err != nil {
			svr.Error(w, err)
			return
		}
		cache.Invalidate(id)
		svr.OK(w, http.StatusOK, nil, "Job deleted successfully")
	}
}
