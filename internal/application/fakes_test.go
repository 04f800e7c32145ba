package application

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/0x13a/jobapply/internal/apperror"
	"github.com/0x13a/jobapply/internal/storage"
)

type fakeJobs struct {
	known map[string]bool
	err   error
	hook  func()
}

func (f *fakeJobs) Exists(_ context.Context, id string) (bool, error) {
	if f.hook != nil {
		f.hook()
	}
	if f.err != nil {
		return false, f.err
	}
	return f.known[id], nil
}

// memRepo enforces one application per (job, email) at insert time like the
// unique index does. skipPrecheck makes the pre-check blind, as when two
// submissions race.
type memRepo struct {
	mu           sync.Mutex
	apps         map[string]*Application
	skipPrecheck bool
	insertErr    error
	calls        int
}

func newMemRepo() *memRepo {
	return &memRepo{apps: make(map[string]*Application)}
}

func (r *memRepo) ExistsForJobAndEmail(_ context.Context, jobID, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.skipPrecheck {
		return false, nil
	}
	for _, a := range r.apps {
		if a.JobID == jobID && a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) Insert(_ context.Context, a *Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.insertErr != nil {
		return r.insertErr
	}
	for _, existing := range r.apps {
		if existing.JobID == a.JobID && existing.Email == a.Email {
			return apperror.Wrap(apperror.KindDuplicate, errors.New("unique violation"), msgDuplicate)
		}
	}
	cp := *a
	r.apps[a.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	a, ok := r.apps[id]
	if !ok {
		return nil, apperror.New(apperror.KindNotFound, msgNotFound)
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) filter(keep func(*Application) bool) []*Application {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	out := []*Application{}
	for _, a := range r.apps {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.After(out[j].AppliedAt) })
	return out
}

func (r *memRepo) ListByJob(_ context.Context, jobID string) ([]*Application, error) {
	return r.filter(func(a *Application) bool { return a.JobID == jobID }), nil
}

func (r *memRepo) ListByUser(_ context.Context, userID string) ([]*Application, error) {
	return r.filter(func(a *Application) bool { return a.UserID != nil && *a.UserID == userID }), nil
}

func (r *memRepo) ListByEmail(_ context.Context, email string) ([]*Application, error) {
	return r.filter(func(a *Application) bool { return a.Email == email }), nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id string, status Status) (*Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	a, ok := r.apps[id]
	if !ok {
		return nil, apperror.New(apperror.KindNotFound, msgNotFound)
	}
	a.Status = status
	cp := *a
	return &cp, nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if _, ok := r.apps[id]; !ok {
		return apperror.New(apperror.KindNotFound, msgNotFound)
	}
	delete(r.apps, id)
	return nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.apps)
}

func (r *memRepo) touched() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// brokenDeletes wraps a store whose deletes always fail.
type brokenDeletes struct {
	*storage.Store
	deletes int
}

func (b *brokenDeletes) Delete(context.Context, string) error {
	b.deletes++
	return errors.New("read-only file system")
}
