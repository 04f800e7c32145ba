package application

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x13a/jobapply/internal/apperror"
	"github.com/0x13a/jobapply/internal/auth"
	"github.com/0x13a/jobapply/internal/database"
	"github.com/0x13a/jobapply/internal/metrics"
	"github.com/0x13a/jobapply/internal/storage"
	"github.com/0x13a/jobapply/internal/upload"
)

const (
	testDir = "uploads/resumes"
	testMax = 5 * 1024 * 1024
	twoMB   = 2 * 1024 * 1024
)

type intakeFixture struct {
	svc     *IntakeService
	repo    *memRepo
	jobs    *fakeJobs
	store   *storage.Store
	fs      afero.Fs
	metrics *metrics.Metrics
}

func newIntakeFixture(t *testing.T) *intakeFixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	store, err := storage.NewStore(fs, testDir, testMax)
	require.NoError(t, err)
	f := &intakeFixture{
		repo:    newMemRepo(),
		jobs:    &fakeJobs{known: map[string]bool{"J1": true}},
		store:   store,
		fs:      fs,
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.svc = NewIntakeService(f.jobs, f.repo, store, upload.NewGatekeeper(testMax), zerolog.Nop(), f.metrics)
	return f
}

func (f *intakeFixture) storedFiles(t *testing.T) int {
	t.Helper()
	infos, err := afero.ReadDir(f.fs, testDir)
	require.NoError(t, err)
	return len(infos)
}

func pdfFile(size int) *upload.File {
	return &upload.File{
		Filename:    "cv.pdf",
		ContentType: "application/pdf",
		Size:        int64(size),
		Content:     bytes.NewReader(make([]byte, size)),
	}
}

func validFields(email string) Fields {
	return Fields{
		FullName:   "Ada Lovelace",
		Email:      email,
		Phone:      "+44 20 7946 0000",
		Age:        30,
		Experience: 5,
		Education:  "BSc Mathematics",
	}
}

func TestSubmit_Created(t *testing.T) {
	f := newIntakeFixture(t)

	app, err := f.svc.Submit(context.Background(), auth.Anonymous, "J1", validFields("a@x.com"), pdfFile(twoMB))
	require.NoError(t, err)

	assert.Len(t, app.ID, 27)
	assert.Equal(t, "J1", app.JobID)
	assert.Equal(t, StatusPending, app.Status)
	assert.Equal(t, "Immediate", app.NoticePeriod)
	assert.Nil(t, app.UserID)
	assert.Regexp(t, `^/uploads/resumes/resume-\d+-[0-9A-Za-z]{27}\.pdf$`, app.ResumeURL)

	ok, err := f.store.Exists(context.Background(), app.ResumeURL)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, f.repo.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Submissions.WithLabelValues("created")))
}

func TestSubmit_AuthenticatedCallerOwnsApplication(t *testing.T) {
	f := newIntakeFixture(t)
	caller := auth.Identity{ID: "2Ht1Pq9yV0xGm7kz4bYq8a1cDeF", Email: "a@x.com", Role: auth.RoleUser}

	app, err := f.svc.Submit(context.Background(), caller, "J1", validFields(" A@X.com "), pdfFile(1024))
	require.NoError(t, err)
	require.NotNil(t, app.UserID)
	assert.Equal(t, caller.ID, *app.UserID)
	assert.Equal(t, "a@x.com", app.Email)
}

func TestSubmit_SecondSubmissionIsDuplicate(t *testing.T) {
	f := newIntakeFixture(t)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, auth.Anonymous, "J1", validFields("a@x.com"), pdfFile(twoMB))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, first.Status)

	_, err = f.svc.Submit(ctx, auth.Anonymous, "J1", validFields("a@x.com"), pdfFile(twoMB))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.Duplicate))
	assert.Equal(t, 400, apperror.HTTPStatus(apperror.As(err).Kind))

	assert.Equal(t, 1, f.repo.count())
	assert.Equal(t, 1, f.storedFiles(t))
}

func TestSubmit_SameEmailOtherJob(t *testing.T) {
	f := newIntakeFixture(t)
	f.jobs.known["J2"] = true

	_, err := f.svc.Submit(context.Background(), auth.Anonymous, "J1", validFields("a@x.com"), pdfFile(10))
	require.NoError(t, err)
	_, err = f.svc.Submit(context.Background(), auth.Anonymous, "J2", validFields("a@x.com"), pdfFile(10))
	require.NoError(t, err)
	assert.Equal(t, 2, f.storedFiles(t))
}

func TestSubmit_MissingResume(t *testing.T) {
	f := newIntakeFixture(t)

	_, err := f.svc.Submit(context.Background(), auth.Anonymous, "J1", validFields("a@x.com"), nil)
	assert.True(t, errors.Is(err, apperror.MissingResume))
	assert.Equal(t, 0, f.repo.touched())
}

func TestSubmit_RejectsFileType(t *testing.T) {
	f := newIntakeFixture(t)
	file := pdfFile(1024)
	file.ContentType = "image/png"

	_, err := f.svc.Submit(context.Background(), auth.Anonymous, "J1", validFields("a@x.com"), file)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
	assert.Equal(t, 0, f.storedFiles(t))
	assert.Equal(t, 0, f.repo.touched())
}

func TestSubmit_RejectsOversizeFile(t *testing.T) {
	f := newIntakeFixture(t)

	_, err := f.svc.Submit(context.Background(), auth.Anonymous, "J1", validFields("a@x.com"), pdfFile(testMax+1))
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
	assert.Equal(t, 0, f.storedFiles(t))
	assert.Equal(t, 0, f.repo.count())
}

func TestSubmit_RejectsContentLargerThanDeclared(t *testing.T) {
	f := newIntakeFixture(t)
	file := pdfFile(testMax + 10)
	file.Size = 1024

	_, err := f.svc.Submit(context.Background(), auth.Anonymous, "J1", validFields("a@x.com"), file)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
	assert.Contains(t, apperror.As(err).Fields, upload.FieldName)
	assert.Equal(t, 0, f.storedFiles(t))
}

func TestSubmit_JobNotFoundRemovesFile(t *testing.T) {
	f := newIntakeFixture(t)

	_, err := f.svc.Submit(context.Background(), auth.Anonymous, "nope", validFields("a@x.com"), pdfFile(1024))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.JobNotFound))
	assert.Equal(t, 404, apperror.HTTPStatus(apperror.As(err).Kind))
	assert.Equal(t, 0, f.storedFiles(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CompensatingDeletes.WithLabelValues("ok")))
}

func TestSubmit_ValidationListsEveryField(t *testing.T) {
	f := newIntakeFixture(t)
	fields := Fields{Email: "a@x.com", Age: 17, Experience: -1}

	_, err := f.svc.Submit(context.Background(), auth.Anonymous, "J1", fields, pdfFile(1024))
	require.Error(t, err)
	e := apperror.As(err)
	assert.Equal(t, apperror.KindValidation, e.Kind)
	for _, field := range []string{"fullName", "phone", "age", "experience", "education"} {
		assert.Contains(t, e.Fields, field)
	}
	assert.NotContains(t, e.Fields, "email")
	assert.Equal(t, 0, f.storedFiles(t))
	assert.Equal(t, 0, f.repo.count())
}

func TestSubmit_CheckOrder(t *testing.T) {
	f := newIntakeFixture(t)
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, auth.Anonymous, "J1", validFields("a@x.com"), pdfFile(10))
	require.NoError(t, err)

	bad := Fields{Email: "a@x.com"}

	// unknown job wins over duplicate and invalid fields
	_, err = f.svc.Submit(ctx, auth.Anonymous, "J9", bad, pdfFile(10))
	assert.True(t, errors.Is(err, apperror.JobNotFound))

	// duplicate wins over invalid fields
	_, err = f.svc.Submit(ctx, auth.Anonymous, "J1", bad, pdfFile(10))
	assert.True(t, errors.Is(err, apperror.Duplicate))

	// missing file wins over everything
	_, err = f.svc.Submit(ctx, auth.Anonymous, "J9", bad, nil)
	assert.True(t, errors.Is(err, apperror.MissingResume))

	assert.Equal(t, 1, f.storedFiles(t))
}

func TestSubmit_InsertFailureRemovesFile(t *testing.T) {
	f := newIntakeFixture(t)
	f.repo.insertErr = apperror.NewStorage(errors.New("connection reset"), "unable to save application")

	_, err := f.svc.Submit(context.Background(), auth.Anonymous, "J1", validFields("a@x.com"), pdfFile(1024))
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindStorage))
	assert.Equal(t, 0, f.storedFiles(t))
}

func TestSubmit_ConcurrentDuplicatesKeepOneFile(t *testing.T) {
	f := newIntakeFixture(t)
	f.repo.skipPrecheck = true

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dupes   int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(context.Background(), auth.Anonymous, "J1", validFields("a@x.com"), pdfFile(1024))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if errors.Is(err, apperror.Duplicate) {
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, dupes)
	assert.Equal(t, 1, f.repo.count())
	assert.Equal(t, 1, f.storedFiles(t))
}

func TestSubmit_UniqueViolationFromPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fs := afero.NewMemMapFs()
	store, err := storage.NewStore(fs, testDir, testMax)
	require.NoError(t, err)
	svc := NewIntakeService(&fakeJobs{known: map[string]bool{"J1": true}}, NewRepository(db), store, upload.NewGatekeeper(testMax), zerolog.Nop(), nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM application WHERE job_id = $1 AND email = $2)`)).
		WithArgs("J1", "a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO application`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: database.UniqueJobEmailConstraint})

	_, err = svc.Submit(context.Background(), auth.Anonymous, "J1", validFields("a@x.com"), pdfFile(1024))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.Duplicate))
	assert.Equal(t, msgDuplicate, apperror.As(err).Message)

	infos, err := afero.ReadDir(fs, testDir)
	require.NoError(t, err)
	assert.Empty(t, infos)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_JobDeletedBeforeInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fs := afero.NewMemMapFs()
	store, err := storage.NewStore(fs, testDir, testMax)
	require.NoError(t, err)
	svc := NewIntakeService(&fakeJobs{known: map[string]bool{"J1": true}}, NewRepository(db), store, upload.NewGatekeeper(testMax), zerolog.Nop(), nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM application WHERE job_id = $1 AND email = $2)`)).
		WithArgs("J1", "a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO application`)).
		WillReturnError(&pq.Error{Code: "23503", Constraint: database.JobForeignKeyConstraint})

	_, err = svc.Submit(context.Background(), auth.Anonymous, "J1", validFields("a@x.com"), pdfFile(1024))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.JobNotFound))
	assert.Equal(t, 404, apperror.HTTPStatus(apperror.As(err).Kind))

	infos, err := afero.ReadDir(fs, testDir)
	require.NoError(t, err)
	assert.Empty(t, infos)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_FailedReleaseKeepsOriginalError(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := storage.NewStore(fs, testDir, testMax)
	require.NoError(t, err)
	blobs := &brokenDeletes{Store: store}
	m := metrics.New(prometheus.NewRegistry())
	svc := NewIntakeService(&fakeJobs{known: map[string]bool{}}, newMemRepo(), blobs, upload.NewGatekeeper(testMax), zerolog.Nop(), m)

	_, err = svc.Submit(context.Background(), auth.Anonymous, "J1", validFields("a@x.com"), pdfFile(1024))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.JobNotFound))
	assert.Equal(t, 1, blobs.deletes)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompensatingDeletes.WithLabelValues("failed")))
}

func TestSubmit_ReleaseSurvivesCancelledRequest(t *testing.T) {
	f := newIntakeFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.jobs.hook = cancel
	f.jobs.err = context.Canceled

	_, err := f.svc.Submit(ctx, auth.Anonymous, "J1", validFields("a@x.com"), pdfFile(1024))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.storedFiles(t))
}
