package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorconnect/tutorconnect-api/internal/dto"
	"github.com/tutorconnect/tutorconnect-api/internal/models"
	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
)

type memoryDataRequestRepo struct {
	reqs map[string]*models.DataRequest
	seq  int
}

func newMemoryDataRequestRepo() *memoryDataRequestRepo {
	return &memoryDataRequestRepo{reqs: map[string]*models.DataRequest{}}
}

func (m *memoryDataRequestRepo) Create(ctx context.Context, req *models.DataRequest) error {
	m.seq++
	req.ID = "r" + string(rune('0'+m.seq))
	cp := *req
	m.reqs[req.ID] = &cp
	return nil
}

func (m *memoryDataRequestRepo) FindByID(ctx context.Context, id string) (*models.DataRequest, error) {
	r, ok := m.reqs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (m *memoryDataRequestRepo) HasOpen(ctx context.Context, userID string, t models.DataRequestType) (bool, error) {
	for _, r := range m.reqs {
		if r.UserID == userID && r.Type == t && (r.Status == models.DataRequestPending || r.Status == models.DataRequestProcessing) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryDataRequestRepo) List(ctx context.Context, filter models.DataRequestFilter) ([]models.DataRequest, int, error) {
	var out []models.DataRequest
	for _, r := range m.reqs {
		if filter.UserID == "" || r.UserID == filter.UserID {
			out = append(out, *r)
		}
	}
	return out, len(out), nil
}

func (m *memoryDataRequestRepo) MarkProcessing(ctx context.Context, id string) (bool, error) {
	r := m.reqs[id]
	if r == nil || r.Status != models.DataRequestPending {
		return false, nil
	}
	r.Status = models.DataRequestProcessing
	return true, nil
}

func (m *memoryDataRequestRepo) MarkCompleted(ctx context.Context, id string, resultKey *string, finishedAt time.Time) error {
	r := m.reqs[id]
	r.Status = models.DataRequestCompleted
	r.ResultKey = resultKey
	r.FinishedAt = &finishedAt
	return nil
}

func (m *memoryDataRequestRepo) MarkFailed(ctx context.Context, id, message string, finishedAt time.Time) error {
	r := m.reqs[id]
	r.Status = models.DataRequestFailed
	r.ErrorMessage = &message
	r.FinishedAt = &finishedAt
	return nil
}

func (m *memoryDataRequestRepo) ListPending(ctx context.Context, limit int) ([]models.DataRequest, error) {
	var out []models.DataRequest
	for _, r := range m.reqs {
		if r.Status == models.DataRequestPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memoryDataRequestRepo) ListExpiredExports(ctx context.Context, cutoff time.Time, limit int) ([]models.DataRequest, error) {
	var out []models.DataRequest
	for _, r := range m.reqs {
		if r.Type == models.DataRequestExport && r.ResultKey != nil && r.FinishedAt != nil && r.FinishedAt.Before(cutoff) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memoryDataRequestRepo) ClearResult(ctx context.Context, id string) error {
	m.reqs[id].ResultKey = nil
	return nil
}

type stubAnonymizer struct {
	erased []string
	err    error
}

func (s *stubAnonymizer) Anonymize(ctx context.Context, id string, now time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.erased = append(s.erased, id)
	return nil
}

type gdprFixture struct {
	svc   *GDPRService
	repo  *memoryDataRequestRepo
	users *stubAnonymizer
	store *memoryStore
	queue *recordingQueue
	now   time.Time
}

func newGDPRFixture() *gdprFixture {
	f := &gdprFixture{
		repo:  newMemoryDataRequestRepo(),
		users: &stubAnonymizer{},
		store: newMemoryStore(),
		queue: &recordingQueue{},
		now:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewGDPRService(f.repo, f.users, newTestExportService(f.store), NewMetricsService(), GDPRConfig{ExportTTL: 24 * time.Hour}, nil, nil)
	f.svc.SetQueue(f.queue)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *gdprFixture) runQueued(t *testing.T) {
	t.Helper()
	for _, job := range f.queue.jobs {
		require.NoError(t, f.svc.Process(context.Background(), job))
	}
	f.queue.jobs = nil
}

func TestGDPRExportLifecycle(t *testing.T) {
	f := newGDPRFixture()

	created, err := f.svc.Create(context.Background(), "u1", dto.CreateDataRequest{Type: models.DataRequestExport, Format: models.ExportFormatPDF})
	require.NoError(t, err)
	assert.Equal(t, models.DataRequestPending, created.Status)
	require.Len(t, f.queue.jobs, 1)

	_, err = f.svc.Create(context.Background(), "u1", dto.CreateDataRequest{Type: models.DataRequestExport})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	f.runQueued(t)
	stored := f.repo.reqs[created.ID]
	assert.Equal(t, models.DataRequestCompleted, stored.Status)
	require.NotNil(t, stored.ResultKey)

	list, page, err := f.svc.ListOwn(context.Background(), "u1", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCount)
	require.NotNil(t, list[0].DownloadURL)

	token := (*list[0].DownloadURL)[len("/api/v1/gdpr/exports/download?token="):]
	rc, contentType, filename, err := f.svc.Download(context.Background(), token)
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.NotEmpty(t, body)
	assert.Equal(t, "application/pdf", contentType)
	assert.Contains(t, filename, ".pdf")
}

func TestGDPRDownloadRejectsBadToken(t *testing.T) {
	f := newGDPRFixture()

	_, _, _, err := f.svc.Download(context.Background(), "garbage")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestGDPRErasureAnonymizes(t *testing.T) {
	f := newGDPRFixture()

	created, err := f.svc.Create(context.Background(), "u1", dto.CreateDataRequest{Type: models.DataRequestErasure})
	require.NoError(t, err)
	assert.Nil(t, created.Format)

	f.runQueued(t)
	assert.Equal(t, []string{"u1"}, f.users.erased)
	assert.Equal(t, models.DataRequestCompleted, f.repo.reqs[created.ID].Status)
}

func TestGDPRProcessSkipsClaimedRequest(t *testing.T) {
	f := newGDPRFixture()
	created, err := f.svc.Create(context.Background(), "u1", dto.CreateDataRequest{Type: models.DataRequestErasure})
	require.NoError(t, err)
	f.repo.reqs[created.ID].Status = models.DataRequestProcessing

	f.runQueued(t)
	assert.Empty(t, f.users.erased)
}

func TestGDPRGiveUpMarksFailed(t *testing.T) {
	f := newGDPRFixture()
	f.users.err = errors.New("db down")
	created, err := f.svc.Create(context.Background(), "u1", dto.CreateDataRequest{Type: models.DataRequestErasure})
	require.NoError(t, err)

	job := f.queue.jobs[0]
	procErr := f.svc.Process(context.Background(), job)
	require.Error(t, procErr)

	job.Attempt = 1
	require.Error(t, f.svc.Process(context.Background(), job))

	f.svc.GiveUp(job, procErr)
	stored := f.repo.reqs[created.ID]
	assert.Equal(t, models.DataRequestFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "db down", *stored.ErrorMessage)
}

func TestGDPRCleanupExports(t *testing.T) {
	f := newGDPRFixture()
	created, err := f.svc.Create(context.Background(), "u1", dto.CreateDataRequest{Type: models.DataRequestExport})
	require.NoError(t, err)
	f.runQueued(t)
	key := *f.repo.reqs[created.ID].ResultKey

	removed, err := f.svc.CleanupExports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	f.now = f.now.Add(25 * time.Hour)
	removed, err = f.svc.CleanupExports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Nil(t, f.repo.reqs[created.ID].ResultKey)
	assert.NotContains(t, f.store.objects, key)
}

func TestGDPRResumeRequeuesPending(t *testing.T) {
	f := newGDPRFixture()
	_, err := f.svc.Create(context.Background(), "u1", dto.CreateDataRequest{Type: models.DataRequestErasure})
	require.NoError(t, err)
	f.queue.jobs = nil

	n, err := f.svc.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, DataRequestJobType, f.queue.jobs[0].Type)
}

func TestNewDataRequestQueueAttachesQueue(t *testing.T) {
	f := newGDPRFixture()
	queue := NewDataRequestQueue(f.svc, 1, 0, nil)
	assert.Equal(t, "gdpr-requests", queue.Name())
	var _ jobEnqueuer = queue
}
