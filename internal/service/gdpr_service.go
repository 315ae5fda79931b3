package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutorconnect/tutorconnect-api/internal/dto"
	"github.com/tutorconnect/tutorconnect-api/internal/models"
	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
	"github.com/tutorconnect/tutorconnect-api/pkg/jobs"
	"github.com/tutorconnect/tutorconnect-api/pkg/storage"
)

// DataRequestJobType identifies GDPR processing jobs.
const DataRequestJobType = "gdpr.request"

type dataRequestJob struct {
	ID   string
	Type models.DataRequestType
}

type dataRequestRepository interface {
	Create(ctx context.Context, req *models.DataRequest) error
	FindByID(ctx context.Context, id string) (*models.DataRequest, error)
	HasOpen(ctx context.Context, userID string, t models.DataRequestType) (bool, error)
	List(ctx context.Context, filter models.DataRequestFilter) ([]models.DataRequest, int, error)
	MarkProcessing(ctx context.Context, id string) (bool, error)
	MarkCompleted(ctx context.Context, id string, resultKey *string, finishedAt time.Time) error
	MarkFailed(ctx context.Context, id, message string, finishedAt time.Time) error
	ListPending(ctx context.Context, limit int) ([]models.DataRequest, error)
	ListExpiredExports(ctx context.Context, cutoff time.Time, limit int) ([]models.DataRequest, error)
	ClearResult(ctx context.Context, id string) error
}

type userAnonymizer interface {
	Anonymize(ctx context.Context, id string, now time.Time) error
}

type dataExporter interface {
	Generate(ctx context.Context, req *models.DataRequest) (*ExportResult, error)
	Link(requestID, key string) (*ExportResult, error)
	ParseToken(token string) (*storage.SignedObject, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	ContentType(key string) string
}

// GDPRConfig tunes data request handling.
type GDPRConfig struct {
	ExportTTL time.Duration
}

// GDPRService handles data export and erasure requests.
type GDPRService struct {
	repo      dataRequestRepository
	users     userAnonymizer
	exports   dataExporter
	queue     jobEnqueuer
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       GDPRConfig
	now       func() time.Time
}

// NewGDPRService constructs the service. SetQueue must be called before requests are accepted.
func NewGDPRService(repo dataRequestRepository, users userAnonymizer, exports dataExporter, metrics *MetricsService, cfg GDPRConfig, validate *validator.Validate, logger *zap.Logger) *GDPRService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ExportTTL <= 0 {
		cfg.ExportTTL = 7 * 24 * time.Hour
	}
	return &GDPRService{repo: repo, users: users, exports: exports, metrics: metrics, validator: validate, logger: logger, cfg: cfg, now: time.Now}
}

// SetQueue attaches the worker queue that runs Process.
func (s *GDPRService) SetQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Create files a new request for userID. Only one open request per type is allowed.
func (s *GDPRService) Create(ctx context.Context, userID string, req dto.CreateDataRequest) (*dto.DataRequestResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid data request payload")
	}
	open, err := s.repo.HasOpen(ctx, userID, req.Type)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open requests")
	}
	if open {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a request of this type is already in progress")
	}

	record := &models.DataRequest{UserID: userID, Type: req.Type, Status: models.DataRequestPending}
	if req.Type == models.DataRequestExport {
		format := req.Format
		if format == "" {
			format = models.ExportFormatJSON
		}
		record.Format = &format
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create data request")
	}
	s.observe(record.Type, record.Status)
	s.enqueue(record)
	return &dto.DataRequestResponse{DataRequest: *record}, nil
}

// ListOwn lists the caller's requests with fresh download links for ready exports.
func (s *GDPRService) ListOwn(ctx context.Context, userID string, page, pageSize int) ([]dto.DataRequestResponse, *models.Pagination, error) {
	return s.list(ctx, models.DataRequestFilter{UserID: userID, Page: page, PageSize: pageSize})
}

// ListAll lists every request. Admin only.
func (s *GDPRService) ListAll(ctx context.Context, filter models.DataRequestFilter) ([]dto.DataRequestResponse, *models.Pagination, error) {
	return s.list(ctx, filter)
}

// Download resolves a signed token to the export file.
func (s *GDPRService) Download(ctx context.Context, token string) (io.ReadCloser, string, string, error) {
	obj, err := s.exports.ParseToken(token)
	if err != nil {
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token")
	}
	req, err := s.repo.FindByID(ctx, obj.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load data request")
	}
	if req.Status != models.DataRequestCompleted || req.ResultKey == nil || *req.ResultKey != obj.Key {
		return nil, "", "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	rc, err := s.exports.Open(ctx, obj.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	return rc, s.exports.ContentType(obj.Key), baseName(obj.Key), nil
}

// Process is the jobs.Handler running a queued request. The first attempt claims the request;
// retries continue an already claimed one.
func (s *GDPRService) Process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(dataRequestJob)
	if !ok {
		s.logger.Error("unexpected data request payload", zap.String("job_id", job.ID))
		return nil
	}
	id := payload.ID
	if job.Attempt == 0 {
		claimed, err := s.repo.MarkProcessing(ctx, id)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
	}
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	switch req.Type {
	case models.DataRequestExport:
		result, err := s.exports.Generate(ctx, req)
		if err != nil {
			return err
		}
		if err := s.repo.MarkCompleted(ctx, id, &result.Key, now); err != nil {
			return err
		}
	case models.DataRequestErasure:
		if err := s.users.Anonymize(ctx, req.UserID, now); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err := s.repo.MarkCompleted(ctx, id, nil, now); err != nil {
			return err
		}
	default:
		return s.fail(ctx, req, "unsupported request type")
	}

	s.observe(req.Type, models.DataRequestCompleted)
	s.logger.Info("data request completed", zap.String("request_id", id), zap.String("type", string(req.Type)))
	return nil
}

// GiveUp marks a request failed once its job exhausted retries.
func (s *GDPRService) GiveUp(job jobs.Job, err error) {
	payload, ok := job.Payload.(dataRequestJob)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if markErr := s.repo.MarkFailed(ctx, payload.ID, err.Error(), s.now().UTC()); markErr != nil {
		s.logger.Error("mark data request failed", zap.String("request_id", payload.ID), zap.Error(markErr))
		return
	}
	s.observe(payload.Type, models.DataRequestFailed)
}

// Resume re-queues requests left pending by a previous process.
func (s *GDPRService) Resume(ctx context.Context) (int, error) {
	pending, err := s.repo.ListPending(ctx, 100)
	if err != nil {
		return 0, err
	}
	for i := range pending {
		s.enqueue(&pending[i])
	}
	return len(pending), nil
}

// CleanupExports deletes export files older than the export TTL.
func (s *GDPRService) CleanupExports(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.cfg.ExportTTL)
	expired, err := s.repo.ListExpiredExports(ctx, cutoff, 100)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, req := range expired {
		if req.ResultKey == nil {
			continue
		}
		if err := s.exports.Delete(ctx, *req.ResultKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("delete expired export failed", zap.String("request_id", req.ID), zap.Error(err))
			continue
		}
		if err := s.repo.ClearResult(ctx, req.ID); err != nil {
			s.logger.Warn("clear export result failed", zap.String("request_id", req.ID), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *GDPRService) list(ctx context.Context, filter models.DataRequestFilter) ([]dto.DataRequestResponse, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	reqs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list data requests")
	}
	out := make([]dto.DataRequestResponse, 0, len(reqs))
	for _, req := range reqs {
		resp := dto.DataRequestResponse{DataRequest: req}
		if req.Type == models.DataRequestExport && req.Status == models.DataRequestCompleted && req.ResultKey != nil {
			if link, err := s.exports.Link(req.ID, *req.ResultKey); err == nil {
				url, expires := link.URL, link.ExpiresAt
				resp.DownloadURL, resp.ExpiresAt = &url, &expires
			}
		}
		out = append(out, resp)
	}
	return out, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *GDPRService) fail(ctx context.Context, req *models.DataRequest, message string) error {
	if err := s.repo.MarkFailed(ctx, req.ID, message, s.now().UTC()); err != nil {
		return err
	}
	s.observe(req.Type, models.DataRequestFailed)
	return nil
}

func (s *GDPRService) enqueue(req *models.DataRequest) {
	if s.queue == nil {
		s.logger.Warn("data request queue not configured", zap.String("request_id", req.ID))
		return
	}
	job := jobs.Job{ID: req.ID, Type: DataRequestJobType, Payload: dataRequestJob{ID: req.ID, Type: req.Type}}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("enqueue data request failed", zap.String("request_id", req.ID), zap.Error(err))
	}
}

func (s *GDPRService) observe(t models.DataRequestType, status models.DataRequestStatus) {
	if s.metrics != nil {
		s.metrics.ObserveDataRequest(t, status)
	}
}

func baseName(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[i+1:]
		}
	}
	return key
}

// NewDataRequestQueue builds the worker queue that runs GDPR requests.
func NewDataRequestQueue(svc *GDPRService, workers, retries int, logger *zap.Logger) *jobs.Queue {
	queue := jobs.NewQueue("gdpr-requests", svc.Process, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		RetryDelay: 10 * time.Second,
		Logger:     logger,
		OnGiveUp:   svc.GiveUp,
	})
	svc.SetQueue(queue)
	return queue
}
