package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
)

const dataRequestColumns = `id, user_id, type, status, format, result_key, error_message, created_at, finished_at`

// DataRequestRepository persists GDPR data-subject requests.
type DataRequestRepository struct {
	db *sqlx.DB
}

// NewDataRequestRepository constructs the repository.
func NewDataRequestRepository(db *sqlx.DB) *DataRequestRepository {
	return &DataRequestRepository{db: db}
}

// Create inserts a pending request.
func (r *DataRequestRepository) Create(ctx context.Context, req *models.DataRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.DataRequestPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO data_requests (id, user_id, type, status, format, created_at) VALUES (:id, :user_id, :type, :status, :format, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create data request: %w", err)
	}
	return nil
}

// FindByID returns a request.
func (r *DataRequestRepository) FindByID(ctx context.Context, id string) (*models.DataRequest, error) {
	query := `SELECT ` + dataRequestColumns + ` FROM data_requests WHERE id = $1`
	var req models.DataRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find data request: %w", err)
	}
	return &req, nil
}

// HasOpen reports whether the user already has a pending or processing request of type t.
func (r *DataRequestRepository) HasOpen(ctx context.Context, userID string, t models.DataRequestType) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM data_requests WHERE user_id = $1 AND type = $2 AND status IN ('PENDING', 'PROCESSING'))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, t); err != nil {
		return false, fmt.Errorf("check open data request: %w", err)
	}
	return exists, nil
}

// List returns requests matching filter, newest first.
func (r *DataRequestRepository) List(ctx context.Context, filter models.DataRequestFilter) ([]models.DataRequest, int, error) {
	var conditions []string
	var args []interface{}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s FROM data_requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d", dataRequestColumns, where, pageSize, offset)
	var reqs []models.DataRequest
	if err := r.db.SelectContext(ctx, &reqs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list data requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM data_requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count data requests: %w", err)
	}
	return reqs, total, nil
}

// MarkProcessing claims a pending request for a worker. It returns false when another worker
// already claimed it.
func (r *DataRequestRepository) MarkProcessing(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE data_requests SET status = 'PROCESSING' WHERE id = $1 AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark data request processing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark data request processing: %w", err)
	}
	return affected == 1, nil
}

// MarkCompleted finishes a request, optionally recording the export object key.
func (r *DataRequestRepository) MarkCompleted(ctx context.Context, id string, resultKey *string, finishedAt time.Time) error {
	const query = `UPDATE data_requests SET status = 'COMPLETED', result_key = $2, error_message = NULL, finished_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, resultKey, finishedAt); err != nil {
		return fmt.Errorf("mark data request completed: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure.
func (r *DataRequestRepository) MarkFailed(ctx context.Context, id, message string, finishedAt time.Time) error {
	const query = `UPDATE data_requests SET status = 'FAILED', error_message = $2, finished_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, message, finishedAt); err != nil {
		return fmt.Errorf("mark data request failed: %w", err)
	}
	return nil
}

// ListPending returns requests still waiting for a worker, oldest first. Used on startup.
func (r *DataRequestRepository) ListPending(ctx context.Context, limit int) ([]models.DataRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + dataRequestColumns + ` FROM data_requests WHERE status = 'PENDING' ORDER BY created_at ASC LIMIT $1`
	var reqs []models.DataRequest
	if err := r.db.SelectContext(ctx, &reqs, query, limit); err != nil {
		return nil, fmt.Errorf("list pending data requests: %w", err)
	}
	return reqs, nil
}

// ListExpiredExports returns completed exports finished before cutoff that still hold a file.
func (r *DataRequestRepository) ListExpiredExports(ctx context.Context, cutoff time.Time, limit int) ([]models.DataRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + dataRequestColumns + ` FROM data_requests
WHERE type = 'EXPORT' AND status = 'COMPLETED' AND result_key IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2`
	var reqs []models.DataRequest
	if err := r.db.SelectContext(ctx, &reqs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list expired exports: %w", err)
	}
	return reqs, nil
}

// ClearResult forgets the stored export file of a request.
func (r *DataRequestRepository) ClearResult(ctx context.Context, id string) error {
	const query = `UPDATE data_requests SET result_key = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("clear data request result: %w", err)
	}
	return nil
}
