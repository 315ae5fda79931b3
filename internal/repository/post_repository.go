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

const postSelect = `SELECT p.id, p.author_id, u.full_name AS author_name, p.type, p.title, p.description, p.subject, p.location, p.hourly_rate, p.online, p.active, p.created_at, p.updated_at
FROM posts p JOIN users u ON u.id = p.author_id`

// PostRepository persists listings.
type PostRepository struct {
	db *sqlx.DB
}

// NewPostRepository constructs the repository.
func NewPostRepository(db *sqlx.DB) *PostRepository {
	return &PostRepository{db: db}
}

// Create inserts a post.
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now
	const query = `INSERT INTO posts (id, author_id, type, title, description, subject, location, hourly_rate, online, active, created_at, updated_at)
VALUES (:id, :author_id, :type, :title, :description, :subject, :location, :hourly_rate, :online, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, post); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// FindByID returns a post with its author name.
func (r *PostRepository) FindByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	if err := r.db.GetContext(ctx, &post, postSelect+` WHERE p.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find post: %w", err)
	}
	return &post, nil
}

// Update writes the editable columns of post.
func (r *PostRepository) Update(ctx context.Context, post *models.Post) error {
	post.UpdatedAt = time.Now().UTC()
	const query = `UPDATE posts SET type = :type, title = :title, description = :description, subject = :subject, location = :location,
hourly_rate = :hourly_rate, online = :online, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, post); err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

// Deactivate hides a post from search.
func (r *PostRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE posts SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate post: %w", err)
	}
	return nil
}

// List searches active posts.
func (r *PostRepository) List(ctx context.Context, filter models.PostFilter) ([]models.Post, int, error) {
	conditions := []string{"p.active = TRUE", "u.deleted_at IS NULL"}
	var args []interface{}
	add := func(format string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(format, len(args)))
	}

	if filter.Type != nil {
		add("p.type = $%d", *filter.Type)
	}
	if filter.Subject != "" {
		add("LOWER(p.subject) = LOWER($%d)", filter.Subject)
	}
	if filter.Location != "" {
		add("LOWER(p.location) LIKE $%d", "%"+strings.ToLower(filter.Location)+"%")
	}
	if filter.Online != nil {
		add("p.online = $%d", *filter.Online)
	}
	if filter.MinRate != nil {
		add("p.hourly_rate >= $%d", *filter.MinRate)
	}
	if filter.MaxRate != nil {
		add("p.hourly_rate <= $%d", *filter.MaxRate)
	}
	if filter.AuthorID != "" {
		add("p.author_id = $%d", filter.AuthorID)
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(p.title) LIKE $%d OR LOWER(p.description) LIKE $%d)", len(args), len(args)))
	}

	where := " WHERE " + strings.Join(conditions, " AND ")

	sortColumns := map[string]string{
		"created_at":  "p.created_at",
		"hourly_rate": "p.hourly_rate",
		"title":       "p.title",
	}
	sortBy, ok := sortColumns[filter.SortBy]
	if !ok {
		sortBy = "p.created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("%s%s ORDER BY %s %s NULLS LAST, p.id LIMIT %d OFFSET %d", postSelect, where, sortBy, sortOrder, pageSize, offset)
	var posts []models.Post
	if err := r.db.SelectContext(ctx, &posts, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM posts p JOIN users u ON u.id = p.author_id" + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}
	return posts, total, nil
}

// ListByAuthor returns every post of a user regardless of state.
func (r *PostRepository) ListByAuthor(ctx context.Context, authorID string) ([]models.Post, error) {
	var posts []models.Post
	if err := r.db.SelectContext(ctx, &posts, postSelect+` WHERE p.author_id = $1 ORDER BY p.created_at`, authorID); err != nil {
		return nil, fmt.Errorf("list posts by author: %w", err)
	}
	return posts, nil
}
