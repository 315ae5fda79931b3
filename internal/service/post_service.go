package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutorconnect/tutorconnect-api/internal/dto"
	"github.com/tutorconnect/tutorconnect-api/internal/models"
	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
)

const postsCacheNamespace = "posts"

type postRepository interface {
	Create(ctx context.Context, post *models.Post) error
	FindByID(ctx context.Context, id string) (*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Deactivate(ctx context.Context, id string) error
	List(ctx context.Context, filter models.PostFilter) ([]models.Post, int, error)
}

// PostService manages listings.
type PostService struct {
	repo      postRepository
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPostService constructs the service. cache may be nil.
func NewPostService(repo postRepository, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *PostService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PostService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// List searches active posts. Results are cached per filter; the flag reports a cache hit.
func (s *PostService) List(ctx context.Context, filter models.PostFilter) (*dto.PostListResponse, bool, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)

	key := Key(postsCacheNamespace, postFilterKey(filter)...)
	if s.cache != nil {
		var cached dto.PostListResponse
		if s.cache.Get(ctx, key, &cached) {
			return &cached, true, nil
		}
	}

	posts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list posts")
	}
	if posts == nil {
		posts = []models.Post{}
	}
	resp := &dto.PostListResponse{
		Items:      posts,
		Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, resp, s.cacheTTL)
	}
	return resp, false, nil
}

// Get returns a single post.
func (s *PostService) Get(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}
	return post, nil
}

// Create publishes a post authored by authorID.
func (s *PostService) Create(ctx context.Context, authorID string, req dto.CreatePostRequest) (*models.Post, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid post payload")
	}
	post := &models.Post{
		AuthorID:    authorID,
		Type:        req.Type,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Subject:     strings.TrimSpace(req.Subject),
		Location:    strings.TrimSpace(req.Location),
		HourlyRate:  req.HourlyRate,
		Online:      req.Online,
		Active:      true,
	}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create post")
	}
	s.invalidate(ctx)
	return s.Get(ctx, post.ID)
}

// Update edits a post. Only the author may edit.
func (s *PostService) Update(ctx context.Context, userID, id string, req dto.UpdatePostRequest) (*models.Post, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid post payload")
	}
	post, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Type != nil {
		post.Type = *req.Type
	}
	if req.Title != nil {
		post.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		post.Description = strings.TrimSpace(*req.Description)
	}
	if req.Subject != nil {
		post.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.Location != nil {
		post.Location = strings.TrimSpace(*req.Location)
	}
	if req.HourlyRate != nil {
		post.HourlyRate = req.HourlyRate
	}
	if req.Online != nil {
		post.Online = *req.Online
	}
	if req.Active != nil {
		post.Active = *req.Active
	}

	if err := s.repo.Update(ctx, post); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update post")
	}
	s.invalidate(ctx)
	return post, nil
}

// Delete deactivates a post. Chats opened from it keep working.
func (s *PostService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete post")
	}
	s.invalidate(ctx)
	return nil
}

func (s *PostService) owned(ctx context.Context, userID, id string) (*models.Post, error) {
	post, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author can modify this post")
	}
	return post, nil
}

func (s *PostService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, postsCacheNamespace)
	}
}

func postFilterKey(f models.PostFilter) []string {
	parts := []string{
		fmt.Sprintf("p=%d", f.Page),
		fmt.Sprintf("s=%d", f.PageSize),
		"subject=" + strings.ToLower(f.Subject),
		"location=" + strings.ToLower(f.Location),
		"author=" + f.AuthorID,
		"q=" + strings.ToLower(f.Search),
		"sort=" + f.SortBy + ":" + f.SortOrder,
	}
	if f.Type != nil {
		parts = append(parts, "type="+string(*f.Type))
	}
	if f.Online != nil {
		parts = append(parts, fmt.Sprintf("online=%t", *f.Online))
	}
	if f.MinRate != nil {
		parts = append(parts, fmt.Sprintf("min=%d", *f.MinRate))
	}
	if f.MaxRate != nil {
		parts = append(parts, fmt.Sprintf("max=%d", *f.MaxRate))
	}
	return parts
}
