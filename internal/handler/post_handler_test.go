package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorconnect/tutorconnect-api/internal/dto"
	"github.com/tutorconnect/tutorconnect-api/internal/middleware"
	"github.com/tutorconnect/tutorconnect-api/internal/models"
	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
)

type postServiceMock struct {
	lastFilter  models.PostFilter
	listCalled  bool
	hit         bool
	updateErr   error
	lastAuthor  string
	deletedID   string
	deletedUser string
}

func (m *postServiceMock) List(ctx context.Context, filter models.PostFilter) (*dto.PostListResponse, bool, error) {
	m.listCalled = true
	m.lastFilter = filter
	return &dto.PostListResponse{
		Items:      []models.Post{{ID: "post-1", Title: "Algebra"}},
		Pagination: models.Pagination{Page: 1, PageSize: 20, TotalCount: 1},
	}, m.hit, nil
}

func (m *postServiceMock) Get(ctx context.Context, id string) (*models.Post, error) {
	return &models.Post{ID: id}, nil
}

func (m *postServiceMock) Create(ctx context.Context, authorID string, req dto.CreatePostRequest) (*models.Post, error) {
	m.lastAuthor = authorID
	return &models.Post{ID: "post-new", AuthorID: authorID, Title: req.Title}, nil
}

func (m *postServiceMock) Update(ctx context.Context, userID, id string, req dto.UpdatePostRequest) (*models.Post, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &models.Post{ID: id}, nil
}

func (m *postServiceMock) Delete(ctx context.Context, userID, id string) error {
	m.deletedID = id
	m.deletedUser = userID
	return nil
}

func TestPostHandlerListParsesFilters(t *testing.T) {
	svc := &postServiceMock{hit: true}
	h := NewPostHandler(svc)

	c, w := newTestContext(http.MethodGet, "/posts?type=teacher&subject=Math&online=true&minRate=10&maxRate=50&page=2&limit=5&sort=hourly_rate&order=asc&search=algebra", "")
	middleware.WithResponseMeta()(c)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastFilter.Type)
	assert.Equal(t, models.PostTypeTeacher, *svc.lastFilter.Type)
	assert.Equal(t, "Math", svc.lastFilter.Subject)
	require.NotNil(t, svc.lastFilter.Online)
	assert.True(t, *svc.lastFilter.Online)
	assert.Equal(t, 10, *svc.lastFilter.MinRate)
	assert.Equal(t, 50, *svc.lastFilter.MaxRate)
	assert.Equal(t, 2, svc.lastFilter.Page)
	assert.Equal(t, 5, svc.lastFilter.PageSize)
	assert.Equal(t, "hourly_rate", svc.lastFilter.SortBy)
	assert.Equal(t, "algebra", svc.lastFilter.Search)

	body := decodeEnvelope(t, w)
	meta, ok := body["meta"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, meta["cache_hit"])
	assert.NotNil(t, body["pagination"])
}

func TestPostHandlerListRejectsBadType(t *testing.T) {
	svc := &postServiceMock{}
	h := NewPostHandler(svc)

	c, w := newTestContext(http.MethodGet, "/posts?type=parent", "")
	h.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, svc.listCalled)
}

func TestPostHandlerListRejectsBadRate(t *testing.T) {
	svc := &postServiceMock{}
	h := NewPostHandler(svc)

	c, w := newTestContext(http.MethodGet, "/posts?minRate=cheap", "")
	h.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, svc.listCalled)
}

func TestPostHandlerCreateUsesCaller(t *testing.T) {
	svc := &postServiceMock{}
	h := NewPostHandler(svc)

	c, w := newTestContext(http.MethodPost, "/posts", `{"type":"TEACHER","title":"Algebra","description":"Weekly algebra lessons","subject":"Math"}`)
	asUser(c, "author-1")
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "author-1", svc.lastAuthor)
}

func TestPostHandlerUpdateForbidden(t *testing.T) {
	svc := &postServiceMock{updateErr: appErrors.Clone(appErrors.ErrForbidden, "only the author can change this post")}
	h := NewPostHandler(svc)

	c, w := newTestContext(http.MethodPatch, "/posts/post-1", `{"title":"Geometry"}`)
	c.Params = append(c.Params, ginParam("id", "post-1"))
	asUser(c, "someone-else")
	h.Update(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, w))
}

func TestPostHandlerDelete(t *testing.T) {
	svc := &postServiceMock{}
	h := NewPostHandler(svc)

	c, w := newTestContext(http.MethodDelete, "/posts/post-1", "")
	c.Params = append(c.Params, ginParam("id", "post-1"))
	asUser(c, "author-1")
	h.Delete(c)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "post-1", svc.deletedID)
	assert.Equal(t, "author-1", svc.deletedUser)
}
