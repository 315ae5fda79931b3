package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var dest map[string]string

	assert.ErrorIs(t, repo.Get(context.Background(), "posts:x", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "posts:x", map[string]string{"a": "b"}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "posts:*"))
}
