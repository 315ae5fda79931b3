package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Clone(ErrForbidden, "not a participant"))

	appErr := FromError(wrapped)
	assert.Equal(t, ErrForbidden.Code, appErr.Code)
	assert.Equal(t, http.StatusForbidden, appErr.Status)
	assert.Equal(t, "not a participant", appErr.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.ErrorIs(t, appErr, sql.ErrConnDone)
}

func TestCloneDoesNotMutateOriginal(t *testing.T) {
	clone := Clone(ErrValidation, "duration must be positive")
	assert.Equal(t, "validation failed", ErrValidation.Message)
	assert.Equal(t, "duration must be positive", clone.Message)
	assert.True(t, IsCode(clone, ErrValidation.Code))
	assert.False(t, IsCode(clone, ErrConflict.Code))
}
