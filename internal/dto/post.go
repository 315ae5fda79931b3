package dto

import "github.com/tutorconnect/tutorconnect-api/internal/models"

// CreatePostRequest captures POST /posts.
type CreatePostRequest struct {
	Type        models.PostType `json:"type" validate:"required,oneof=TEACHER STUDENT"`
	Title       string          `json:"title" validate:"required,min=3,max=120"`
	Description string          `json:"description" validate:"required,min=10,max=5000"`
	Subject     string          `json:"subject" validate:"required,max=60"`
	Location    string          `json:"location" validate:"max=120"`
	HourlyRate  *int            `json:"hourly_rate" validate:"omitempty,min=0,max=10000"`
	Online      bool            `json:"online"`
}

// UpdatePostRequest captures PATCH /posts/:id.
type UpdatePostRequest struct {
	Type        *models.PostType `json:"type" validate:"omitempty,oneof=TEACHER STUDENT"`
	Title       *string          `json:"title" validate:"omitempty,min=3,max=120"`
	Description *string          `json:"description" validate:"omitempty,min=10,max=5000"`
	Subject     *string          `json:"subject" validate:"omitempty,max=60"`
	Location    *string          `json:"location" validate:"omitempty,max=120"`
	HourlyRate  *int             `json:"hourly_rate" validate:"omitempty,min=0,max=10000"`
	Online      *bool            `json:"online"`
	Active      *bool            `json:"active"`
}

// PostListResponse is a cached search page.
type PostListResponse struct {
	Items      []models.Post     `json:"items"`
	Pagination models.Pagination `json:"pagination"`
}
