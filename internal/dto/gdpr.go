package dto

import (
	"time"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
)

// CreateDataRequest captures POST /gdpr/requests.
type CreateDataRequest struct {
	Type   models.DataRequestType `json:"type" validate:"required,oneof=EXPORT ERASURE"`
	Format models.ExportFormat    `json:"format" validate:"omitempty,oneof=JSON CSV PDF"`
}

// DataRequestResponse exposes a request with a download link once an export is ready.
type DataRequestResponse struct {
	models.DataRequest
	DownloadURL *string    `json:"download_url,omitempty"`
	ExpiresAt   *time.Time `json:"download_expires_at,omitempty"`
}
