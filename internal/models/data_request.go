package models

import "time"

// DataRequestType enumerates GDPR data-subject request kinds.
type DataRequestType string

const (
	DataRequestExport  DataRequestType = "EXPORT"
	DataRequestErasure DataRequestType = "ERASURE"
)

// DataRequestStatus captures background processing states.
type DataRequestStatus string

const (
	DataRequestPending    DataRequestStatus = "PENDING"
	DataRequestProcessing DataRequestStatus = "PROCESSING"
	DataRequestCompleted  DataRequestStatus = "COMPLETED"
	DataRequestFailed     DataRequestStatus = "FAILED"
)

// ExportFormat enumerates supported export renderings.
type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "JSON"
	ExportFormatCSV  ExportFormat = "CSV"
	ExportFormatPDF  ExportFormat = "PDF"
)

// DataRequest is a persisted GDPR request.
type DataRequest struct {
	ID           string            `db:"id" json:"id"`
	UserID       string            `db:"user_id" json:"user_id"`
	Type         DataRequestType   `db:"type" json:"type"`
	Status       DataRequestStatus `db:"status" json:"status"`
	Format       *ExportFormat     `db:"format" json:"format,omitempty"`
	ResultKey    *string           `db:"result_key" json:"-"`
	ErrorMessage *string           `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time        `db:"finished_at" json:"finished_at,omitempty"`
}

// DataRequestFilter scopes listings.
type DataRequestFilter struct {
	UserID   string
	Status   *DataRequestStatus
	Type     *DataRequestType
	Page     int
	PageSize int
}

// UserDataset is everything stored about a user, gathered for an export.
type UserDataset struct {
	User         User          `json:"user"`
	Posts        []Post        `json:"posts"`
	Chats        []Chat        `json:"chats"`
	Messages     []Message     `json:"messages"`
	Appointments []Appointment `json:"appointments"`
}
