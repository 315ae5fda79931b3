package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
	"github.com/tutorconnect/tutorconnect-api/pkg/export"
	"github.com/tutorconnect/tutorconnect-api/pkg/storage"
)

type datasetUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type datasetPostReader interface {
	ListByAuthor(ctx context.Context, authorID string) ([]models.Post, error)
}

type datasetChatReader interface {
	ListAllForUser(ctx context.Context, userID string) ([]models.Chat, error)
}

type datasetMessageReader interface {
	ListBySender(ctx context.Context, userID string) ([]models.Message, error)
}

type datasetAppointmentReader interface {
	ListAllForUser(ctx context.Context, userID string) ([]models.Appointment, error)
}

// ExportSources groups the readers a personal data export is assembled from.
type ExportSources struct {
	Users        datasetUserReader
	Posts        datasetPostReader
	Chats        datasetChatReader
	Messages     datasetMessageReader
	Appointments datasetAppointmentReader
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	Key       string
	Token     string
	URL       string
	ExpiresAt time.Time
}

// ExportService collects a user's data, renders it and persists the file in object storage.
type ExportService struct {
	sources   ExportSources
	store     storage.ObjectStore
	renderers map[models.ExportFormat]export.Renderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService with the CSV, JSON and PDF renderers.
func NewExportService(sources ExportSources, store storage.ObjectStore, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		sources: sources,
		store:   store,
		renderers: map[models.ExportFormat]export.Renderer{
			models.ExportFormatCSV:  export.NewCSVExporter(),
			models.ExportFormatJSON: export.NewJSONExporter(),
			models.ExportFormatPDF:  export.NewPDFExporter(),
		},
		signer: signer,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Generate renders the export for req and stores it.
func (s *ExportService) Generate(ctx context.Context, req *models.DataRequest) (*ExportResult, error) {
	if req == nil {
		return nil, fmt.Errorf("data request nil")
	}
	format := models.ExportFormatJSON
	if req.Format != nil {
		format = *req.Format
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, fmt.Errorf("unsupported export format %s", format)
	}

	dataset, err := s.Collect(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(BuildExportDocument(dataset))
	if err != nil {
		return nil, fmt.Errorf("render export: %w", err)
	}

	key := s.buildKey(req, renderer.Extension())
	if err := s.store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), renderer.ContentType()); err != nil {
		return nil, fmt.Errorf("store export: %w", err)
	}
	s.logger.Info("export stored", zap.String("request_id", req.ID), zap.String("key", key), zap.Int("bytes", len(payload)))

	result := &ExportResult{Key: key}
	if link, err := s.Link(req.ID, key); err == nil {
		result.Token, result.URL, result.ExpiresAt = link.Token, link.URL, link.ExpiresAt
	} else {
		s.logger.Warn("sign export link failed", zap.String("request_id", req.ID), zap.Error(err))
	}
	return result, nil
}

// Link signs a fresh download link for a stored export.
func (s *ExportService) Link(requestID, key string) (*ExportResult, error) {
	if s.signer == nil {
		return nil, fmt.Errorf("signer not configured")
	}
	token, expiresAt, err := s.signer.Generate(requestID, key)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &ExportResult{
		Key:       key,
		Token:     token,
		URL:       fmt.Sprintf("%s/gdpr/exports/download?token=%s", prefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// ParseToken validates a download token.
func (s *ExportService) ParseToken(token string) (*storage.SignedObject, error) {
	if s.signer == nil {
		return nil, fmt.Errorf("signer not configured")
	}
	return s.signer.Parse(token, false)
}

// Open returns the stored export file.
func (s *ExportService) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.store.Get(ctx, key)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}

// ContentType returns the MIME type of a stored export key.
func (s *ExportService) ContentType(key string) string {
	for _, renderer := range s.renderers {
		if strings.HasSuffix(key, "."+renderer.Extension()) {
			return renderer.ContentType()
		}
	}
	return "application/octet-stream"
}

// Collect loads everything the service stores about userID.
func (s *ExportService) Collect(ctx context.Context, userID string) (*models.UserDataset, error) {
	user, err := s.sources.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	posts, err := s.sources.Posts.ListByAuthor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}
	chats, err := s.sources.Chats.ListAllForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	messages, err := s.sources.Messages.ListBySender(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	appts, err := s.sources.Appointments.ListAllForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	return &models.UserDataset{User: *user, Posts: posts, Chats: chats, Messages: messages, Appointments: appts}, nil
}

func (s *ExportService) buildKey(req *models.DataRequest, ext string) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("exports/%s/%s_%s.%s", req.UserID, req.ID, timestamp, ext)
}

// BuildExportDocument lays a dataset out as titled tables.
func BuildExportDocument(d *models.UserDataset) export.Document {
	u := d.User
	profile := export.Section{
		Title:   "profile",
		Headers: []string{"id", "email", "full_name", "phone", "bio", "location", "subjects", "teacher_sessions", "student_sessions", "created_at"},
		Rows: []map[string]string{{
			"id":               u.ID,
			"email":            u.Email,
			"full_name":        u.FullName,
			"phone":            deref(u.Phone),
			"bio":              deref(u.Bio),
			"location":         deref(u.Location),
			"subjects":         strings.Join(u.Subjects, ", "),
			"teacher_sessions": strconv.Itoa(u.TeacherSessions),
			"student_sessions": strconv.Itoa(u.StudentSessions),
			"created_at":       formatTime(u.CreatedAt),
		}},
	}

	posts := export.Section{Title: "posts", Headers: []string{"id", "type", "title", "subject", "location", "hourly_rate", "active", "created_at"}}
	for _, p := range d.Posts {
		rate := ""
		if p.HourlyRate != nil {
			rate = strconv.Itoa(*p.HourlyRate)
		}
		posts.Rows = append(posts.Rows, map[string]string{
			"id":          p.ID,
			"type":        string(p.Type),
			"title":       p.Title,
			"subject":     p.Subject,
			"location":    p.Location,
			"hourly_rate": rate,
			"active":      strconv.FormatBool(p.Active),
			"created_at":  formatTime(p.CreatedAt),
		})
	}

	chats := export.Section{Title: "chats", Headers: []string{"id", "post_id", "created_by", "created_at"}}
	for _, c := range d.Chats {
		chats.Rows = append(chats.Rows, map[string]string{
			"id":         c.ID,
			"post_id":    deref(c.PostID),
			"created_by": c.CreatedBy,
			"created_at": formatTime(c.CreatedAt),
		})
	}

	messages := export.Section{Title: "messages", Headers: []string{"id", "chat_id", "content", "created_at"}}
	for _, m := range d.Messages {
		messages.Rows = append(messages.Rows, map[string]string{
			"id":         m.ID,
			"chat_id":    m.ChatID,
			"content":    m.Content,
			"created_at": formatTime(m.CreatedAt),
		})
	}

	appts := export.Section{Title: "appointments", Headers: []string{"id", "chat_id", "role", "date_time", "duration", "location", "status"}}
	for _, a := range d.Appointments {
		role := "student"
		if a.TeacherID == u.ID {
			role = "teacher"
		}
		appts.Rows = append(appts.Rows, map[string]string{
			"id":        a.ID,
			"chat_id":   a.ChatID,
			"role":      role,
			"date_time": formatTime(a.DateTime),
			"duration":  strconv.Itoa(a.Duration),
			"location":  a.Location,
			"status":    string(a.Status),
		})
	}

	return export.Document{
		Title:    "TutorConnect data export for " + u.FullName,
		Sections: []export.Section{profile, posts, chats, messages, appts},
	}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
