package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutorconnect/tutorconnect-api/internal/dto"
	"github.com/tutorconnect/tutorconnect-api/internal/models"
	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
	"github.com/tutorconnect/tutorconnect-api/pkg/storage"
)

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, params models.ProfileUpdate) error
	SetAvatarKey(ctx context.Context, id, key string) error
	GetStats(ctx context.Context, id string) (*models.UserStats, error)
}

var avatarContentTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ProfileService manages own profiles, public profiles and statistics.
type ProfileService struct {
	repo           profileRepository
	store          storage.ObjectStore
	validator      *validator.Validate
	logger         *zap.Logger
	maxAvatarBytes int64
}

// NewProfileService constructs the service.
func NewProfileService(repo profileRepository, store storage.ObjectStore, validate *validator.Validate, logger *zap.Logger, maxAvatarBytes int64) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if maxAvatarBytes <= 0 {
		maxAvatarBytes = 2 << 20
	}
	return &ProfileService{repo: repo, store: store, validator: validate, logger: logger, maxAvatarBytes: maxAvatarBytes}
}

// Get returns the caller's own profile.
func (s *ProfileService) Get(ctx context.Context, userID string) (*dto.ProfileResponse, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toProfileResponse(user), nil
}

// Update applies a partial profile update.
func (s *ProfileService) Update(ctx context.Context, userID string, req dto.UpdateProfileRequest) (*dto.ProfileResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	params := models.ProfileUpdate{
		FullName:                   trimPtr(req.FullName),
		Phone:                      trimPtr(req.Phone),
		Bio:                        trimPtr(req.Bio),
		Location:                   trimPtr(req.Location),
		ShowEmail:                  req.ShowEmail,
		ShowPhone:                  req.ShowPhone,
		ShowLocation:               req.ShowLocation,
		NotifyAppointmentReminders: req.NotifyAppointmentReminders,
	}
	if req.Subjects != nil {
		params.Subjects = normalizeSubjects(req.Subjects)
	}
	if params.FullName != nil && *params.FullName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "full_name cannot be empty")
	}

	if err := s.repo.UpdateProfile(ctx, userID, params); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return s.Get(ctx, userID)
}

// UploadAvatar stores a new avatar image for the caller.
func (s *ProfileService) UploadAvatar(ctx context.Context, userID, contentType string, size int64, r io.Reader) (*dto.ProfileResponse, error) {
	if s.store == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "avatar storage is not configured")
	}
	ext, ok := avatarContentTypes[strings.ToLower(contentType)]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "avatar must be a JPEG, PNG or WebP image")
	}
	if size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "avatar file is empty")
	}
	if size > s.maxAvatarBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("avatar exceeds %d bytes", s.maxAvatarBytes))
	}

	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("avatars/%s.%s", userID, ext)
	if err := s.store.Put(ctx, key, io.LimitReader(r, s.maxAvatarBytes), size, contentType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store avatar")
	}
	if err := s.repo.SetAvatarKey(ctx, userID, key); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save avatar")
	}
	if user.AvatarKey != nil && *user.AvatarKey != key {
		if err := s.store.Delete(ctx, *user.AvatarKey); err != nil {
			s.logger.Warn("failed to delete previous avatar", zap.String("key", *user.AvatarKey), zap.Error(err))
		}
	}
	return s.Get(ctx, userID)
}

// Avatar opens the avatar image of a user.
func (s *ProfileService) Avatar(ctx context.Context, userID string) (io.ReadCloser, string, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if user.Erased() || user.AvatarKey == nil || s.store == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "avatar not found")
	}
	rc, err := s.store.Get(ctx, *user.AvatarKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "avatar not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read avatar")
	}
	return rc, avatarContentType(*user.AvatarKey), nil
}

// GetPublic returns the profile of userID as seen by viewerID. Private fields are hidden from
// everyone but the owner.
func (s *ProfileService) GetPublic(ctx context.Context, viewerID, userID string) (*dto.PublicProfileResponse, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Erased() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return toPublicProfile(user, viewerID == user.ID), nil
}

// Stats returns the statistics counters and badges of a user.
func (s *ProfileService) Stats(ctx context.Context, userID string) (*dto.UserStatsResponse, error) {
	stats, err := s.repo.GetStats(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load statistics")
	}
	return &dto.UserStatsResponse{
		UserID:          stats.UserID,
		TeacherSessions: stats.TeacherSessions,
		TeacherStudents: stats.TeacherStudents,
		StudentSessions: stats.StudentSessions,
		StudentTeachers: stats.StudentTeachers,
		Badges:          Badges(*stats),
	}, nil
}

func (s *ProfileService) load(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func toProfileResponse(u *models.User) *dto.ProfileResponse {
	subjects := []string(u.Subjects)
	if subjects == nil {
		subjects = []string{}
	}
	return &dto.ProfileResponse{
		ID:                         u.ID,
		Email:                      u.Email,
		FullName:                   u.FullName,
		Role:                       u.Role,
		Phone:                      u.Phone,
		Bio:                        u.Bio,
		Location:                   u.Location,
		Subjects:                   subjects,
		HasAvatar:                  u.AvatarKey != nil,
		ShowEmail:                  u.ShowEmail,
		ShowPhone:                  u.ShowPhone,
		ShowLocation:               u.ShowLocation,
		NotifyAppointmentReminders: u.NotifyAppointmentReminders,
		CreatedAt:                  u.CreatedAt,
	}
}

func toPublicProfile(u *models.User, owner bool) *dto.PublicProfileResponse {
	subjects := []string(u.Subjects)
	if subjects == nil {
		subjects = []string{}
	}
	out := &dto.PublicProfileResponse{
		ID:          u.ID,
		FullName:    u.FullName,
		Bio:         u.Bio,
		Subjects:    subjects,
		HasAvatar:   u.AvatarKey != nil,
		MemberSince: u.CreatedAt,
	}
	if owner || u.ShowEmail {
		email := u.Email
		out.Email = &email
	}
	if owner || u.ShowPhone {
		out.Phone = u.Phone
	}
	if owner || u.ShowLocation {
		out.Location = u.Location
	}
	return out
}

func avatarContentType(key string) string {
	for contentType, ext := range avatarContentTypes {
		if strings.HasSuffix(key, "."+ext) {
			return contentType
		}
	}
	return "application/octet-stream"
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	return &trimmed
}

func normalizeSubjects(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, subject := range in {
		subject = strings.TrimSpace(subject)
		key := strings.ToLower(subject)
		if subject == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, subject)
	}
	return out
}
