package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/d60-Lab/unveil/internal/repository"
	"github.com/d60-Lab/unveil/pkg/apperr"
	"github.com/d60-Lab/unveil/pkg/logger"
)

// UpdateProfileRequest nil 字段保持不变
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name" binding:"omitempty,max=64"`
	Bio         *string `json:"bio" binding:"omitempty,max=500"`
	Age         *int    `json:"age" binding:"omitempty,min=18,max=120"`
	PhotoURL    *string `json:"photo_url" binding:"omitempty,url,max=512"`
}

type ProfileService interface {
	Me(ctx context.Context, userID string) (ProfileView, error)
	Update(ctx context.Context, userID string, req UpdateProfileRequest) (ProfileView, error)
}

type profileService struct {
	users    repository.UserRepository
	profiles *ProfileCache
}

func NewProfileService(users repository.UserRepository, profiles *ProfileCache) ProfileService {
	return &profileService{users: users, profiles: profiles}
}

func (s *profileService) Me(ctx context.Context, userID string) (ProfileView, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return ProfileView{}, err
	}
	return ownProfile(snapshotOf(u)), nil
}

func (s *profileService) Update(ctx context.Context, userID string, req UpdateProfileRequest) (ProfileView, error) {
	fields := map[string]any{}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" || utf8.RuneCountInString(name) > 64 {
			return ProfileView{}, apperr.InvalidArg("display name must be 1-64 characters")
		}
		fields["display_name"] = name
	}
	if req.Bio != nil {
		if utf8.RuneCountInString(*req.Bio) > 500 {
			return ProfileView{}, apperr.InvalidArg("bio exceeds 500 characters")
		}
		fields["bio"] = *req.Bio
	}
	if req.Age != nil {
		if *req.Age < 18 || *req.Age > 120 {
			return ProfileView{}, apperr.InvalidArg("age must be between 18 and 120")
		}
		fields["age"] = *req.Age
	}
	if req.PhotoURL != nil {
		fields["photo_url"] = strings.TrimSpace(*req.PhotoURL)
	}

	if len(fields) > 0 {
		if err := s.users.UpdateProfile(ctx, userID, fields); err != nil {
			return ProfileView{}, err
		}
		if err := s.profiles.Invalidate(ctx, userID); err != nil {
			logger.Warn("profile cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return s.Me(ctx, userID)
}
