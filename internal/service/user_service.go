package service

import (
	"fmt"
	"gamehub_backend/internal/model"
	"gamehub_backend/internal/repository"
	"gamehub_backend/internal/util"
	"strings"
)

// UpdateProfileInput 为 nil 的字段保持不变
type UpdateProfileInput struct {
	Name     *string
	UserType *model.UserType
	Avatar   *string
	Bio      *string
}

// UserService 处理用户相关的业务逻辑
type UserService struct {
	UserRepo *repository.UserRepository
}

func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{
		UserRepo: userRepo,
	}
}

func (s *UserService) GetProfile(userID uint) (*model.User, error) {
	return s.UserRepo.FindByID(userID)
}

func (s *UserService) UpdateProfile(userID uint, in UpdateProfileInput) (*model.User, error) {
	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: display name is required", util.ErrInvalidProfile)
		}
		user.Name = name
	}
	if in.UserType != nil {
		if !in.UserType.Valid() {
			return nil, fmt.Errorf("%w: unknown user type %q", util.ErrInvalidProfile, *in.UserType)
		}
		user.UserType = *in.UserType
	}
	if in.Avatar != nil {
		user.Avatar = *in.Avatar
	}
	if in.Bio != nil {
		user.Bio = *in.Bio
	}

	if err := s.UserRepo.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}
