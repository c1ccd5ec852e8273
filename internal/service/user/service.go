package user

import (
	"context"
	"strings"
	"time"

	"holdem-service/internal/model"
	appErr "holdem-service/pkg/errors"
	"holdem-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultAdminUserPageSize = 20
	maxAdminUserPageSize     = 100
)

type Service struct {
	db *gorm.DB
}

type UpdateProfileRequest struct {
	Nickname *string
	Avatar   *string
}

type ListResult struct {
	Items []model.User
	Total int64
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, appErr.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID int64, req UpdateProfileRequest) (*model.User, error) {
	updates := map[string]interface{}{}
	if req.Nickname != nil {
		nickname := strings.TrimSpace(*req.Nickname)
		if nickname != "" {
			updates["nickname"] = nickname
		}
	}
	if req.Avatar != nil {
		updates["avatar"] = strings.TrimSpace(*req.Avatar)
	}
	if len(updates) > 0 {
		updates["updated_at"] = time.Now()
		result := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(updates)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, appErr.ErrUserNotFound
		}
	}
	return s.GetProfile(ctx, userID)
}

func (s *Service) AdminListUsers(ctx context.Context, page, size int, keyword string) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultAdminUserPageSize
	}
	if size > maxAdminUserPageSize {
		size = maxAdminUserPageSize
	}

	query := s.db.WithContext(ctx).Model(&model.User{})
	if keyword = strings.TrimSpace(keyword); keyword != "" {
		like := "%" + keyword + "%"
		query = query.Where("phone LIKE ? OR nickname LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []model.User
	if total > 0 {
		if err := query.Order("id DESC").
			Limit(size).
			Offset((page - 1) * size).
			Find(&items).Error; err != nil {
			return nil, err
		}
	}
	return &ListResult{Items: items, Total: total}, nil
}

func (s *Service) AdminSetUserStatus(ctx context.Context, userID int64, status, reason string) (*model.User, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "normal" && status != "banned" {
		return nil, appErr.ErrIllegalAction
	}

	result := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, appErr.ErrUserNotFound
	}

	logger.Log.Info("user status changed",
		zap.Int64("userID", userID),
		zap.String("status", status),
		zap.String("reason", reason),
	)
	return s.GetProfile(ctx, userID)
}
