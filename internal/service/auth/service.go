package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"holdem-service/internal/config"
	"holdem-service/internal/model"
	pkgAuth "holdem-service/pkg/auth"
	appErr "holdem-service/pkg/errors"
	"holdem-service/pkg/logger"
	"holdem-service/pkg/utils/random"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	rdb     *redis.Client
	codeTTL time.Duration
}

type LoginResult struct {
	Token    string     `json:"token"`
	ExpireAt time.Time  `json:"expireAt"`
	User     model.User `json:"user"`
}

func NewService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		db:      db,
		rdb:     rdb,
		codeTTL: 5 * time.Minute,
	}
}

const testOTPCode = "123456"

func (s *Service) SendSMS(ctx context.Context, phone string) error {
	if !isValidPhone(phone) {
		return appErr.ErrInvalidPhone
	}

	code := testOTPCode
	if !strings.EqualFold(config.GlobalConfig.Server.Mode, "debug") {
		code = random.Numeric(6)
	}

	key := buildSMSKey(phone)
	if err := s.rdb.Set(ctx, key, code, s.codeTTL).Err(); err != nil {
		return err
	}
	logger.Log.Info("otp generated",
		zap.String("phone", maskPhone(phone)),
		zap.Bool("testCode", strings.EqualFold(config.GlobalConfig.Server.Mode, "debug")),
	)
	return nil
}

func (s *Service) Login(ctx context.Context, phone, code string) (*LoginResult, error) {
	if strings.TrimSpace(phone) == "" || strings.TrimSpace(code) == "" {
		return nil, appErr.ErrInvalidPhone
	}

	key := buildSMSKey(phone)
	stored, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, appErr.ErrSMSCodeExpired
		}
		return nil, err
	}
	if stored != code {
		return nil, appErr.ErrInvalidSMSCode
	}
	s.rdb.Del(ctx, key)

	var user model.User
	err = s.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
		user, err = s.createUser(ctx, phone)
		if err != nil {
			return nil, err
		}
	}
	if strings.EqualFold(user.Status, "banned") {
		return nil, appErr.ErrUserBanned
	}

	token, err := pkgAuth.GenerateToken(user.ID)
	if err != nil {
		return nil, err
	}

	expireAt := time.Now().Add(time.Duration(config.GlobalConfig.JWT.Expire) * time.Hour)
	return &LoginResult{
		Token:    token,
		ExpireAt: expireAt,
		User:     user,
	}, nil
}

// createUser registers a phone number and opens its empty wallet.
func (s *Service) createUser(ctx context.Context, phone string) (model.User, error) {
	user := model.User{
		Phone:    phone,
		Nickname: fmt.Sprintf("player%s", phone[len(phone)-4:]),
		Status:   "normal",
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&model.Wallet{UserID: user.ID, UpdatedAt: time.Now()}).Error
	})
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}

func buildSMSKey(phone string) string {
	return "holdem:sms:" + phone
}

func isValidPhone(phone string) bool {
	phone = strings.TrimSpace(phone)
	if len(phone) < 8 || len(phone) > 20 {
		return false
	}
	for i, r := range phone {
		if r >= '0' && r <= '9' {
			continue
		}
		if i == 0 && r == '+' {
			continue
		}
		return false
	}
	return true
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
