package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"habittrack/internal/model"
	"habittrack/internal/mq"
	"habittrack/internal/util"
)

// UserStore is what the auth service needs from user persistence.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

type AuthService struct {
	userRepo  UserStore
	producer  EventPublisher // nil disables the user.registered event
	jwtSecret string
	logger    *zap.Logger
}

func NewAuthService(userRepo UserStore, producer EventPublisher, jwtSecret string, logger *zap.Logger) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		producer:  producer,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// Register creates a new user and announces it, which triggers the
// onboarding backfill downstream.
func (s *AuthService) Register(ctx context.Context, email, password string) (*model.User, error) {
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if existing != nil {
		return nil, errors.New("email already exists")
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	if err := s.userRepo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	if s.producer != nil {
		payload := mq.UserRegisteredPayload{UserID: u.ID, Email: u.Email}
		if err := s.producer.Publish(mq.RoutingKeyUserRegistered, payload); err != nil {
			s.logger.Warn("Failed to publish user.registered",
				zap.Int("user_id", u.ID),
				zap.Error(err),
			)
		}
	}

	return u, nil
}

// Login checks user credentials and returns JWT.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", errors.New("invalid email or password")
	}

	if !util.CheckPassword(password, u.PasswordHash) {
		return "", errors.New("invalid email or password")
	}

	token, err := util.GenerateJWT(u.ID, s.jwtSecret)
	if err != nil {
		return "", err
	}

	return token, nil
}
