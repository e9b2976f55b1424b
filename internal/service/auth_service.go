package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/maheshrc27/postflow/pkg/utils"
	"golang.org/x/crypto/bcrypt"
)

type AuthService interface {
	Register(ctx context.Context, in *transfer.Register) (*models.User, error)
	Login(ctx context.Context, in *transfer.Login) (string, error)
	UserInfo(ctx context.Context, userID string) (*models.User, error)
}

type authService struct {
	cfg config.Config
	u   repository.UserRepository
}

func NewAuthService(cfg config.Config, u repository.UserRepository) AuthService {
	return &authService{
		cfg: cfg,
		u:   u,
	}
}

func (s *authService) Register(ctx context.Context, in *transfer.Register) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s.u.Create(ctx, &models.User{
		Username: strings.TrimSpace(in.Username),
		Email:    strings.TrimSpace(in.Email),
		Password: string(hash),
	})
}

// Login returns a signed token. Unknown users and bad passwords look the same.
func (s *authService) Login(ctx context.Context, in *transfer.Login) (string, error) {
	user, err := s.u.GetByUsername(ctx, strings.TrimSpace(in.Username))
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	return utils.GenerateToken(s.cfg.SecretKey, user.ID.Hex(), s.cfg.TokenTTL)
}

func (s *authService) UserInfo(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.u.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
