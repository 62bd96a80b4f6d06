package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"mediastore/internal/auth/model"
	"mediastore/middleware"
	"mediastore/pkg/logger"
	"mediastore/pkg/metrics"
)

// UserStore is implemented by *repository.UserRepository.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Upsert(ctx context.Context, u *model.User) error
}

type AuthService struct {
	Users  UserStore
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func NewAuthService(users UserStore, secret string, ttl time.Duration) *AuthService {
	return &AuthService{Users: users, Secret: []byte(secret), TTL: ttl, Now: time.Now}
}

// Login checks the credentials and issues a signed token carrying the
// user's roles. Unknown users and wrong passwords are indistinguishable to
// the caller.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (*model.TokenResponse, error) {
	if req.Username == "" || req.Password == "" {
		metrics.RecordAuthAttempt(false)
		return nil, model.ErrInvalidCredentials
	}

	user, err := s.Users.GetByUsername(ctx, req.Username)
	if errors.Is(err, model.ErrUserNotFound) {
		metrics.RecordAuthAttempt(false)
		return nil, model.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		logger.Sugar.Infof("Failed login for %s", req.Username)
		metrics.RecordAuthAttempt(false)
		return nil, model.ErrInvalidCredentials
	}

	resp, err := s.Issue(user.Username, user.Roles)
	if err != nil {
		return nil, err
	}
	metrics.RecordAuthAttempt(true)
	logger.Sugar.Infof("Issued token for %s with roles %v", user.Username, user.Roles)
	return resp, nil
}

// Issue signs a token for username without checking any password.
func (s *AuthService) Issue(username string, roles []string) (*model.TokenResponse, error) {
	now := s.Now().UTC()
	expires := now.Add(s.TTL)
	claims := middleware.Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &model.TokenResponse{Token: signed, ExpiresAt: expires, Roles: roles}, nil
}

// EnsureUser creates or resets a user, used to bootstrap the first account.
func (s *AuthService) EnsureUser(ctx context.Context, username, password string, roles []string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.Users.Upsert(ctx, &model.User{Username: username, PasswordHash: hash, Roles: roles})
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
