package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/compliance-console/internal/audit"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra/auth"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials — единый ответ на неизвестного пользователя и неверный пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

type AuthProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

type AuthService struct {
	repo       AuthProvider
	privateKey *rsa.PrivateKey
	ttl        time.Duration
	auditor    audit.Auditor
	logger     *zap.Logger
	now        func() time.Time
}

func NewAuthService(repo AuthProvider, privateKey *rsa.PrivateKey, ttl time.Duration, auditor audit.Auditor, logger *zap.Logger) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		repo:       repo,
		privateKey: privateKey,
		ttl:        ttl,
		auditor:    auditor,
		logger:     logger.Named("auth-service"),
		now:        time.Now,
	}
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация (источник правды — хранилище пользователей)
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		s.logger.Error("failed to load user", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("auth: load user: %w", err)
	}
	if user == nil {
		s.loginFailed(ctx, username, "unknown user")
		return nil, ErrInvalidCredentials
	}

	// 2. Проверка пароля (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.loginFailed(ctx, username, "wrong password")
		return nil, ErrInvalidCredentials
	}

	// 3. Claims: роль и scopes берем из записи пользователя
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &domain.CustomClaims{
		UserID: user.ID,
		Role:   user.Role,
		Scopes: user.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.TokenIssuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	// 4. Подпись токена ЗАКРЫТЫМ КЛЮЧОМ (RS256)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.auditor.Log(audit.AuditEvent{
		TraceID: traceID(ctx), Actor: user.ID, Action: audit.ActionLogin,
		EntityType: "user", EntityID: user.ID,
	})

	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.ttl.Seconds()),
	}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, username, reason string) {
	s.logger.Warn("login rejected", zap.String("username", username), zap.String("reason", reason))
	s.auditor.Log(audit.AuditEvent{
		TraceID: traceID(ctx), Actor: username, Action: audit.ActionLogin,
		EntityType: "user", EntityID: username, Status: "FAILED", Error: ErrInvalidCredentials.Error(),
	})
}

// HashPassword — bcrypt-хэш для заведения пользователя.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
