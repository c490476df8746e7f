package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xela07ax/compliance-console/internal/console/service"
	"github.com/xela07ax/compliance-console/internal/domain"
	"go.uber.org/zap"
)

type issuerFunc func(ctx context.Context, username, password string) (*domain.TokenResponse, error)

func (f issuerFunc) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	return f(ctx, username, password)
}

func TestAuthHandler_Login(t *testing.T) {
	issuer := issuerFunc(func(_ context.Context, username, password string) (*domain.TokenResponse, error) {
		if username == "admin" && password == "s3cret" {
			return &domain.TokenResponse{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 3600}, nil
		}
		return nil, service.ErrInvalidCredentials
	})
	h := NewAuthHandler(issuer, zap.NewNop())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", `{"username":"admin","password":"s3cret"}`, http.StatusOK},
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized},
		{"garbage", `not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want != http.StatusOK {
				return
			}
			var resp domain.TokenResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.AccessToken != "tok" || resp.TokenType != "Bearer" {
				t.Fatalf("resp = %+v", resp)
			}
		})
	}
}
