package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuth(verify bool) *AuthService {
	cfg := &config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: bcrypt.MinCost,
		Exam:       config.ExamPolicy{VerifyEvaluatorCredential: verify},
	}
	return NewAuthService(cfg, nil, nil)
}

func TestStaffTokenRoundTrip(t *testing.T) {
	auth := newTestAuth(true)
	user := &model.User{ID: 4, Role: model.RoleLeader}

	token, err := auth.GenerateToken(context.Background(), user)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 4 || claims.Role != model.RoleLeader || claims.ID == "" {
		t.Fatalf("claims = %+v", claims)
	}
	if len(claims.Permissions) != len(model.RolePermissions[model.RoleLeader]) {
		t.Errorf("permissions = %v", claims.Permissions)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	auth := newTestAuth(true)

	sign := func(secret string, claims Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name    string
		token   string
		expired bool
	}{
		{"garbage", "not-a-token", false},
		{"wrong secret", sign("other", Claims{Role: model.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}), false},
		{"unknown role", sign("test-secret", Claims{Role: "janitor", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}), false},
		{"expired", sign("test-secret", Claims{Role: model.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: past}}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.ValidateToken(tt.token)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errors.Is(err, jwt.ErrTokenExpired); got != tt.expired {
				t.Errorf("expired = %v, want %v (%v)", got, tt.expired, err)
			}
		})
	}
}

func TestCheckPassword(t *testing.T) {
	auth := newTestAuth(true)
	hash, err := auth.HashPassword("pramuka123")
	if err != nil {
		t.Fatal(err)
	}
	if err := auth.CheckPassword(hash, "pramuka123"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := auth.CheckPassword(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestMatchAnyHash(t *testing.T) {
	h1, _ := bcrypt.GenerateFromPassword([]byte("alpha"), bcrypt.MinCost)
	h2, _ := bcrypt.GenerateFromPassword([]byte("bravo"), bcrypt.MinCost)
	hashes := []string{string(h1), string(h2)}

	for secret, want := range map[string]bool{"alpha": true, "bravo": true, "charlie": false, "": false} {
		if got := matchAnyHash(hashes, secret); got != want {
			t.Errorf("matchAnyHash(%q) = %v, want %v", secret, got, want)
		}
	}
}

func TestVerifyEvaluatorCredentialDisabled(t *testing.T) {
	auth := newTestAuth(false)
	if err := auth.VerifyEvaluatorCredential(context.Background(), "anything"); err != nil {
		t.Fatalf("verification off: err = %v", err)
	}
}
