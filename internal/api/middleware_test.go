package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Soundar1309/ispb-membership-service/internal/domain"
)

const testJWTSecret = "test-secret"

func signTestToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestAuthMiddleware_ExtractsActor(t *testing.T) {
	userID := uuid.New()
	token := signTestToken(t, testJWTSecret, jwt.MapClaims{
		"sub":  userID.String(),
		"role": "member",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	var gotActor domain.Actor
	var gotOK bool
	handler := AuthMiddleware(testJWTSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, gotOK = GetActor(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/memberships/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !gotOK {
		t.Fatal("expected an actor on the request context")
	}
	if gotActor.UserID != userID {
		t.Fatalf("expected user id %s, got %s", userID, gotActor.UserID)
	}
	if gotActor.IsAdmin {
		t.Fatal("expected a member token to not be admin")
	}
}

func TestAuthMiddleware_AdminRole(t *testing.T) {
	token := signTestToken(t, testJWTSecret, jwt.MapClaims{
		"sub":  uuid.New().String(),
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	var gotActor domain.Actor
	handler := AuthMiddleware(testJWTSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, _ = GetActor(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/memberships", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !gotActor.IsAdmin {
		t.Fatal("expected the admin role to be recognised")
	}
}

func TestAuthMiddleware_RejectsBadTokens(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not a bearer token", header: "Token abc"},
		{name: "garbage token", header: "Bearer not-a-jwt"},
		{
			name:   "wrong secret",
			header: "Bearer " + signTestTokenWithSecret(t, "other-secret"),
		},
		{
			name: "expired token",
			header: "Bearer " + signTestToken(t, testJWTSecret, jwt.MapClaims{
				"sub": uuid.New().String(),
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
		},
		{
			name: "non-uuid subject",
			header: "Bearer " + signTestToken(t, testJWTSecret, jwt.MapClaims{
				"sub": "user_42",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AuthMiddleware(testJWTSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run for a rejected token")
			}))

			req := httptest.NewRequest(http.MethodGet, "/memberships/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
		})
	}
}

func signTestTokenWithSecret(t *testing.T, secret string) string {
	t.Helper()
	return signTestToken(t, secret, jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
}

func TestRequireAdmin_RejectsMembers(t *testing.T) {
	memberToken := signTestToken(t, testJWTSecret, jwt.MapClaims{
		"sub":  uuid.New().String(),
		"role": "member",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	handler := AuthMiddleware(testJWTSecret)(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a non-admin actor")
	})))

	req := httptest.NewRequest(http.MethodGet, "/admin/memberships", nil)
	req.Header.Set("Authorization", "Bearer "+memberToken)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}
