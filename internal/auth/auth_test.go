package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/spec-kit/helpdesk-pipeline/pkg/util/errorutil"
)

func testApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "helpdesk-pipeline", 5)
	token, expires, err := tm.GenerateToken("ops", []string{ScopeTicketsRead})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("token already expired")
	}
	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "ops" || !claims.HasScope(ScopeTicketsRead) || claims.HasScope(ScopeSyncRun) {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestTokenRejected(t *testing.T) {
	tm := NewTokenManager("secret", "helpdesk-pipeline", 5)
	token, _, err := tm.GenerateToken("ops", nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := NewTokenManager("other", "helpdesk-pipeline", 5).ParseToken(token); err == nil {
		t.Fatalf("wrong secret accepted")
	}
	if _, err := NewTokenManager("secret", "someone-else", 5).ParseToken(token); err == nil {
		t.Fatalf("wrong issuer accepted")
	}

	expired := NewTokenManager("secret", "helpdesk-pipeline", 5)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _, err := expired.GenerateToken("ops", nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := tm.ParseToken(old); err == nil {
		t.Fatalf("expired token accepted")
	}
	if _, _, err := tm.GenerateToken("", nil); err == nil {
		t.Fatalf("empty operator accepted")
	}
}

func TestMiddlewareAndScopes(t *testing.T) {
	tm := NewTokenManager("secret", "helpdesk-pipeline", 5)
	app := testApp()
	app.Get("/tickets", NewAuthMiddleware(tm).Handle, RequireScope(ScopeTicketsRead), func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		return c.SendString(principal.Operator)
	})

	reader, _, _ := tm.GenerateToken("ops", []string{ScopeTicketsRead})
	syncer, _, _ := tm.GenerateToken("ops", []string{ScopeSyncRun})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"not bearer", "Basic abc", fiber.StatusUnauthorized},
		{"garbage token", "Bearer abc", fiber.StatusUnauthorized},
		{"wrong scope", "Bearer " + syncer, fiber.StatusForbidden},
		{"ok", "Bearer " + reader, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/tickets", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRequireWebhookToken(t *testing.T) {
	hash, err := HashSecret("hook-secret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	app := testApp()
	app.Post("/hook", RequireWebhookToken(hash), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	open := testApp()
	open.Post("/hook", RequireWebhookToken(""), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	tests := []struct {
		name  string
		app   *fiber.App
		token string
		want  int
	}{
		{"valid", app, "hook-secret", fiber.StatusOK},
		{"invalid", app, "nope", fiber.StatusUnauthorized},
		{"missing", app, "", fiber.StatusUnauthorized},
		{"check disabled", open, "", fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/hook", nil)
			if tt.token != "" {
				req.Header.Set(WebhookTokenHeader, tt.token)
			}
			resp, err := tt.app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
