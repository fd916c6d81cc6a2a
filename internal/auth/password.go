package auth

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/spec-kit/helpdesk-pipeline/pkg/util/errorutil"
)

// WebhookTokenHeader carries the helpdesk shared secret.
const WebhookTokenHeader = "X-Webhook-Token"

// HashSecret hashes a shared secret with the given bcrypt cost.
func HashSecret(secret string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CompareSecret verifies a secret against its hashed value.
func CompareSecret(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

// RequireWebhookToken rejects deliveries whose token does not match the
// configured bcrypt hash. An empty hash disables the check.
func RequireWebhookToken(secretHash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secretHash == "" {
			return c.Next()
		}
		token := c.Get(WebhookTokenHeader)
		if token == "" {
			return apperrors.NewUnauthorized("missing webhook token")
		}
		if err := CompareSecret(secretHash, token); err != nil {
			return apperrors.NewUnauthorized("invalid webhook token")
		}
		return c.Next()
	}
}
