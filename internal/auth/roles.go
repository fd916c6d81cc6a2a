package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/helpdesk-pipeline/pkg/util/errorutil"
)

// RequireScope ensures the operator token grants scope.
func RequireScope(scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		for _, s := range principal.Scopes {
			if s == scope {
				return c.Next()
			}
		}
		return apperrors.NewForbidden("missing scope " + scope)
	}
}
