package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-gate/internal/domain"
	"github.com/spec-kit/auth-gate/internal/observability"
	apperrors "github.com/spec-kit/auth-gate/pkg/util"
)

// AuthMiddleware adapts the Gate to fiber. Rejections are written directly and
// the rest of the chain never runs.
type AuthMiddleware struct {
	gate    *Gate
	metrics *observability.Metrics
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(gate *Gate, metrics *observability.Metrics) *AuthMiddleware {
	return &AuthMiddleware{gate: gate, metrics: metrics}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	ctx := c.UserContext()
	bound, alreadyAdmitted := AdmissionFromContext(ctx)
	var current *domain.Principal
	if alreadyAdmitted {
		current = bound.Principal
	}

	admission, err := m.gate.Authenticate(ctx, c.Get(fiber.HeaderAuthorization), current)
	if err != nil {
		m.metrics.RecordError(c.Route().Path, c.Method(), apperrors.ToDomainError(err).Code)
		return apperrors.WriteError(c, err)
	}

	// A nested pass keeps the admission that carries the registry record.
	if !alreadyAdmitted {
		c.SetUserContext(WithAdmission(ctx, admission))
	}
	return c.Next()
}
