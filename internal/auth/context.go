package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-gate/internal/domain"
)

type admissionKey struct{}

// WithAdmission binds a gate admission to ctx for downstream handlers.
func WithAdmission(ctx context.Context, admission *Admission) context.Context {
	return context.WithValue(ctx, admissionKey{}, admission)
}

// AdmissionFromContext returns the admission bound by the gate.
func AdmissionFromContext(ctx context.Context) (*Admission, bool) {
	if ctx == nil {
		return nil, false
	}
	admission, ok := ctx.Value(admissionKey{}).(*Admission)
	return admission, ok && admission != nil
}

// PrincipalFromContext returns the authenticated principal bound to ctx.
func PrincipalFromContext(ctx context.Context) (*domain.Principal, bool) {
	admission, ok := AdmissionFromContext(ctx)
	if !ok || admission.Principal == nil {
		return nil, false
	}
	return admission.Principal, true
}

// Principal retrieves the authenticated caller of a fiber request.
func Principal(c *fiber.Ctx) (*domain.Principal, bool) {
	return PrincipalFromContext(c.UserContext())
}
