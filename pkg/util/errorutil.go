package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Error codes surfaced at the HTTP boundary.
const (
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeNotFound              = "NOT_FOUND"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeConflict              = "CONFLICT"
	CodeRequestFailed         = "REQUEST_FAILED"
	CodeInternal              = "INTERNAL_ERROR"
	CodeCredentialMissing     = "CREDENTIAL_MISSING"
	CodeCredentialInvalid     = "CREDENTIAL_INVALID"
	CodeCredentialExpired     = "CREDENTIAL_EXPIRED"
	CodeTokenUnknown          = "TOKEN_UNKNOWN"
	CodeTokenRevokedOrExpired = "TOKEN_REVOKED_OR_EXPIRED"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewCredentialMissing rejects a request without a usable bearer header.
func NewCredentialMissing() error {
	return NewDomainError(CodeCredentialMissing, "JWT token is missing or invalid", http.StatusUnauthorized, nil)
}

// NewCredentialInvalid rejects a token with a bad signature, bad shape or foreign subject.
func NewCredentialInvalid(err error) error {
	return &DomainError{
		Code:       CodeCredentialInvalid,
		Message:    "Invalid JWT token",
		HTTPStatus: http.StatusUnauthorized,
		Err:        err,
	}
}

// NewCredentialExpired rejects a token past its signed expiry.
func NewCredentialExpired(err error) error {
	return &DomainError{
		Code:       CodeCredentialExpired,
		Message:    "Expired JWT token",
		HTTPStatus: http.StatusUnauthorized,
		Err:        err,
	}
}

// NewTokenUnknown flags a signature-valid token the registry has no record of.
func NewTokenUnknown() error {
	return NewDomainError(CodeTokenUnknown, "JWT token not found", http.StatusInternalServerError, nil)
}

// NewTokenRevokedOrExpired flags a registry record past its own expiry.
func NewTokenRevokedOrExpired() error {
	return NewDomainError(CodeTokenRevokedOrExpired, "JWT token has expired", http.StatusInternalServerError, nil)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	// Routing and body parsing failures raised by fiber itself.
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) && fiberErr.Code < http.StatusInternalServerError {
		return &DomainError{
			Code:       codeForStatus(fiberErr.Code),
			Message:    fiberErr.Message,
			HTTPStatus: fiberErr.Code,
			Err:        err,
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeValidationFailed
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	default:
		return CodeRequestFailed
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
