package util

import "github.com/gofiber/fiber/v2"

// WriteError renders err as the standard error envelope. Wrapped causes are
// never written to the response.
func WriteError(c *fiber.Ctx, err error) error {
	domainErr := ToDomainError(err)
	body := fiber.Map{
		"code":    domainErr.Code,
		"message": domainErr.Message,
	}
	if len(domainErr.Details) > 0 {
		body["details"] = domainErr.Details
	}
	return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"error": body})
}
