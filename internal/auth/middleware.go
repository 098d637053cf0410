package auth

import "github.com/gofiber/fiber/v2"

// Middleware rejects requests that do not carry the shared token.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := TokenFromRequest(c.Get(fiber.HeaderAuthorization), c.Query("token"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing token")
		}
		if !Check(secret, token) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		return c.Next()
	}
}

// CaptureToken stores the presented token in locals without rejecting. The
// websocket handshake validates it after the upgrade so it can send a close code.
func CaptureToken() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(LocalsKey, TokenFromRequest(c.Get(fiber.HeaderAuthorization), c.Query("token")))
		return c.Next()
	}
}
