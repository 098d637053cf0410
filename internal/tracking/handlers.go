package tracking

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, t *Tracker, authMiddleware fiber.Handler) {
	r.Get("/sessions/active", authMiddleware, func(c *fiber.Ctx) error {
		if c.QueryBool("full") {
			return c.JSON(t.ActiveSessions())
		}
		return c.JSON(t.ActiveSummaries())
	})

	r.Get("/players/:id/session", authMiddleware, func(c *fiber.Ctx) error {
		s, ok := t.ActiveSession(c.Params("id"))
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "player not tracked")
		}
		return c.JSON(s)
	})

	r.Get("/sessions/:id", authMiddleware, func(c *fiber.Ctx) error {
		s, err := t.Session(c.Context(), c.Params("id"))
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(s)
	})

	r.Get("/sessions/:id/summary", authMiddleware, func(c *fiber.Ctx) error {
		s, err := t.Session(c.Context(), c.Params("id"))
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(s.Summary())
	})
}
