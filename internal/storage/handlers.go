package storage

import (
	"errors"
	"strconv"

	"backend-playerroutes/internal/tracking"

	"github.com/gofiber/fiber/v2"
)

type listResponse struct {
	Sessions []tracking.Summary `json:"sessions"`
	Total    int                `json:"total,omitempty"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

func RegisterRoutes(r fiber.Router, store Store, authMiddleware fiber.Handler) {
	r.Get("/sessions", authMiddleware, func(c *fiber.Ctx) error {
		limit, offset := normalizePage(c.QueryInt("limit", DefaultLimit), c.QueryInt("offset", 0))
		sessions, err := store.All(c.Context(), limit, offset)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		total, err := store.Count(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(listResponse{Sessions: summaries(sessions), Total: total, Limit: limit, Offset: offset})
	})

	r.Get("/sessions/range", authMiddleware, func(c *fiber.Ctx) error {
		from, err := strconv.ParseInt(c.Query("from"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "from required")
		}
		to, err := strconv.ParseInt(c.Query("to"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "to required")
		}
		if to < from {
			return fiber.NewError(fiber.StatusBadRequest, "to before from")
		}
		limit, offset := normalizePage(c.QueryInt("limit", DefaultLimit), c.QueryInt("offset", 0))
		sessions, err := store.ByTimeRange(c.Context(), from, to, limit, offset)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(listResponse{Sessions: summaries(sessions), Limit: limit, Offset: offset})
	})

	r.Get("/sessions/:id", authMiddleware, func(c *fiber.Ctx) error {
		s, err := store.Get(c.Context(), c.Params("id"))
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(s)
	})

	r.Get("/players/:id/sessions", authMiddleware, func(c *fiber.Ctx) error {
		playerID := c.Params("id")
		limit, offset := normalizePage(c.QueryInt("limit", DefaultLimit), c.QueryInt("offset", 0))
		sessions, err := store.ByPlayer(c.Context(), playerID, limit, offset)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		total, err := store.CountByPlayer(c.Context(), playerID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(listResponse{Sessions: summaries(sessions), Total: total, Limit: limit, Offset: offset})
	})
}

func summaries(sessions []tracking.Session) []tracking.Summary {
	out := make([]tracking.Summary, 0, len(sessions))
	for i := range sessions {
		out = append(out, sessions[i].Summary())
	}
	return out
}
