package tiles

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, s *Scheduler, p Paths, authMiddleware fiber.Handler) {
	r.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.Stats())
	})

	r.Post("/invalidate", authMiddleware, func(c *fiber.Ctx) error {
		if region := strings.TrimSpace(c.Query("region")); region != "" {
			removed := s.InvalidateRegion(region)
			return c.JSON(fiber.Map{"region": region, "removed": removed})
		}
		s.InvalidateCache()
		return c.JSON(fiber.Map{"removed": "all"})
	})

	r.Get("/:region/:x/:z", func(c *fiber.Ctx) error {
		k, err := keyFromParams(c)
		if err != nil {
			return err
		}
		if p.Exists(k) {
			c.Set(fiber.HeaderCacheControl, "no-cache")
			return c.SendFile(p.TilePath(k))
		}
		s.RequestTile(k, true)
		c.Set("X-Tile-State", s.State(k).String())
		return fiber.NewError(fiber.StatusNotFound, "tile not rendered")
	})
}

func keyFromParams(c *fiber.Ctx) (Key, error) {
	x, err := strconv.Atoi(c.Params("x"))
	if err != nil {
		return Key{}, fiber.NewError(fiber.StatusBadRequest, "invalid x")
	}
	z, err := strconv.Atoi(strings.TrimSuffix(c.Params("z"), tileExt))
	if err != nil {
		return Key{}, fiber.NewError(fiber.StatusBadRequest, "invalid z")
	}
	region := c.Params("region")
	if region == "" {
		return Key{}, fiber.NewError(fiber.StatusBadRequest, "region required")
	}
	return Key{Region: region, X: x, Z: z}, nil
}
