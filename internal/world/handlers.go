package world

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type positionUpdate struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Region    string  `json:"region"`
	LatencyMs *int    `json:"latency_ms"`
}

func RegisterRoutes(r fiber.Router, reg *Registry, authMiddleware fiber.Handler) {
	r.Get("/entities", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(reg.Entities())
	})

	r.Post("/entities", authMiddleware, func(c *fiber.Ctx) error {
		var req Entity
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.ID == "" || req.Region == "" {
			return fiber.NewError(fiber.StatusBadRequest, "id and region required")
		}
		if req.Name == "" {
			req.Name = req.ID
		}
		status := fiber.StatusOK
		if reg.Upsert(req) {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(req)
	})

	r.Put("/entities/:id", authMiddleware, func(c *fiber.Ctx) error {
		var req positionUpdate
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		id := c.Params("id")
		if err := reg.Move(id, req.X, req.Y, req.Z, req.Region); err != nil {
			return entityError(err)
		}
		if req.LatencyMs != nil {
			if err := reg.SetLatency(id, *req.LatencyMs); err != nil {
				return entityError(err)
			}
		}
		e, _ := reg.Get(id)
		return c.JSON(e)
	})

	r.Delete("/entities/:id", authMiddleware, func(c *fiber.Ctx) error {
		if err := reg.Remove(c.Params("id")); err != nil {
			return entityError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func entityError(err error) error {
	if errors.Is(err, ErrUnknownEntity) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
