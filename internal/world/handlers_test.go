package world

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func passThrough(c *fiber.Ctx) error { return c.Next() }

func TestWorldHandlersLifecycle(t *testing.T) {
	reg := NewRegistry()
	app := fiber.New()
	RegisterRoutes(app.Group("/world"), reg, passThrough)

	req := httptest.NewRequest(http.MethodPost, "/world/entities", bytes.NewReader([]byte(`{"id":"p1","name":"Alice","x":1,"y":64,"z":2,"region":"overworld"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %v", err)
	}

	req = httptest.NewRequest(http.MethodPut, "/world/entities/p1", bytes.NewReader([]byte(`{"x":5,"y":64,"z":7,"latency_ms":42}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("move status: %v", err)
	}
	e, _ := reg.Get("p1")
	if e.X != 5 || e.Z != 7 || e.LatencyMs != 42 || e.Region != "overworld" {
		t.Fatalf("unexpected entity %+v", e)
	}

	req = httptest.NewRequest(http.MethodDelete, "/world/entities/p1", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status: %v", err)
	}
}

func TestWorldHandlersBadRequest(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/world"), NewRegistry(), passThrough)

	req := httptest.NewRequest(http.MethodPost, "/world/entities", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request")
	}

	req = httptest.NewRequest(http.MethodPost, "/world/entities", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request on parse error")
	}
}

func TestWorldHandlersUnknownEntity(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/world"), NewRegistry(), passThrough)

	req := httptest.NewRequest(http.MethodPut, "/world/entities/ghost", bytes.NewReader([]byte(`{"x":1}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodDelete, "/world/entities/ghost", nil)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found on delete, got %d", resp.StatusCode)
	}
}
