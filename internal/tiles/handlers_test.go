package tiles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func TestTileHandlers(t *testing.T) {
	p := NewPaths(t.TempDir())
	renderer := NewPNGRenderer(p, flatSurface{})
	s := NewScheduler(renderer, nil, DefaultOptions(), zap.NewNop())

	app := fiber.New()
	RegisterRoutes(app.Group("/tiles"), s, p, func(c *fiber.Ctx) error { return c.Next() })

	req := httptest.NewRequest(http.MethodGet, "/tiles/overworld/0/0.png", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing tile: %v", err)
	}
	if resp.Header.Get("X-Tile-State") != "queued" {
		t.Fatalf("missing tile should be queued, got %q", resp.Header.Get("X-Tile-State"))
	}

	s.Drain(context.Background())

	req = httptest.NewRequest(http.MethodGet, "/tiles/overworld/0/0.png", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected rendered tile: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/tiles/overworld/x/0", nil)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request")
	}

	req = httptest.NewRequest(http.MethodGet, "/tiles/stats", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/tiles/invalidate?region=overworld", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("invalidate status: %v", err)
	}
	if s.IsRendered(Key{Region: "overworld"}) {
		t.Fatalf("expected tile invalidated")
	}
}
