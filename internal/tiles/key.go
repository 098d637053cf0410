package tiles

import (
	"fmt"

	"backend-playerroutes/internal/shared/geo"
)

// Key identifies one tile of one region.
type Key struct {
	Region string
	X      int
	Z      int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%d", k.Region, k.X, k.Z)
}

// KeyAt returns the tile containing the block position (x, z).
func KeyAt(region string, x, z float64) Key {
	return Key{Region: region, X: geo.TileCoord(x), Z: geo.TileCoord(z)}
}

// State is the cache state of a single key.
type State int

const (
	StateUnknown State = iota
	StateQueued
	StateRendering
	StateRendered
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRendering:
		return "rendering"
	case StateRendered:
		return "rendered"
	default:
		return "unknown"
	}
}
