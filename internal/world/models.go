package world

import (
	"context"
	"time"
)

// DayLength is the number of ticks in one world day.
const DayLength = 24000

// Entity is a point-in-time view of one tracked player.
type Entity struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Region    string  `json:"region"`
	LatencyMs int     `json:"latency_ms"`
}

// Listener receives entity lifecycle and tick callbacks from the Loop.
type Listener interface {
	OnAppear(ctx context.Context, e Entity)
	OnDisappear(ctx context.Context, id string)
	OnTick(ctx context.Context, now time.Time, entities []Entity)
}

type lifecycleKind int

const (
	appeared lifecycleKind = iota
	disappeared
)

type lifecycleEvent struct {
	kind   lifecycleKind
	entity Entity
}
