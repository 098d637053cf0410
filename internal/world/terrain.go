package world

import (
	"hash/fnv"
	"image/color"
	"math"
)

const seaLevel = 62

var (
	waterColor = color.RGBA{R: 52, G: 96, B: 196, A: 255}
	sandColor  = color.RGBA{R: 218, G: 206, B: 150, A: 255}
	grassColor = color.RGBA{R: 96, G: 158, B: 68, A: 255}
	stoneColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	snowColor  = color.RGBA{R: 242, G: 246, B: 250, A: 255}
	netherRock = color.RGBA{R: 112, G: 42, B: 38, A: 255}
	lavaColor  = color.RGBA{R: 226, G: 108, B: 24, A: 255}
	endStone   = color.RGBA{R: 220, G: 222, B: 160, A: 255}
)

// Terrain is a deterministic height field per region used as the tile
// surface when no host world data is available.
type Terrain struct {
	Seed int64
}

func (t Terrain) Column(region string, x, z int) (int, color.RGBA, bool) {
	h := t.height(region, float64(x), float64(z))
	switch region {
	case "nether", "the_nether", "minecraft:the_nether":
		if h < 40 {
			return 31, lavaColor, true
		}
		return h, netherRock, true
	case "the_end", "end", "minecraft:the_end":
		if h < 58 {
			return 0, color.RGBA{}, false
		}
		return h, endStone, true
	}

	switch {
	case h < seaLevel:
		return seaLevel, waterColor, true
	case h < seaLevel+2:
		return h, sandColor, true
	case h < 90:
		return h, grassColor, true
	case h < 110:
		return h, stoneColor, true
	default:
		return h, snowColor, true
	}
}

func (t Terrain) height(region string, x, z float64) int {
	phase := float64(t.regionSalt(region)%1000) / 1000 * 2 * math.Pi
	v := 18*math.Sin(x/97+phase) + 14*math.Cos(z/83-phase) +
		6*math.Sin((x+z)/31) + 3*math.Cos((x-z)/13+phase)
	return seaLevel + int(math.Round(v))
}

func (t Terrain) regionSalt(region string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(region))
	return h.Sum64() ^ uint64(t.Seed)
}
