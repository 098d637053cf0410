// Package geo holds the small amount of world geometry shared by tracking and tiles.
package geo

import "math"

// BlocksPerTile is the edge length of one tile in world blocks.
const BlocksPerTile = 16

// DistanceXZ is the straight-line distance on the horizontal plane; height is ignored.
func DistanceXZ(ax, az, bx, bz float64) float64 {
	dx := ax - bx
	dz := az - bz
	return math.Sqrt(dx*dx + dz*dz)
}

// Round1 rounds to one decimal place, half away from zero.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// TileCoord maps a block coordinate to the tile containing it.
func TileCoord(block float64) int {
	return int(math.Floor(block / BlocksPerTile))
}

// Chebyshev is the grid distance between two tile coordinates.
func Chebyshev(ax, az, bx, bz int) int {
	dx := ax - bx
	if dx < 0 {
		dx = -dx
	}
	dz := az - bz
	if dz < 0 {
		dz = -dz
	}
	if dx > dz {
		return dx
	}
	return dz
}
