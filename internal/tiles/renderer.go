package tiles

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"backend-playerroutes/internal/shared/geo"
)

// PixelsPerBlock is the edge length of one block in a rendered tile.
const PixelsPerBlock = 8

// TileSize is the edge length of a rendered tile in pixels.
const TileSize = geo.BlocksPerTile * PixelsPerBlock

// Surface reports the top block at one world column.
type Surface interface {
	Column(region string, x, z int) (height int, c color.RGBA, ok bool)
}

// PNGRenderer paints tiles from a Surface and writes them under Paths.
type PNGRenderer struct {
	Paths   Paths
	Surface Surface
}

func NewPNGRenderer(p Paths, s Surface) *PNGRenderer {
	return &PNGRenderer{Paths: p, Surface: s}
}

func (r *PNGRenderer) Render(ctx context.Context, k Key) error {
	img := image.NewRGBA(image.Rect(0, 0, TileSize, TileSize))
	baseX := k.X * geo.BlocksPerTile
	baseZ := k.Z * geo.BlocksPerTile

	for bz := 0; bz < geo.BlocksPerTile; bz++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for bx := 0; bx < geo.BlocksPerTile; bx++ {
			h, c, ok := r.Surface.Column(k.Region, baseX+bx, baseZ+bz)
			if !ok {
				continue
			}
			if nh, _, nok := r.Surface.Column(k.Region, baseX+bx, baseZ+bz-1); nok {
				c = shade(c, h-nh)
			}
			fillBlock(img, bx, bz, c)
		}
	}
	return r.write(k, img)
}

func (r *PNGRenderer) write(k Key, img image.Image) error {
	path := r.Paths.TilePath(k)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("tile dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tile-*")
	if err != nil {
		return fmt.Errorf("tile temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", k, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func fillBlock(img *image.RGBA, bx, bz int, c color.RGBA) {
	for py := 0; py < PixelsPerBlock; py++ {
		for px := 0; px < PixelsPerBlock; px++ {
			img.SetRGBA(bx*PixelsPerBlock+px, bz*PixelsPerBlock+py, c)
		}
	}
}

// shade brightens slopes facing north-up and darkens the ones facing away.
func shade(c color.RGBA, dh int) color.RGBA {
	f := 1.0
	switch {
	case dh > 0:
		f = 1.12
	case dh < 0:
		f = 0.86
	}
	return color.RGBA{R: scale(c.R, f), G: scale(c.G, f), B: scale(c.B, f), A: c.A}
}

func scale(v uint8, f float64) uint8 {
	n := float64(v) * f
	if n > 255 {
		return 255
	}
	return uint8(n)
}
