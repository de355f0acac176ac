// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package mask

import (
	"context"
	"image"
	"image/draw"

	"github.com/paulmach/orb"
	"golang.org/x/image/vector"
)

// Rasterizer renders masks locally. It is used when no mask server is
// configured.
type Rasterizer struct{}

// Mask implements Source.
func (Rasterizer) Mask(ctx context.Context, req Request) (image.Image, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := req.BBox.Bound
	sx := float64(req.Width) / (b.Max[0] - b.Min[0])
	sy := float64(req.Height) / (b.Max[1] - b.Min[1])
	toPixel := func(p orb.Point) (float32, float32) {
		q := req.BBox.CRS.FromWGS84(p)
		return float32((q[0] - b.Min[0]) * sx), float32((b.Max[1] - q[1]) * sy)
	}

	r := vector.NewRasterizer(req.Width, req.Height)
	for _, poly := range req.Area.MultiPolygon() {
		for i, ring := range poly {
			// outer rings and holes need opposite windings to cancel out
			want := orb.CCW
			if i > 0 {
				want = orb.CW
			}
			addRing(r, ring, ring.Orientation() != want, toPixel)
		}
	}

	coverage := image.NewAlpha(image.Rect(0, 0, req.Width, req.Height))
	r.Draw(coverage, coverage.Bounds(), image.Opaque, image.Point{})

	out := image.NewNRGBA(coverage.Bounds())
	draw.DrawMask(out, out.Bounds(), image.White, image.Point{}, coverage, image.Point{}, draw.Src)
	return out, nil
}

func addRing(r *vector.Rasterizer, ring orb.Ring, reverse bool, toPixel func(orb.Point) (float32, float32)) {
	n := len(ring)
	if n < 3 {
		return
	}
	at := func(i int) orb.Point {
		if reverse {
			return ring[n-1-i]
		}
		return ring[i]
	}
	x, y := toPixel(at(0))
	r.MoveTo(x, y)
	for i := 1; i < n; i++ {
		x, y = toPixel(at(i))
		r.LineTo(x, y)
	}
	r.ClosePath()
}
