// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package imaging

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// MaskAlpha converts a white-on-transparent mask to an alpha channel of the
// given size. Gray levels are weighted by the mask's own alpha so that both
// black and transparent pixels hide the map.
func MaskAlpha(mask image.Image, size image.Rectangle) *image.Alpha {
	mb := mask.Bounds()
	gray := image.NewAlpha(image.Rect(0, 0, mb.Dx(), mb.Dy()))
	for y := mb.Min.Y; y < mb.Max.Y; y++ {
		for x := mb.Min.X; x < mb.Max.X; x++ {
			// RGBA returns alpha-premultiplied 16 bit channels
			r, g, b, _ := mask.At(x, y).RGBA()
			lum := (19595*r + 38470*g + 7471*b + 1<<15) >> 24
			gray.SetAlpha(x-mb.Min.X, y-mb.Min.Y, color.Alpha{A: uint8(lum)})
		}
	}

	if gray.Bounds().Size() == size.Size() {
		gray.Rect = gray.Rect.Add(size.Min)
		return gray
	}
	out := image.NewAlpha(size)
	xdraw.BiLinear.Scale(out, size, gray, gray.Bounds(), xdraw.Src, nil)
	return out
}

// ApplyMask keeps img only where mask is white. The mask is resized to the
// image if needed.
func ApplyMask(img, mask image.Image) *image.NRGBA {
	b := img.Bounds()
	alpha := MaskAlpha(mask, b)
	dst := image.NewNRGBA(b)
	xdraw.DrawMask(dst, b, img, b.Min, alpha, b.Min, xdraw.Over)
	return dst
}
