// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

package imaging

import (
	"image"
	"image/color"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// AccessDeniedText is drawn onto maps that could not be masked.
const AccessDeniedText = "Access denied"

var (
	fontOnce sync.Once
	ttf      *truetype.Font
	fontErr  error
)

func loadFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		ttf, fontErr = truetype.Parse(goregular.TTF)
	})
	return ttf, fontErr
}

// ErrorImage returns a w x h image filled with bg and text centred on it.
// If the font cannot be rendered the plain fill is returned.
func ErrorImage(w, h int, bg color.Color, text string) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, xdraw.Src)

	f, err := loadFont()
	if err != nil || text == "" {
		return img
	}

	size := float64(h) / 8
	if size > 32 {
		size = 32
	}
	if size < 8 {
		size = 8
	}
	// shrink until the text fits the width
	for size > 8 && textWidth(f, text, size) > w-8 {
		size--
	}

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(f)
	c.SetFontSize(size)
	c.SetClip(img.Bounds())
	c.SetDst(img)
	c.SetSrc(image.NewUniform(color.Black))
	c.SetHinting(font.HintingFull)

	x := (w - textWidth(f, text, size)) / 2
	if x < 0 {
		x = 0
	}
	y := (h + int(size*0.7)) / 2
	_, _ = c.DrawString(text, freetype.Pt(x, y))
	return img
}

func textWidth(f *truetype.Font, text string, size float64) int {
	face := truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72})
	defer face.Close()
	return font.MeasureString(face, text).Round()
}
