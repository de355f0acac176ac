// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package imaging decodes map images, applies allowed-area masks and
// re-encodes the result in the format the client asked for.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/chai2010/webp"
	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// ErrUnsupportedFormat is returned for MIME types the encoder does not know.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Decode reads any registered raster format (png, jpeg, gif, bmp, tiff, webp).
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// baseMIME strips parameters such as "; mode=8bit".
func baseMIME(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// HasAlpha reports whether the format can carry transparency.
func HasAlpha(mimeType string) bool {
	switch baseMIME(mimeType) {
	case "image/jpeg", "image/jpg", "image/bmp":
		return false
	}
	return true
}

// Encode writes img as mimeType. Formats without an alpha channel are
// flattened onto white first.
func Encode(w io.Writer, img image.Image, mimeType string) error {
	if !HasAlpha(mimeType) {
		img = Flatten(img, color.White)
	}

	switch baseMIME(mimeType) {
	case "image/png", "image/png8", "image/png24", "image/png32":
		return png.Encode(w, img)
	case "image/jpeg", "image/jpg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case "image/gif":
		return gif.Encode(w, img, &gif.Options{NumColors: 256})
	case "image/bmp":
		return bmp.Encode(w, img)
	case "image/tiff", "image/geotiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case "image/webp":
		return webp.Encode(w, img, &webp.Options{Lossless: true})
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
}

// Flatten composes img over an opaque background and drops the alpha channel.
func Flatten(img image.Image, bg color.Color) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	xdraw.Draw(dst, b, image.NewUniform(bg), image.Point{}, xdraw.Src)
	xdraw.Draw(dst, b, img, b.Min, xdraw.Over)
	return dst
}
