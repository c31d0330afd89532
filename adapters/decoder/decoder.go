// Package decoder provides format-specific image decoders.
package decoder

import (
	"context"
	"image"
	"io"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
)

type decodeFunc func(io.Reader) (image.Image, error)
type configFunc func(io.Reader) (image.Config, error)

// decode runs fn and builds the ImageData every stdlib-backed decoder returns.
func decode(ctx context.Context, op string, f core.Format, r io.Reader, fn decodeFunc) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}

	img, err := fn(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, apperrors.New(apperrors.CategoryDecode, op, apperrors.ErrInvalidDimensions)
	}
	meta := core.Metadata{
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Format:     f,
		ColorSpace: colorSpace(img),
		HasAlpha:   hasAlpha(img),
	}

	return &core.ImageData{
		Image:  img,
		Format: f,
		Meta:   meta,
	}, nil
}

// probe reads only the header through fn.
func probe(ctx context.Context, op string, f core.Format, r io.Reader, fn configFunc) (core.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return core.Metadata{}, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	cfg, err := fn(r)
	if err != nil {
		return core.Metadata{}, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	return core.Metadata{Width: cfg.Width, Height: cfg.Height, Format: f}, nil
}

// colorSpace returns the colour space of an image.Image.
func colorSpace(img image.Image) core.ColorSpace {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return core.ColorSpaceGray
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return core.ColorSpaceRGBA
	case *image.CMYK:
		return core.ColorSpaceCMYK
	case *image.Paletted:
		return core.ColorSpacePalette
	}
	return core.ColorSpaceRGB
}

// hasAlpha reports whether img carries at least one non-opaque pixel.
// Formats that always decode to an alpha-capable buffer (PNG, WebP) are
// checked pixel by pixel through Opaque when the type provides it.
func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}
