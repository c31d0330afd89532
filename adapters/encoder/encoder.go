// Package encoder provides format-specific image encoders.
package encoder

import (
	"bytes"
	"context"
	"image"
	"io"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
)

// source extracts the stdlib pixel buffer every encoder in this package
// needs, rasterising backend images when necessary.
func source(ctx context.Context, op string, img *core.ImageData) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	if img == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, op, apperrors.ErrEmptyInput)
	}
	switch src := img.Image.(type) {
	case image.Image:
		return src, nil
	case core.Rasterizer:
		raster, err := src.Raster()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
		}
		return raster, nil
	}
	return nil, apperrors.New(apperrors.CategoryEncode, op, apperrors.ErrEmptyInput)
}

// encodeTo runs fn against a buffer sized from the source dimensions.
func encodeTo(op string, src image.Image, fn func(w io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	b := src.Bounds()
	buf.Grow(b.Dx() * b.Dy() / 4)
	if err := fn(&buf); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	return buf.Bytes(), nil
}
