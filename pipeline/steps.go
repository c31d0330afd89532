package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
)

// White is the background used when flattening transparent images.
var White = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}

// ── Probe ─────────────────────────────────────────────────────────────────────

// ProbeStep reads the image header and rejects images whose pixel count
// exceeds MaxPixels before any pixel buffer is allocated.
type ProbeStep struct {
	Registry  core.Registry
	MaxPixels int64 // 0 = no limit
}

func (s *ProbeStep) Name() string { return "probe" }

func (s *ProbeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	dec, err := decoderFor(s.Registry, s.Name(), img)
	if err != nil {
		return nil, err
	}

	meta, err := dec.Probe(ctx, bytes.NewReader(img.Data))
	if err != nil {
		return nil, err
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(),
			fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, meta.Width, meta.Height))
	}
	if s.MaxPixels > 0 && int64(meta.Width)*int64(meta.Height) > s.MaxPixels {
		return nil, apperrors.New(apperrors.CategoryValidation, s.Name(),
			fmt.Errorf("%w: %dx%d > %d", apperrors.ErrTooManyPixels, meta.Width, meta.Height, s.MaxPixels))
	}

	out := *img
	out.Meta.Width = meta.Width
	out.Meta.Height = meta.Height
	out.Meta.Format = img.Format
	return &out, nil
}

// ── Decode ────────────────────────────────────────────────────────────────────

// DecodeStep decodes raw bytes in img.Data into a pixel buffer.
type DecodeStep struct {
	Registry core.Registry
}

func (s *DecodeStep) Name() string { return "decode" }

func (s *DecodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Image != nil {
		return img, nil // already decoded
	}
	dec, err := decoderFor(s.Registry, s.Name(), img)
	if err != nil {
		return nil, err
	}

	decoded, err := dec.Decode(ctx, bytes.NewReader(img.Data))
	if err != nil {
		return nil, err
	}
	// Preserve the raw data bytes alongside the decoded representation.
	decoded.Data = img.Data
	decoded.OriginalSize = img.OriginalSize
	return decoded, nil
}

func decoderFor(reg core.Registry, op string, img *core.ImageData) (core.Decoder, error) {
	if len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryValidation, op, apperrors.ErrEmptyInput)
	}
	dec, ok := reg.DecoderFor(img.Format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryUnsupportedSource, op,
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, img.Format))
	}
	return dec, nil
}

// ── Flatten ───────────────────────────────────────────────────────────────────

// FlattenStep composites a transparent image onto an opaque background.
// It is a no-op for opaque images.
type FlattenStep struct {
	Background color.RGBA
}

func (s *FlattenStep) Name() string { return "flatten" }

func (s *FlattenStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCanceled, s.Name(), err)
	}
	if !img.Meta.HasAlpha {
		return img, nil
	}

	out := *img
	switch src := img.Image.(type) {
	case image.Image:
		bounds := src.Bounds()
		dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(dst, dst.Bounds(), image.NewUniform(s.Background), image.Point{}, draw.Src)
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
		out.Image = dst
	case core.Flattener:
		if err := src.Flatten(s.Background); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, s.Name(), err)
		}
	default:
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(), apperrors.ErrEmptyInput)
	}
	out.Meta.HasAlpha = false
	out.Meta.ColorSpace = core.ColorSpaceRGB
	return &out, nil
}

// ── Format conversion ─────────────────────────────────────────────────────────

// FormatStep sets the output format for the subsequent encode step.
type FormatStep struct {
	Format core.Format
}

func (s *FormatStep) Name() string { return "format" }

func (s *FormatStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	out := *img
	out.Format = s.Format
	out.Meta.Format = s.Format
	return &out, nil
}

// ── Encode ────────────────────────────────────────────────────────────────────

// EncodeStep serialises the pixel buffer into encoded bytes using the registry.
type EncodeStep struct {
	Registry core.Registry
	Options  core.EncodeOptions
}

func (s *EncodeStep) Name() string { return "encode" }

func (s *EncodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	enc, ok := s.Registry.EncoderFor(img.Format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryUnsupportedTarget, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, img.Format))
	}

	data, err := enc.Encode(ctx, img, s.Options)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, s.Name(), err)
	}
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(), apperrors.ErrEmptyInput)
	}

	out := *img
	out.Data = data
	out.Meta.SizeBytes = int64(len(data))
	return &out, nil
}
