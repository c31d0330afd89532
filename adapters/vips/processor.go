//go:build vips

// Package vips provides a libvips-backed Decoder and Encoder. It needs cgo
// and libvips at build time, so it is only compiled with the "vips" tag.
package vips

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
	"github.com/Skryldev/image-convert/utils"
)

// Formats lists what the backend decodes and encodes. BMP stays on the
// pure-Go codecs.
var Formats = []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatGIF, core.FormatTIFF, core.FormatWebP}

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	DefaultQuality int
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
}

// Backend is a unified libvips-powered Decoder and Encoder.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 85
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// Register installs the backend for every format in Formats, replacing the
// pure-Go codecs for those formats.
func Register(reg core.Registry, b *Backend) {
	for _, f := range Formats {
		reg.RegisterDecoder(f, b)
		reg.RegisterEncoder(f, b)
	}
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool { return supported(f) }

func (b *Backend) Probe(ctx context.Context, r io.Reader) (core.Metadata, error) {
	ref, err := load(ctx, "vips.probe", r)
	if err != nil {
		return core.Metadata{}, err
	}
	// libvips loads lazily, so this reads the header only.
	defer ref.Close()
	return core.Metadata{Width: ref.Width(), Height: ref.Height(), Format: vipsFormatToCore(ref.Format())}, nil
}

// Decode loads the image and forces one pass over its pixels, so corrupt or
// truncated input fails here as a decode error instead of later at export.
func (b *Backend) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	const op = "vips.decode"
	ref, err := load(ctx, op, r)
	if err != nil {
		return nil, err
	}
	if _, err := ref.Average(); err != nil {
		ref.Close()
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	runtime.SetFinalizer(ref, func(r *govips.ImageRef) { r.Close() })

	format := vipsFormatToCore(ref.Format())
	return &core.ImageData{
		Format: format,
		Image:  &VipsImage{ref: ref},
		Meta: core.Metadata{
			Width:      ref.Width(),
			Height:     ref.Height(),
			Format:     format,
			ColorSpace: vipsInterpretationToColorSpace(ref.Interpretation(), ref.HasAlpha()),
			HasAlpha:   ref.HasAlpha(),
		},
	}, nil
}

func load(ctx context.Context, op string, r io.Reader) (*govips.ImageRef, error) {
	raw, err := utils.ReadAll(ctx, r, 0)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	params := govips.NewImportParams()
	params.FailOnError.Set(true)
	ref, err := govips.LoadImageFromBuffer(raw, params)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	return ref, nil
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanEncode(f core.Format) bool { return supported(f) }

func (b *Backend) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	const op = "vips.encode"
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	ref, release, err := refFor(img)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	defer release()

	quality := opts.Quality
	if quality <= 0 {
		quality = b.cfg.DefaultQuality
	}

	var buf []byte
	switch img.Format {
	case core.FormatJPEG:
		ep := govips.NewJpegExportParams()
		ep.Quality = quality
		ep.StripMetadata = true
		buf, _, err = ref.ExportJpeg(ep)
	case core.FormatPNG:
		ep := govips.NewPngExportParams()
		ep.StripMetadata = true
		buf, _, err = ref.ExportPng(ep)
	case core.FormatGIF:
		ep := govips.NewGifExportParams()
		ep.StripMetadata = true
		buf, _, err = ref.ExportGIF(ep)
	case core.FormatTIFF:
		ep := govips.NewTiffExportParams()
		ep.StripMetadata = true
		buf, _, err = ref.ExportTiff(ep)
	case core.FormatWebP:
		ep := govips.NewWebpExportParams()
		ep.Quality = quality
		ep.StripMetadata = true
		buf, _, err = ref.ExportWebp(ep)
	default:
		return nil, apperrors.New(apperrors.CategoryUnsupportedTarget, op,
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, img.Format))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op+"."+string(img.Format), err)
	}
	return buf, nil
}

// refFor returns a libvips image for img. Pixels decoded by a pure-Go
// decoder (BMP) are handed over as lossless PNG.
func refFor(img *core.ImageData) (*govips.ImageRef, func(), error) {
	switch src := img.Image.(type) {
	case *VipsImage:
		if src == nil {
			break
		}
		return src.ref, func() {}, nil
	case image.Image:
		var buf bytes.Buffer
		if err := (&png.Encoder{CompressionLevel: png.NoCompression}).Encode(&buf, src); err != nil {
			return nil, nil, err
		}
		ref, err := govips.NewImageFromBuffer(buf.Bytes())
		if err != nil {
			return nil, nil, err
		}
		return ref, ref.Close, nil
	}
	return nil, nil, apperrors.ErrEmptyInput
}

// ─── VipsImage ────────────────────────────────────────────────────────────────

// VipsImage wraps a *govips.ImageRef for storage in core.ImageData.Image.
type VipsImage struct {
	ref *govips.ImageRef
}

func (v *VipsImage) Width() int            { return v.ref.Width() }
func (v *VipsImage) Height() int           { return v.ref.Height() }
func (v *VipsImage) Ref() *govips.ImageRef { return v.ref }
func (v *VipsImage) Close()                { v.ref.Close() }

// Flatten composites the image onto bg in place.
func (v *VipsImage) Flatten(bg color.RGBA) error {
	return v.ref.Flatten(&govips.Color{R: bg.R, G: bg.G, B: bg.B})
}

// Raster exports the pixels losslessly and decodes them with image/png.
func (v *VipsImage) Raster() (image.Image, error) {
	ep := govips.NewPngExportParams()
	ep.Compression = 0
	buf, _, err := v.ref.ExportPng(ep)
	if err != nil {
		return nil, err
	}
	return png.Decode(bytes.NewReader(buf))
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func supported(f core.Format) bool {
	for _, s := range Formats {
		if s == f {
			return true
		}
	}
	return false
}

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeGIF:
		return core.FormatGIF
	case govips.ImageTypeTIFF:
		return core.FormatTIFF
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	default:
		return core.FormatUnknown
	}
}

func vipsInterpretationToColorSpace(i govips.Interpretation, alpha bool) core.ColorSpace {
	switch i {
	case govips.InterpretationBW, govips.InterpretationGrey16:
		return core.ColorSpaceGray
	case govips.InterpretationCMYK:
		return core.ColorSpaceCMYK
	}
	if alpha {
		return core.ColorSpaceRGBA
	}
	return core.ColorSpaceRGB
}

// compile-time interface checks
var (
	_ core.Decoder    = (*Backend)(nil)
	_ core.Encoder    = (*Backend)(nil)
	_ core.Flattener  = (*VipsImage)(nil)
	_ core.Rasterizer = (*VipsImage)(nil)
)
