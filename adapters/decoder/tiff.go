package decoder

import (
	"context"
	"io"

	"golang.org/x/image/tiff"

	"github.com/Skryldev/image-convert/core"
)

// TIFF decodes baseline TIFF images using golang.org/x/image/tiff.
type TIFF struct{}

func NewTIFF() *TIFF { return &TIFF{} }

func (t *TIFF) CanDecode(format core.Format) bool { return format == core.FormatTIFF }

func (t *TIFF) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	return decode(ctx, "tiff.decode", core.FormatTIFF, r, tiff.Decode)
}

func (t *TIFF) Probe(ctx context.Context, r io.Reader) (core.Metadata, error) {
	return probe(ctx, "tiff.probe", core.FormatTIFF, r, tiff.DecodeConfig)
}
