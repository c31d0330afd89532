package decoder

import (
	"context"
	"io"

	"golang.org/x/image/webp"

	"github.com/Skryldev/image-convert/core"
)

// WebP decodes WebP images using golang.org/x/image/webp.
// NOTE: x/image/webp handles lossy and lossless still images but not
// animation; register the vips backend for animated input.
type WebP struct{}

func NewWebP() *WebP { return &WebP{} }

func (w *WebP) CanDecode(format core.Format) bool {
	return format == core.FormatWebP
}

func (w *WebP) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	return decode(ctx, "webp.decode", core.FormatWebP, r, webp.Decode)
}

func (w *WebP) Probe(ctx context.Context, r io.Reader) (core.Metadata, error) {
	return probe(ctx, "webp.probe", core.FormatWebP, r, webp.DecodeConfig)
}
