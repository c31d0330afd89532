package encoder

import (
	"context"
	"image/gif"
	"io"

	"github.com/Skryldev/image-convert/core"
)

// GIF encodes a single-frame GIF. Non-paletted sources are quantised to
// the Plan 9 palette with Floyd-Steinberg dithering (image/gif defaults).
type GIF struct{}

func NewGIF() *GIF { return &GIF{} }

func (g *GIF) CanEncode(format core.Format) bool { return format == core.FormatGIF }

func (g *GIF) Encode(ctx context.Context, img *core.ImageData, _ core.EncodeOptions) ([]byte, error) {
	src, err := source(ctx, "gif.encode", img)
	if err != nil {
		return nil, err
	}
	return encodeTo("gif.encode", src, func(w io.Writer) error {
		return gif.Encode(w, src, &gif.Options{NumColors: 256})
	})
}
