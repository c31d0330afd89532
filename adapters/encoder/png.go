package encoder

import (
	"context"
	"image/png"
	"io"

	"github.com/Skryldev/image-convert/core"
)

// PNG encodes images to PNG format.
type PNG struct {
	Level png.CompressionLevel
}

func NewPNG() *PNG { return &PNG{Level: png.DefaultCompression} }

func (p *PNG) CanEncode(format core.Format) bool { return format == core.FormatPNG }

func (p *PNG) Encode(ctx context.Context, img *core.ImageData, _ core.EncodeOptions) ([]byte, error) {
	src, err := source(ctx, "png.encode", img)
	if err != nil {
		return nil, err
	}

	enc := &png.Encoder{CompressionLevel: p.Level}
	return encodeTo("png.encode", src, func(w io.Writer) error {
		return enc.Encode(w, src)
	})
}
