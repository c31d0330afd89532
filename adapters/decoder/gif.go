package decoder

import (
	"context"
	"image/gif"
	"io"

	"github.com/Skryldev/image-convert/core"
)

// GIF decodes the first frame of a GIF image.
type GIF struct{}

func NewGIF() *GIF { return &GIF{} }

func (g *GIF) CanDecode(format core.Format) bool { return format == core.FormatGIF }

func (g *GIF) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	return decode(ctx, "gif.decode", core.FormatGIF, r, gif.Decode)
}

func (g *GIF) Probe(ctx context.Context, r io.Reader) (core.Metadata, error) {
	return probe(ctx, "gif.probe", core.FormatGIF, r, gif.DecodeConfig)
}
