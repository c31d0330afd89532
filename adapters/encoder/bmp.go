package encoder

import (
	"context"
	"io"

	"golang.org/x/image/bmp"

	"github.com/Skryldev/image-convert/core"
)

// BMP encodes uncompressed BMP images.
type BMP struct{}

func NewBMP() *BMP { return &BMP{} }

func (b *BMP) CanEncode(format core.Format) bool { return format == core.FormatBMP }

func (b *BMP) Encode(ctx context.Context, img *core.ImageData, _ core.EncodeOptions) ([]byte, error) {
	src, err := source(ctx, "bmp.encode", img)
	if err != nil {
		return nil, err
	}
	return encodeTo("bmp.encode", src, func(w io.Writer) error {
		return bmp.Encode(w, src)
	})
}
