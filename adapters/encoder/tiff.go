package encoder

import (
	"context"
	"io"

	"golang.org/x/image/tiff"

	"github.com/Skryldev/image-convert/core"
)

// TIFF encodes deflate-compressed TIFF images.
type TIFF struct{}

func NewTIFF() *TIFF { return &TIFF{} }

func (t *TIFF) CanEncode(format core.Format) bool { return format == core.FormatTIFF }

func (t *TIFF) Encode(ctx context.Context, img *core.ImageData, _ core.EncodeOptions) ([]byte, error) {
	src, err := source(ctx, "tiff.encode", img)
	if err != nil {
		return nil, err
	}
	return encodeTo("tiff.encode", src, func(w io.Writer) error {
		return tiff.Encode(w, src, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	})
}
