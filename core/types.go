package core

import (
	"context"
	"image"
	"image/color"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatWebP    Format = "webp"
	FormatUnknown Format = "unknown"
)

// ColorSpace represents the image colour model.
type ColorSpace string

const (
	ColorSpaceRGB     ColorSpace = "rgb"
	ColorSpaceRGBA    ColorSpace = "rgba"
	ColorSpaceCMYK    ColorSpace = "cmyk"
	ColorSpaceGray    ColorSpace = "gray"
	ColorSpacePalette ColorSpace = "palette"
)

// Metadata holds extracted image information without loading pixel data.
type Metadata struct {
	Width      int
	Height     int
	Format     Format
	ColorSpace ColorSpace
	HasAlpha   bool
	SizeBytes  int64
}

// ImageData is the in-memory representation passed through the conversion
// pipeline. Data holds encoded bytes; Image holds the decoded pixel buffer.
type ImageData struct {
	// Encoded bytes: the raw input before decode, the output after encode.
	Data   []byte
	Format Format

	// Decoded pixel buffer. The stdlib backend stores an image.Image; the
	// libvips backend stores its own wrapper type.
	Image interface{}

	Meta Metadata

	OriginalSize int64
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Quality int // 1-100; 0 = use encoder default
}

// ConversionRequest is the transient input of one submit flow.
type ConversionRequest struct {
	Data    []byte
	Hint    Format // client-declared source format; FormatUnknown when absent
	Target  Format
	Options EncodeOptions
}

// Converted is the output of a successful conversion, before it is stored.
type Converted struct {
	Data         []byte
	Format       Format
	ContentType  string
	SourceFormat Format
	Width        int
	Height       int
}

// Artifact is what the orchestrator hands to a result store.
type Artifact struct {
	Data        []byte
	ContentType string
}

// Result is a stored conversion result. Results are immutable once stored.
type Result struct {
	ID          string
	Data        []byte
	ContentType string
	CreatedAt   time.Time
	ExpiresAt   time.Time // zero when the store has no TTL
	Checksum    string    // hex blake3 of Data
}

// Step is the fundamental pipeline building block. Each Step transforms an
// *ImageData value and must be safe for concurrent use across goroutines.
type Step interface {
	Name() string
	Execute(ctx context.Context, img *ImageData) (*ImageData, error)
}

// Hook is an optional observer invoked around pipeline steps.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, img *ImageData)
	AfterStep(ctx context.Context, stepName string, img *ImageData, d time.Duration, err error)
}

// Flattener is implemented by backend image wrappers that can composite
// themselves onto an opaque background.
type Flattener interface {
	Flatten(bg color.RGBA) error
}

// Rasterizer is implemented by backend image wrappers that can hand their
// pixels to the pure-Go encoders.
type Rasterizer interface {
	Raster() (image.Image, error)
}

// StorageKey uniquely identifies a stored object in an object adapter.
type StorageKey struct {
	Bucket string
	Path   string
}
