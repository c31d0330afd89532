package converter_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/Skryldev/image-convert/adapters/decoder"
	"github.com/Skryldev/image-convert/adapters/encoder"
	"github.com/Skryldev/image-convert/converter"
	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
	"github.com/Skryldev/image-convert/hooks"
)

func stdlibRegistry() *core.DefaultRegistry {
	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterDecoder(core.FormatGIF, decoder.NewGIF())
	reg.RegisterDecoder(core.FormatBMP, decoder.NewBMP())
	reg.RegisterDecoder(core.FormatTIFF, decoder.NewTIFF())
	reg.RegisterDecoder(core.FormatWebP, decoder.NewWebP())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(85))
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	reg.RegisterEncoder(core.FormatGIF, encoder.NewGIF())
	reg.RegisterEncoder(core.FormatBMP, encoder.NewBMP())
	reg.RegisterEncoder(core.FormatTIFF, encoder.NewTIFF())
	return reg
}

func newConverter(opts converter.Options) *converter.Converter {
	return converter.New(stdlibRegistry(), opts)
}

func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

// encodeAs converts a solid PNG fixture into f so every source format can be
// exercised without checked-in binaries.
func encodeAs(t *testing.T, c *converter.Converter, f core.Format, w, h int) []byte {
	t.Helper()
	raw := solidPNG(t, w, h, color.NRGBA{R: 30, G: 120, B: 200, A: 255})
	if f == core.FormatPNG {
		return raw
	}
	out, err := c.Convert(context.Background(), core.ConversionRequest{Data: raw, Target: f})
	if err != nil {
		t.Fatalf("prepare %s fixture: %v", f, err)
	}
	return out.Data
}

func TestConvert_PNGToJPEG(t *testing.T) {
	c := newConverter(converter.Options{DefaultQuality: 85})
	raw := solidPNG(t, 100, 100, color.NRGBA{R: 255, A: 255})

	out, err := c.Convert(context.Background(), core.ConversionRequest{Data: raw, Target: core.FormatJPEG})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if core.DetectFormat(out.Data) != core.FormatJPEG {
		t.Fatalf("output is not a JPEG")
	}
	if out.ContentType != "image/jpeg" || out.SourceFormat != core.FormatPNG {
		t.Errorf("got content type %q source %s", out.ContentType, out.SourceFormat)
	}
	if out.Width != 100 || out.Height != 100 {
		t.Errorf("dimensions: %dx%d", out.Width, out.Height)
	}
}

func TestConvert_RoundTripsKeepDimensions(t *testing.T) {
	c := newConverter(converter.Options{DefaultQuality: 90})
	formats := []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatGIF, core.FormatBMP, core.FormatTIFF}

	for _, src := range formats {
		input := encodeAs(t, c, src, 37, 21)
		for _, dst := range formats {
			t.Run(string(src)+"_to_"+string(dst), func(t *testing.T) {
				out, err := c.Convert(context.Background(), core.ConversionRequest{Data: input, Target: dst})
				if err != nil {
					t.Fatalf("Convert: %v", err)
				}
				if got := core.DetectFormat(out.Data); got != dst {
					t.Fatalf("output sniffed as %s", got)
				}
				cfg, _, err := image.DecodeConfig(bytes.NewReader(out.Data))
				if err != nil {
					t.Fatalf("decode output: %v", err)
				}
				if cfg.Width != 37 || cfg.Height != 21 {
					t.Errorf("dimensions: %dx%d", cfg.Width, cfg.Height)
				}
			})
		}
	}
}

func TestConvert_FlattensAlphaOntoWhiteForJPEG(t *testing.T) {
	c := newConverter(converter.Options{})
	raw := solidPNG(t, 8, 8, color.NRGBA{R: 0, G: 0, B: 0, A: 0})

	out, err := c.Convert(context.Background(), core.ConversionRequest{
		Data: raw, Target: core.FormatJPEG, Options: core.EncodeOptions{Quality: 100},
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	r, g, b, _ := img.At(4, 4).RGBA()
	if r>>8 < 250 || g>>8 < 250 || b>>8 < 250 {
		t.Errorf("transparent pixel rendered as (%d,%d,%d), want white", r>>8, g>>8, b>>8)
	}
}

func TestConvert_Errors(t *testing.T) {
	png := solidPNG(t, 10, 10, color.NRGBA{G: 255, A: 255})

	tests := []struct {
		name string
		opts converter.Options
		req  core.ConversionRequest
		want apperrors.Category
	}{
		{
			name: "empty input",
			req:  core.ConversionRequest{Target: core.FormatPNG},
			want: apperrors.CategoryValidation,
		},
		{
			name: "input too large",
			opts: converter.Options{MaxInputBytes: 16},
			req:  core.ConversionRequest{Data: png, Target: core.FormatJPEG},
			want: apperrors.CategoryValidation,
		},
		{
			name: "quality out of range",
			req:  core.ConversionRequest{Data: png, Target: core.FormatJPEG, Options: core.EncodeOptions{Quality: 101}},
			want: apperrors.CategoryValidation,
		},
		{
			name: "too many pixels",
			opts: converter.Options{MaxPixels: 99},
			req:  core.ConversionRequest{Data: png, Target: core.FormatJPEG},
			want: apperrors.CategoryValidation,
		},
		{
			name: "webp target without encoder",
			req:  core.ConversionRequest{Data: png, Target: core.FormatWebP},
			want: apperrors.CategoryUnsupportedTarget,
		},
		{
			name: "unknown target",
			req:  core.ConversionRequest{Data: png, Target: core.FormatUnknown},
			want: apperrors.CategoryUnsupportedTarget,
		},
		{
			name: "target outside allowed list",
			opts: converter.Options{Targets: []core.Format{core.FormatJPEG}},
			req:  core.ConversionRequest{Data: png, Target: core.FormatGIF},
			want: apperrors.CategoryUnsupportedTarget,
		},
		{
			name: "truncated png",
			req:  core.ConversionRequest{Data: png[:len(png)/2], Target: core.FormatJPEG},
			want: apperrors.CategoryDecode,
		},
		{
			name: "garbage with png hint",
			req:  core.ConversionRequest{Data: []byte("definitely not an image"), Hint: core.FormatPNG, Target: core.FormatJPEG},
			want: apperrors.CategoryDecode,
		},
		{
			name: "garbage without hint",
			req:  core.ConversionRequest{Data: []byte("definitely not an image"), Target: core.FormatJPEG},
			want: apperrors.CategoryUnsupportedSource,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newConverter(tc.opts)
			out, err := c.Convert(context.Background(), tc.req)
			if err == nil {
				t.Fatalf("expected error, got %d bytes", len(out.Data))
			}
			if got := apperrors.CategoryOf(err); got != tc.want {
				t.Errorf("category: got %s, want %s (%v)", got, tc.want, err)
			}
		})
	}
}

func TestDetectSource_MagicBytesBeatHint(t *testing.T) {
	c := newConverter(converter.Options{})
	raw := solidPNG(t, 4, 4, color.NRGBA{A: 255})

	got, err := c.DetectSource(raw, core.FormatJPEG)
	if err != nil {
		t.Fatalf("DetectSource: %v", err)
	}
	if got != core.FormatPNG {
		t.Errorf("got %s, want png", got)
	}

	out, err := c.Convert(context.Background(), core.ConversionRequest{Data: raw, Hint: core.FormatJPEG, Target: core.FormatGIF})
	if err != nil {
		t.Fatalf("Convert with wrong hint: %v", err)
	}
	if out.SourceFormat != core.FormatPNG {
		t.Errorf("source format: got %s", out.SourceFormat)
	}
}

func TestConvert_RestrictedTargets(t *testing.T) {
	c := newConverter(converter.Options{Targets: []core.Format{core.FormatPNG, core.FormatWebP}})
	if !c.Supports(core.FormatPNG) {
		t.Error("png should be supported")
	}
	if c.Supports(core.FormatJPEG) {
		t.Error("jpeg is not in the allowed list")
	}
	if c.Supports(core.FormatWebP) {
		t.Error("webp has no encoder in the stdlib registry")
	}
}

func TestConvert_CanceledContext(t *testing.T) {
	c := newConverter(converter.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Convert(ctx, core.ConversionRequest{
		Data: solidPNG(t, 4, 4, color.NRGBA{A: 255}), Target: core.FormatJPEG,
	})
	if !apperrors.IsCategory(err, apperrors.CategoryCanceled) {
		t.Fatalf("got %v, want canceled", err)
	}
}

func TestConvert_LogsStagesRun(t *testing.T) {
	var buf bytes.Buffer
	logger := hooks.NewSlogLogger(hooks.NewSlog(&buf, "debug", "json"))
	c := newConverter(converter.Options{Logger: logger})

	raw := solidPNG(t, 4, 4, color.NRGBA{B: 255, A: 128})
	if _, err := c.Convert(context.Background(), core.ConversionRequest{Data: raw, Target: core.FormatJPEG}); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := `"steps":["probe","decode","flatten","format","encode"]`
	if !strings.Contains(buf.String(), want) {
		t.Errorf("log missing %s:\n%s", want, buf.String())
	}
}
