//go:build vips

package vips_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"testing"

	imageconvert "github.com/Skryldev/image-convert"
	"github.com/Skryldev/image-convert/adapters/vips"
	"github.com/Skryldev/image-convert/converter"
	"github.com/Skryldev/image-convert/core"
)

var backend *vips.Backend

func TestMain(m *testing.M) {
	backend = vips.NewBackend(vips.BackendConfig{DefaultQuality: 85})
	code := m.Run()
	backend.Shutdown()
	os.Exit(code)
}

func makeJPEG(tb testing.TB, w, h int) []byte {
	tb.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}); err != nil {
		tb.Fatal(err)
	}
	return buf.Bytes()
}

func newConverter(tb testing.TB, withVips bool) *converter.Converter {
	tb.Helper()
	cfg := imageconvert.DefaultConfig()
	reg := imageconvert.NewRegistry(cfg)
	if withVips {
		vips.Register(reg, backend)
	}
	c, err := imageconvert.NewConverter(cfg, reg, nil)
	if err != nil {
		tb.Fatal(err)
	}
	return c
}

func TestConvert_JPEGToWebP(t *testing.T) {
	c := newConverter(t, true)
	out, err := c.Convert(context.Background(), core.ConversionRequest{
		Data:   makeJPEG(t, 64, 48),
		Target: core.FormatWebP,
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got := core.DetectFormat(out.Data); got != core.FormatWebP {
		t.Fatalf("output format: got %s", got)
	}
	if out.Width != 64 || out.Height != 48 {
		t.Errorf("dimensions: got %dx%d", out.Width, out.Height)
	}
}

// BMP decodes in pure Go and encodes through libvips.
func TestConvert_MixedBackends(t *testing.T) {
	c := newConverter(t, true)
	bmp, err := c.Convert(context.Background(), core.ConversionRequest{Data: makeJPEG(t, 20, 10), Target: core.FormatBMP})
	if err != nil {
		t.Fatalf("to bmp: %v", err)
	}
	out, err := c.Convert(context.Background(), core.ConversionRequest{Data: bmp.Data, Target: core.FormatPNG})
	if err != nil {
		t.Fatalf("bmp to png: %v", err)
	}
	if out.Width != 20 || out.Height != 10 {
		t.Errorf("dimensions: got %dx%d", out.Width, out.Height)
	}
}

func TestConvert_CorruptInput(t *testing.T) {
	c := newConverter(t, true)
	raw := makeJPEG(t, 64, 64)
	_, err := c.Convert(context.Background(), core.ConversionRequest{Data: raw[:len(raw)/2], Target: core.FormatPNG})
	if err == nil {
		t.Fatal("expected decode error for truncated jpeg")
	}
}

func benchmarkConvert(b *testing.B, withVips bool, target core.Format) {
	raw := makeJPEG(b, 1920, 1080)
	c := newConverter(b, withVips)
	req := core.ConversionRequest{Data: raw, Target: target}

	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Convert(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkJPEGToPNG_Stdlib_1920x1080(b *testing.B) { benchmarkConvert(b, false, core.FormatPNG) }
func BenchmarkJPEGToPNG_Vips_1920x1080(b *testing.B)   { benchmarkConvert(b, true, core.FormatPNG) }
func BenchmarkJPEGToGIF_Stdlib_1920x1080(b *testing.B) { benchmarkConvert(b, false, core.FormatGIF) }
func BenchmarkJPEGToGIF_Vips_1920x1080(b *testing.B)   { benchmarkConvert(b, true, core.FormatGIF) }
func BenchmarkJPEGToWebP_Vips_1920x1080(b *testing.B)  { benchmarkConvert(b, true, core.FormatWebP) }

func BenchmarkJPEGToPNG_Vips_Parallel(b *testing.B) {
	raw := makeJPEG(b, 1920, 1080)
	c := newConverter(b, true)
	req := core.ConversionRequest{Data: raw, Target: core.FormatPNG}

	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := c.Convert(context.Background(), req); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
