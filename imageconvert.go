// Package imageconvert wires the codec registry, converter and result store
// into a ready conversion service.
package imageconvert

import (
	"fmt"

	"github.com/Skryldev/image-convert/adapters/decoder"
	"github.com/Skryldev/image-convert/adapters/encoder"
	"github.com/Skryldev/image-convert/config"
	"github.com/Skryldev/image-convert/converter"
	"github.com/Skryldev/image-convert/core"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	GIF  = core.FormatGIF
	BMP  = core.FormatBMP
	TIFF = core.FormatTIFF
	WebP = core.FormatWebP
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// NewRegistry returns a registry with the pure-Go codecs registered:
// JPEG, PNG, GIF, BMP and TIFF both ways, WebP decode only.
func NewRegistry(cfg config.Config) *core.DefaultRegistry {
	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterDecoder(core.FormatGIF, decoder.NewGIF())
	reg.RegisterDecoder(core.FormatBMP, decoder.NewBMP())
	reg.RegisterDecoder(core.FormatTIFF, decoder.NewTIFF())
	reg.RegisterDecoder(core.FormatWebP, decoder.NewWebP())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(cfg.DefaultQuality))
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	reg.RegisterEncoder(core.FormatGIF, encoder.NewGIF())
	reg.RegisterEncoder(core.FormatBMP, encoder.NewBMP())
	reg.RegisterEncoder(core.FormatTIFF, encoder.NewTIFF())
	return reg
}

// TargetFormats parses cfg.TargetFormats. An empty list yields nil, which
// the converter reads as "everything the registry can encode".
func TargetFormats(cfg config.Config) ([]core.Format, error) {
	if len(cfg.TargetFormats) == 0 {
		return nil, nil
	}
	out := make([]core.Format, 0, len(cfg.TargetFormats))
	for _, name := range cfg.TargetFormats {
		f := core.ParseFormat(name)
		if f == core.FormatUnknown {
			return nil, fmt.Errorf("config: unknown target format %q", name)
		}
		out = append(out, f)
	}
	return out, nil
}

// NewConverter builds a Converter over reg using the limits in cfg.
func NewConverter(cfg config.Config, reg core.Registry, logger core.Logger, hooks ...core.Hook) (*converter.Converter, error) {
	targets, err := TargetFormats(cfg)
	if err != nil {
		return nil, err
	}
	return converter.New(reg, converter.Options{
		MaxInputBytes:  cfg.MaxUploadBytes,
		MaxPixels:      cfg.MaxPixels,
		Targets:        targets,
		DefaultQuality: cfg.DefaultQuality,
		Logger:         logger,
		Hooks:          hooks,
	}), nil
}
