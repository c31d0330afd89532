//go:build vips

package imageconvert

import (
	"github.com/Skryldev/image-convert/adapters/vips"
	"github.com/Skryldev/image-convert/config"
	"github.com/Skryldev/image-convert/core"
)

// BuildRegistry returns the registry for cfg.Codec and a function that
// releases codec resources. With the vips codec, libvips replaces the
// pure-Go codecs for every format it handles.
func BuildRegistry(cfg config.Config) (core.Registry, func(), error) {
	reg := NewRegistry(cfg)
	if cfg.Codec != config.CodecVips {
		return reg, func() {}, nil
	}
	backend := vips.NewBackend(vips.BackendConfig{
		DefaultQuality: cfg.DefaultQuality,
		MaxWorkers:     cfg.WorkerCount,
	})
	vips.Register(reg, backend)
	return reg, backend.Shutdown, nil
}
