//go:build !vips

package imageconvert

import (
	"fmt"

	"github.com/Skryldev/image-convert/config"
	"github.com/Skryldev/image-convert/core"
)

// BuildRegistry returns the registry for cfg.Codec and a function that
// releases codec resources. This build carries the pure-Go codecs only.
func BuildRegistry(cfg config.Config) (core.Registry, func(), error) {
	if cfg.Codec == config.CodecVips {
		return nil, nil, fmt.Errorf("codec backend %q requires building with -tags vips", cfg.Codec)
	}
	return NewRegistry(cfg), func() {}, nil
}
