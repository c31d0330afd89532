// Package converter turns raw image bytes into the same picture encoded in
// another format. A Converter holds no per-request state and is safe for
// concurrent use.
package converter

import (
	"context"
	"fmt"
	"time"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
	"github.com/Skryldev/image-convert/pipeline"
)

// Options configures a Converter.
type Options struct {
	// MaxInputBytes rejects larger inputs before any decode work; 0 = no limit.
	MaxInputBytes int64
	// MaxPixels rejects images whose header declares more pixels; 0 = no limit.
	MaxPixels int64
	// Targets restricts accepted output formats. Empty means every format
	// with a registered encoder.
	Targets []core.Format
	// DefaultQuality is used when a request does not set one.
	DefaultQuality int
	Logger         core.Logger
	Hooks          []core.Hook
}

// Converter decodes, flattens when needed, and re-encodes images using the
// codecs in its registry.
type Converter struct {
	reg     core.Registry
	opts    Options
	targets map[core.Format]bool
	logger  core.Logger
}

// New returns a Converter over reg.
func New(reg core.Registry, opts Options) *Converter {
	c := &Converter{reg: reg, opts: opts, logger: opts.Logger}
	if c.logger == nil {
		c.logger = core.NopLogger{}
	}
	if len(opts.Targets) > 0 {
		c.targets = make(map[core.Format]bool, len(opts.Targets))
		for _, f := range opts.Targets {
			c.targets[f] = true
		}
	}
	return c
}

// Supports reports whether target is an accepted output format.
func (c *Converter) Supports(target core.Format) bool {
	if target == core.FormatUnknown {
		return false
	}
	if c.targets != nil && !c.targets[target] {
		return false
	}
	_, ok := c.reg.EncoderFor(target)
	return ok
}

// Validate performs the checks that need no decode work: payload size,
// quality range and target support.
func (c *Converter) Validate(req core.ConversionRequest) error {
	const op = "converter.validate"
	if len(req.Data) == 0 {
		return apperrors.New(apperrors.CategoryValidation, op, apperrors.ErrEmptyInput)
	}
	if c.opts.MaxInputBytes > 0 && int64(len(req.Data)) > c.opts.MaxInputBytes {
		return apperrors.New(apperrors.CategoryValidation, op,
			fmt.Errorf("%w: %d > %d bytes", apperrors.ErrInputTooLarge, len(req.Data), c.opts.MaxInputBytes))
	}
	if q := req.Options.Quality; q < 0 || q > 100 {
		return apperrors.New(apperrors.CategoryValidation, op, apperrors.ErrInvalidQuality)
	}
	if !c.Supports(req.Target) {
		return apperrors.New(apperrors.CategoryUnsupportedTarget, op,
			fmt.Errorf("%w: cannot encode %s", apperrors.ErrUnsupportedFormat, req.Target))
	}
	return nil
}

// DetectSource picks the decoder format for data. Magic bytes always win;
// the hint is consulted only when sniffing finds nothing, and then only if
// a decoder exists for it, so the decoder itself verifies the claim.
func (c *Converter) DetectSource(data []byte, hint core.Format) (core.Format, error) {
	sniffed := core.DetectFormat(data)
	if sniffed != core.FormatUnknown {
		if hint != core.FormatUnknown && hint != sniffed {
			c.logger.Debug("converter.hint_mismatch", "hint", hint, "sniffed", sniffed)
		}
		if _, ok := c.reg.DecoderFor(sniffed); ok {
			return sniffed, nil
		}
		return "", apperrors.New(apperrors.CategoryUnsupportedSource, "converter.detect",
			fmt.Errorf("%w: no decoder for %s", apperrors.ErrUnsupportedFormat, sniffed))
	}
	if hint != core.FormatUnknown {
		if _, ok := c.reg.DecoderFor(hint); ok {
			return hint, nil
		}
	}
	return "", apperrors.New(apperrors.CategoryUnsupportedSource, "converter.detect",
		fmt.Errorf("%w: unrecognised input", apperrors.ErrUnsupportedFormat))
}

// Convert runs the full conversion for req. It has no side effects beyond
// allocating the decoded and encoded buffers.
func (c *Converter) Convert(ctx context.Context, req core.ConversionRequest) (*core.Converted, error) {
	if err := c.Validate(req); err != nil {
		return nil, err
	}
	source, err := c.DetectSource(req.Data, req.Hint)
	if err != nil {
		return nil, err
	}

	opts := req.Options
	if opts.Quality == 0 {
		opts.Quality = c.opts.DefaultQuality
	}

	pl := c.pipelineFor(req.Target, opts)
	start := time.Now()
	out, timings, err := pl.Run(ctx, &core.ImageData{
		Data:         req.Data,
		Format:       source,
		OriginalSize: int64(len(req.Data)),
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("converter.done",
		"source", source,
		"target", req.Target,
		"width", out.Meta.Width,
		"height", out.Meta.Height,
		"in_bytes", len(req.Data),
		"out_bytes", len(out.Data),
		"steps", pl.Steps(),
		"encode_ms", timings["encode"].Milliseconds(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &core.Converted{
		Data:         out.Data,
		Format:       req.Target,
		ContentType:  req.Target.ContentType(),
		SourceFormat: source,
		Width:        out.Meta.Width,
		Height:       out.Meta.Height,
	}, nil
}

func (c *Converter) pipelineFor(target core.Format, opts core.EncodeOptions) *pipeline.Pipeline {
	pl := pipeline.New().Use(
		&pipeline.ProbeStep{Registry: c.reg, MaxPixels: c.opts.MaxPixels},
		&pipeline.DecodeStep{Registry: c.reg},
	)
	if !target.SupportsAlpha() {
		pl.Use(&pipeline.FlattenStep{Background: pipeline.White})
	}
	pl.Use(
		&pipeline.FormatStep{Format: target},
		&pipeline.EncodeStep{Registry: c.reg, Options: opts},
	)
	return pl.AddHook(c.opts.Hooks...)
}
