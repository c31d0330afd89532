// Command convert converts a single image file without running the server.
//
//	convert -f webp -q 80 -o out.webp in.jpg
//	cat in.png | convert -f jpeg > out.jpg
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	imageconvert "github.com/Skryldev/image-convert"
	"github.com/Skryldev/image-convert/config"
	"github.com/Skryldev/image-convert/core"
	"github.com/Skryldev/image-convert/hooks"
	"github.com/Skryldev/image-convert/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "convert:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		target  = pflag.StringP("format", "f", "", "target format: jpeg, png, gif, bmp, tiff or webp")
		quality = pflag.IntP("quality", "q", 0, "encode quality 1-100 (0 uses DEFAULT_QUALITY)")
		output  = pflag.StringP("output", "o", "", "output file (default stdout)")
		hint    = pflag.String("from", "", "source format hint used when the input cannot be sniffed")
		codec   = pflag.String("codec", "", "codec backend: stdlib or vips")
		verbose = pflag.BoolP("verbose", "v", false, "log pipeline steps and timings to stderr")
		envFile = pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	)
	pflag.Parse()

	if *target == "" {
		return fmt.Errorf("--format is required")
	}
	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *codec != "" {
		cfg.Codec = config.CodecBackend(*codec)
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	in, source, err := readInput(ctx, pflag.Arg(0), cfg.MaxUploadBytes)
	if err != nil {
		return err
	}
	if *hint == "" {
		*hint = strings.TrimPrefix(filepath.Ext(source), ".")
	}

	reg, shutdown, err := imageconvert.BuildRegistry(cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	logger := hooks.NewSlogLogger(hooks.NewSlog(os.Stderr, cfg.LogLevel, "text"))
	metrics := hooks.NewInMemoryMetrics()
	var stepHooks []core.Hook
	if *verbose {
		stepHooks = append(stepHooks, hooks.NewLoggingHook(logger), hooks.NewMetricsHook(metrics))
	}
	conv, err := imageconvert.NewConverter(cfg, reg, logger, stepHooks...)
	if err != nil {
		return err
	}

	start := time.Now()
	out, err := conv.Convert(ctx, core.ConversionRequest{
		Data:    in,
		Hint:    core.ParseFormat(*hint),
		Target:  core.ParseFormat(*target),
		Options: core.EncodeOptions{Quality: *quality},
	})
	if err != nil {
		return err
	}

	if err := writeOutput(*output, out.Data); err != nil {
		return err
	}
	if *verbose {
		snap := metrics.Snapshot()
		for step, calls := range snap.StepCalls {
			avg := float64(snap.StepDurationsMs[step]) / float64(calls)
			logger.Debug("convert.step", "step", step, "calls", calls, "avg_ms", avg)
		}
	}
	logger.Info("convert.done",
		"source", out.SourceFormat,
		"target", out.Format,
		"width", out.Width,
		"height", out.Height,
		"in_bytes", len(in),
		"out_bytes", len(out.Data),
		"duration", time.Since(start),
	)
	return nil
}

// readInput reads path, or stdin when path is empty or "-".
func readInput(ctx context.Context, path string, max int64) ([]byte, string, error) {
	if path == "" || path == "-" {
		data, err := utils.ReadAll(ctx, os.Stdin, max)
		return data, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := utils.ReadAll(ctx, f, max)
	return data, path, err
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
