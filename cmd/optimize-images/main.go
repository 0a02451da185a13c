// Package main implements the optimize-images CLI, which shrinks the site's
// PNG and JPEG assets in place before they are embedded into the server.
//
// Usage:
//
//	go run ./cmd/optimize-images
//	go run ./cmd/optimize-images --dir=internal/site/static/img --quality=80
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"primos/internal/imageopt"
)

func main() {
	dir := flag.String("dir", "internal/site/static/img", "Directory of images to optimize")
	maxWidth := flag.Int("max-width", imageopt.DefaultMaxWidth, "Maximum output width in pixels")
	maxHeight := flag.Int("max-height", imageopt.DefaultMaxHeight, "Maximum output height in pixels")
	quality := flag.Int("quality", imageopt.DefaultJPEGQuality, "JPEG quality (1-100)")
	concurrency := flag.Int("concurrency", imageopt.DefaultConcurrency, "Files processed in parallel")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Primos image optimizer\n\n")
		fmt.Fprintf(os.Stderr, "Scales images to fit the maximum size and recompresses them in place.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opt := imageopt.New(logger,
		imageopt.WithMaxSize(*maxWidth, *maxHeight),
		imageopt.WithQuality(*quality),
		imageopt.WithConcurrency(*concurrency),
	)

	results, err := opt.OptimizeDir(ctx, *dir)

	var before, after int64
	for _, r := range results {
		before += r.OriginalBytes
		after += r.OptimizedBytes
	}
	logger.Info("optimization finished",
		"dir", *dir,
		"files", len(results),
		"original_mb", fmt.Sprintf("%.2f", float64(before)/(1024*1024)),
		"optimized_mb", fmt.Sprintf("%.2f", float64(after)/(1024*1024)),
	)

	if err != nil {
		logger.Error("some images could not be optimized", "error", err)
		os.Exit(1)
	}
}
