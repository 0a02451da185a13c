// Package imageopt shrinks site images in place: each image is scaled to fit
// within a maximum size, keeping its aspect ratio, and re-encoded.
//
// JPEG files are flattened onto white and written at a fixed quality. PNG
// files keep their alpha channel and are written with maximum compression.
package imageopt

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// Defaults for Optimizer.
const (
	DefaultMaxWidth    = 1920
	DefaultMaxHeight   = 1080
	DefaultJPEGQuality = 85
	DefaultConcurrency = 4
)

// MaxPixels caps the decoded size of a source image. Larger images are
// rejected from their header, before any pixel buffer is allocated.
const MaxPixels = 50_000_000

// ErrUnsupportedFormat is returned for files that are not PNG or JPEG.
var ErrUnsupportedFormat = errors.New("imageopt: unsupported format")

// ErrImageTooLarge is returned for images whose header exceeds MaxPixels.
var ErrImageTooLarge = errors.New("imageopt: image too large")

var supportedExts = []string{".png", ".jpg", ".jpeg"}

// Result describes one processed file.
type Result struct {
	Path           string
	OriginalBytes  int64
	OptimizedBytes int64
	Width, Height  int
	Resized        bool
	// Replaced is false when re-encoding would not have made the file smaller
	// and no resize was needed; the original is then left untouched.
	Replaced bool
}

// Reduction is the size saving as a percentage of the original.
func (r Result) Reduction() float64 {
	if r.OriginalBytes == 0 || !r.Replaced {
		return 0
	}
	return float64(r.OriginalBytes-r.OptimizedBytes) / float64(r.OriginalBytes) * 100
}

// Optimizer processes image files.
type Optimizer struct {
	maxWidth    int
	maxHeight   int
	quality     int
	concurrency int
	logger      *slog.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithMaxSize sets the bounding box images are scaled to fit.
func WithMaxSize(width, height int) Option {
	return func(o *Optimizer) {
		if width > 0 && height > 0 {
			o.maxWidth, o.maxHeight = width, height
		}
	}
}

// WithQuality sets the JPEG quality (1-100).
func WithQuality(q int) Option {
	return func(o *Optimizer) {
		if q >= 1 && q <= 100 {
			o.quality = q
		}
	}
}

// WithConcurrency bounds how many files OptimizeDir processes at once.
func WithConcurrency(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// New creates an Optimizer.
func New(logger *slog.Logger, opts ...Option) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Optimizer{
		maxWidth:    DefaultMaxWidth,
		maxHeight:   DefaultMaxHeight,
		quality:     DefaultJPEGQuality,
		concurrency: DefaultConcurrency,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OptimizeDir processes every supported image directly inside dir. A failing
// file is logged and does not stop the others; the joined errors are
// returned alongside the successful results, sorted by path.
func (o *Optimizer) OptimizeDir(ctx context.Context, dir string) ([]Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("imageopt: read dir: %w", err)
	}

	var (
		mu      sync.Mutex
		results []Result
		errs    []error
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())

		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			res, err := o.OptimizeFile(path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.logger.Error("image optimization failed", "path", path, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				return nil
			}
			results = append(results, res)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	slices.SortFunc(results, func(a, b Result) int { return strings.Compare(a.Path, b.Path) })
	return results, errors.Join(errs...)
}

// OptimizeFile processes one file, replacing it atomically.
func (o *Optimizer) OptimizeFile(path string) (Result, error) {
	format, err := formatOf(path)
	if err != nil {
		return Result{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}

	src, err := decodeFile(path)
	if err != nil {
		return Result{}, err
	}

	b := src.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), o.maxWidth, o.maxHeight)
	res := Result{
		Path:          path,
		OriginalBytes: info.Size(),
		Width:         w,
		Height:        h,
		Resized:       w != b.Dx() || h != b.Dy(),
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".imageopt-*")
	if err != nil {
		return Result{}, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := o.encode(tmp, format, src, w, h); err != nil {
		tmp.Close()
		return Result{}, err
	}
	if err := tmp.Close(); err != nil {
		return Result{}, err
	}

	outInfo, err := os.Stat(tmpName)
	if err != nil {
		return Result{}, err
	}
	res.OptimizedBytes = outInfo.Size()

	if !res.Resized && res.OptimizedBytes >= res.OriginalBytes {
		o.logger.Info("image already optimal, kept original", "path", path, "bytes", res.OriginalBytes)
		res.OptimizedBytes = res.OriginalBytes
		return res, nil
	}

	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return Result{}, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return Result{}, err
	}
	res.Replaced = true

	o.logger.Info("optimized image",
		"path", path,
		"original_mb", fmt.Sprintf("%.2f", float64(res.OriginalBytes)/(1024*1024)),
		"optimized_mb", fmt.Sprintf("%.2f", float64(res.OptimizedBytes)/(1024*1024)),
		"reduction_pct", fmt.Sprintf("%.2f", res.Reduction()),
	)
	return res, nil
}

func (o *Optimizer) encode(w io.Writer, format string, src image.Image, width, height int) error {
	switch format {
	case "jpeg":
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
		return jpeg.Encode(w, dst, &jpeg.Options{Quality: o.quality})
	case "png":
		dst := image.NewNRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(w, dst)
	default:
		return ErrUnsupportedFormat
	}
}

// Fit scales (w, h) down to fit within (maxW, maxH), keeping the aspect
// ratio. Images that already fit are returned unchanged.
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	if w*maxH > h*maxW {
		return maxW, max(1, h*maxW/w)
	}
	return max(1, w*maxH/h), maxH
}

// Supported reports whether name has a PNG or JPEG extension.
func Supported(name string) bool {
	return slices.Contains(supportedExts, strings.ToLower(filepath.Ext(name)))
}

func formatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "jpeg", nil
	case ".png":
		return "png", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("imageopt: decode: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("imageopt: decode: %w", err)
	}
	return img, nil
}
