// Package derivative renders square preview thumbnails for stored files.
package derivative

import (
	"Cabinet/config"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	// Decoders for image.Decode.
	_ "image/gif"
	_ "image/png"

	"github.com/nfnt/resize"
)

type Category int

const (
	CategoryNone Category = iota
	CategoryImage
	CategoryVideo
)

const (
	defaultSize      = 300
	defaultMaxPixels = 268402689
	jpegQuality      = 85
	frameAtPercent   = 0.10
)

var (
	// ErrUndecodable marks sources that will never produce a preview; retrying is pointless.
	ErrUndecodable = errors.New("source cannot be decoded")
	ErrUnsupported = errors.New("media type has no derivative")
)

// CategoryOf picks the derivative policy for a mime type.
func CategoryOf(mimeType string) Category {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return CategoryImage
	case strings.HasPrefix(mimeType, "video/"):
		return CategoryVideo
	default:
		return CategoryNone
	}
}

// Generator turns an image or a video into a square JPEG thumbnail.
type Generator struct {
	Size        uint
	// MaxPixels caps width*height of a source before it is decoded.
	MaxPixels   int64
	FFmpegPath  string
	FFprobePath string
}

// NewGenerator builds a Generator from the loaded configuration.
func NewGenerator() *Generator {
	g := &Generator{
		Size:        config.AppConfig.ThumbnailSize,
		MaxPixels:   config.AppConfig.ThumbnailMaxPixels,
		FFmpegPath:  config.AppConfig.FFmpegPath,
		FFprobePath: config.AppConfig.FFprobePath,
	}
	if g.Size == 0 {
		g.Size = defaultSize
	}
	if g.MaxPixels <= 0 {
		g.MaxPixels = defaultMaxPixels
	}
	if g.FFmpegPath == "" {
		g.FFmpegPath = "ffmpeg"
	}
	if g.FFprobePath == "" {
		g.FFprobePath = "ffprobe"
	}
	return g
}

// Generate writes the thumbnail of src to dst. dst only appears once complete.
func (g *Generator) Generate(ctx context.Context, src, mimeType, dst string) error {
	var (
		img image.Image
		err error
	)
	switch CategoryOf(mimeType) {
	case CategoryImage:
		img, err = g.decodeImageFile(src)
	case CategoryVideo:
		img, err = g.videoFrame(ctx, src)
	default:
		return ErrUnsupported
	}
	if err != nil {
		return err
	}
	return writeJPEG(g.Thumbnail(img), dst)
}

// Thumbnail center-crops img to a square and scales it to Size x Size.
func (g *Generator) Thumbnail(img image.Image) image.Image {
	size := g.Size
	if size == 0 {
		size = defaultSize
	}
	return resize.Resize(size, size, squareCrop(img), resize.Lanczos3)
}

func (g *Generator) decodeImageFile(src string) (image.Image, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return g.decodeImage(f)
}

// decodeImage reads the header first so a small file claiming a huge raster
// is rejected before any pixel memory is allocated.
func (g *Generator) decodeImage(r io.ReadSeeker) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	limit := g.MaxPixels
	if limit <= 0 {
		limit = defaultMaxPixels
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > limit {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUndecodable, cfg.Width, cfg.Height, limit)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return img, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func squareCrop(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	side := w
	if h < side {
		side = h
	}
	x0 := b.Min.X + (w-side)/2
	y0 := b.Min.Y + (h-side)/2
	rect := image.Rect(x0, y0, x0+side, y0+side)
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	out := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}

// probeDuration asks ffprobe for the container duration in seconds.
func (g *Generator) probeDuration(ctx context.Context, src string) (float64, error) {
	cmd := exec.CommandContext(ctx, g.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		src,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe duration %q", ErrUndecodable, strings.TrimSpace(string(out)))
	}
	return seconds, nil
}

// videoFrame extracts one frame at a tenth of the duration.
func (g *Generator) videoFrame(ctx context.Context, src string) (image.Image, error) {
	duration, err := g.probeDuration(ctx, src)
	if err != nil {
		return nil, err
	}
	at := strconv.FormatFloat(duration*frameAtPercent, 'f', 3, 64)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.FFmpegPath,
		"-v", "error",
		"-ss", at,
		"-i", src,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no frame", ErrUndecodable)
	}
	return g.decodeImage(bytes.NewReader(stdout.Bytes()))
}

func writeJPEG(img image.Image, dst string) error {
	part := dst + ".part"
	f, err := os.Create(part)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		_ = f.Close()
		_ = os.Remove(part)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(part)
		return err
	}
	if err := os.Rename(part, dst); err != nil {
		_ = os.Remove(part)
		return err
	}
	return nil
}
