// Package compose overlays a reference image on top of a generated scene
// background and uploads the flattened PNG.
package compose

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	// Decoders registered for image.Decode.
	_ "image/gif"
	_ "image/jpeg"

	"github.com/h2non/filetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// maxImageBytes caps a single downloaded image.
const maxImageBytes = 25 << 20

// maxImagePixels caps declared dimensions before a full decode.
const maxImagePixels = 40_000_000

var ErrMissingURL = errors.New("missing image URLs")

// Uploader stores a flattened PNG and returns a URL the backend can fetch.
type Uploader interface {
	UploadMergedImage(ctx context.Context, png []byte) (string, error)
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, png []byte) (string, error)

func (f UploaderFunc) UploadMergedImage(ctx context.Context, png []byte) (string, error) {
	return f(ctx, png)
}

type Compositor struct {
	uploader   Uploader
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Compositor)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Compositor) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Compositor) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(uploader Uploader, opts ...Option) *Compositor {
	c := &Compositor{
		uploader:   uploader,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OverlayAndUpload fetches both images, centers the foreground on the
// background and uploads the result. Nothing is uploaded unless every step
// before it succeeded.
func (c *Compositor) OverlayAndUpload(ctx context.Context, backgroundURL, foregroundURL string) (string, error) {
	if strings.TrimSpace(backgroundURL) == "" || strings.TrimSpace(foregroundURL) == "" {
		return "", ErrMissingURL
	}

	var bg, fg image.Image
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		img, err := c.load(gctx, backgroundURL)
		bg = img
		return err
	})
	g.Go(func() error {
		img, err := c.load(gctx, foregroundURL)
		fg = img
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	merged := Overlay(bg, fg)

	var buf bytes.Buffer
	if err := png.Encode(&buf, merged); err != nil {
		return "", fmt.Errorf("failed to encode merged image: %w", err)
	}

	url, err := c.uploader.UploadMergedImage(ctx, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("failed to upload merged image: %w", err)
	}
	if url == "" {
		return "", errors.New("failed to upload merged image: no URL returned")
	}

	c.logger.Debug("merged image uploaded",
		"width", merged.Bounds().Dx(),
		"height", merged.Bounds().Dy(),
		"bytes", buf.Len(),
	)
	return url, nil
}

// Overlay draws fg centered over bg on a canvas the size of bg. fg is scaled
// down, keeping its aspect ratio, only when it does not fit.
func Overlay(bg, fg image.Image) *image.RGBA {
	bb := bg.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bb.Dx(), bb.Dy()))
	draw.Draw(canvas, canvas.Bounds(), bg, bb.Min, draw.Src)

	w, h := FitWithin(fg.Bounds().Dx(), fg.Bounds().Dy(), bb.Dx(), bb.Dy())
	x := (bb.Dx() - w) / 2
	y := (bb.Dy() - h) / 2
	target := image.Rect(x, y, x+w, y+h)

	if w == fg.Bounds().Dx() && h == fg.Bounds().Dy() {
		draw.Draw(canvas, target, fg, fg.Bounds().Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(canvas, target, fg, fg.Bounds(), draw.Over, nil)
	}
	return canvas
}

// FitWithin returns w×h scaled down to fit inside maxW×maxH, or unchanged
// when it already fits.
func FitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	scale := float64(maxW) / float64(w)
	if s := float64(maxH) / float64(h); s < scale {
		scale = s
	}
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

func (c *Compositor) load(ctx context.Context, url string) (image.Image, error) {
	data, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if !filetype.IsImage(data) {
		return nil, fmt.Errorf("failed to load image: %s is not an image", shortURL(url))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", shortURL(url), err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		return nil, fmt.Errorf("failed to load image %s: %dx%d exceeds %d pixels", shortURL(url), cfg.Width, cfg.Height, maxImagePixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", shortURL(url), err)
	}
	return img, nil
}

func (c *Compositor) fetch(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "data:") {
		return decodeDataURL(url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", shortURL(url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to load image %s: status %d", shortURL(url), resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", shortURL(url), err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("failed to load image %s: larger than %d bytes", shortURL(url), maxImageBytes)
	}
	return data, nil
}

func decodeDataURL(url string) ([]byte, error) {
	comma := strings.IndexByte(url, ',')
	if comma < 0 || !strings.HasSuffix(url[:comma], ";base64") {
		return nil, errors.New("failed to load image: unsupported data URL")
	}
	data, err := base64.StdEncoding.DecodeString(url[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode data URL: %w", err)
	}
	return data, nil
}

func shortURL(url string) string {
	if len(url) > 80 {
		return url[:77] + "..."
	}
	return url
}
