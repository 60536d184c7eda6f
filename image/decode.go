package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	goimage "image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/Carbon-X-DAO/TeeCustomizer/composite"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/semaphore"
)

var ErrTooLarge = errors.New("image exceeds pixel budget")

// DecodeFunc turns an uploaded source into pixels.
type DecodeFunc func(ctx context.Context, src *composite.Source) (goimage.Image, error)

// Decoder bounds how many images decode at once across every session and
// refuses images whose header announces more than MaxPixels pixels.
type Decoder struct {
	sem       *semaphore.Weighted
	maxPixels int
}

func NewDecoder(concurrency int64, maxPixels int) *Decoder {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Decoder{
		sem:       semaphore.NewWeighted(concurrency),
		maxPixels: maxPixels,
	}
}

func (d *Decoder) Decode(ctx context.Context, src *composite.Source) (goimage.Image, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for decode slot: %w", err)
	}
	defer d.sem.Release(1)

	cfg, format, err := goimage.DecodeConfig(bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("read header of image %d: %w", src.ID, err)
	}

	if d.maxPixels > 0 && cfg.Width*cfg.Height > d.maxPixels {
		return nil, fmt.Errorf("image %d is %dx%d: %w", src.ID, cfg.Width, cfg.Height, ErrTooLarge)
	}

	img, _, err := goimage.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("decode %s image %d: %w", format, src.ID, err)
	}

	return img, nil
}
