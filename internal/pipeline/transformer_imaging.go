//go:build !govips || !cgo

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/variantflow/internal/domain"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

type imagingTransformer struct {
	quality int
}

func (t imagingTransformer) Resize(ctx context.Context, src []byte, policy string, dim domain.Dimension) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := checkResizeInput(src, policy, dim); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode source image: %v", ErrTransform, err)
	}

	var out *image.NRGBA
	switch policy {
	case domain.PolicyCover:
		out = imaging.Fill(img, dim.Width, dim.Height, imaging.Center, imaging.Lanczos)
	default:
		out = imaging.Fit(img, dim.Width, dim.Height, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(t.quality)); err != nil {
		return nil, fmt.Errorf("%w: encode jpeg: %v", ErrTransform, err)
	}
	return buf.Bytes(), nil
}
