//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/variantflow/internal/domain"
)

type govipsTransformer struct {
	quality int
}

func (t govipsTransformer) Resize(ctx context.Context, src []byte, policy string, dim domain.Dimension) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := checkResizeInput(src, policy, dim); err != nil {
		return nil, err
	}

	img, err := vips.NewImageFromBuffer(src)
	if err != nil {
		return nil, fmt.Errorf("%w: decode source image: %v", ErrTransform, err)
	}
	defer img.Close()

	if err := img.AutoRotate(); err != nil {
		return nil, fmt.Errorf("%w: auto-rotate: %v", ErrTransform, err)
	}

	// Without a crop, thumbnail shrinks into the box and keeps the aspect ratio.
	crop := vips.InterestingNone
	if policy == domain.PolicyCover {
		crop = vips.InterestingCentre
	}
	if err := img.Thumbnail(dim.Width, dim.Height, crop); err != nil {
		return nil, fmt.Errorf("%w: thumbnail %s: %v", ErrTransform, dim, err)
	}

	params := vips.NewJpegExportParams()
	params.Quality = t.quality
	params.StripMetadata = true
	data, _, err := img.ExportJpeg(params)
	if err != nil {
		return nil, fmt.Errorf("%w: encode jpeg: %v", ErrTransform, err)
	}
	return data, nil
}
