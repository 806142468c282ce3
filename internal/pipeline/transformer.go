package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/gabriel-vasile/mimetype"
)

const defaultJPEGQuality = 85

// Transformer renders one variant. Output is always JPEG.
type Transformer interface {
	Resize(ctx context.Context, src []byte, policy string, dim domain.Dimension) ([]byte, error)
}

// NewTransformer returns the libvips transformer in govips+cgo builds and the
// pure Go one otherwise.
func NewTransformer(quality int) (Transformer, error) {
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}
	return newTransformer(quality)
}

func checkResizeInput(src []byte, policy string, dim domain.Dimension) error {
	if err := dim.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransform, err)
	}
	switch policy {
	case domain.PolicyCover, domain.PolicyFit:
	default:
		return fmt.Errorf("%w: unsupported policy %q", ErrTransform, policy)
	}
	if len(src) == 0 {
		return fmt.Errorf("%w: empty source image", ErrTransform)
	}
	if mt := mimetype.Detect(src); !strings.HasPrefix(mt.String(), "image/") {
		return fmt.Errorf("%w: unsupported source type %s", ErrTransform, mt.String())
	}
	return nil
}
