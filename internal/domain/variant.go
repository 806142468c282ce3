package domain

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// PolicyCover fills the target box and center-crops to the exact dimension.
	PolicyCover = "cover"
	// PolicyFit scales into the target box and keeps the source aspect ratio.
	PolicyFit = "fit"

	// NamingWxH writes "<w>x<h>.jpg".
	NamingWxH = "wxh"
	// NamingSquare writes "<d>.jpeg" and only accepts square dimensions.
	NamingSquare = "square"
)

var ErrUnknownClassification = errors.New("unknown classification")

type Dimension struct {
	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`
}

func Square(d int) Dimension {
	return Dimension{Width: d, Height: d}
}

func (d Dimension) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

func (d Dimension) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("dimension %s must have positive width and height", d)
	}
	return nil
}

// VariantSpec is one classification entry: which sizes to render, how to
// crop them and how the output files are named.
type VariantSpec struct {
	Classification string      `json:"classification" mapstructure:"name"`
	Policy         string      `json:"policy" mapstructure:"policy"`
	Naming         string      `json:"naming" mapstructure:"naming"`
	Dimensions     []Dimension `json:"dimensions" mapstructure:"sizes"`
}

func (s VariantSpec) Validate() error {
	name := strings.TrimSpace(s.Classification)
	if name == "" {
		return errors.New("classification name is required")
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("classification %q must not contain '/'", name)
	}
	switch s.Policy {
	case PolicyCover, PolicyFit:
	default:
		return fmt.Errorf("classification %s: unsupported policy %q", name, s.Policy)
	}
	switch s.Naming {
	case NamingWxH, NamingSquare:
	default:
		return fmt.Errorf("classification %s: unsupported naming %q", name, s.Naming)
	}
	if len(s.Dimensions) == 0 {
		return fmt.Errorf("classification %s: at least one dimension is required", name)
	}

	seen := make(map[Dimension]struct{}, len(s.Dimensions))
	for i, d := range s.Dimensions {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("classification %s: dimensions[%d]: %w", name, i, err)
		}
		if s.Naming == NamingSquare && d.Width != d.Height {
			return fmt.Errorf("classification %s: dimensions[%d]: square naming requires width == height, got %s", name, i, d)
		}
		if _, dup := seen[d]; dup {
			return fmt.Errorf("classification %s: duplicate dimension %s", name, d)
		}
		seen[d] = struct{}{}
	}
	return nil
}

// FileName is the deterministic output file name for d under this spec.
func (s VariantSpec) FileName(d Dimension) string {
	if s.Naming == NamingSquare {
		return fmt.Sprintf("%d.jpeg", d.Width)
	}
	return fmt.Sprintf("%dx%d.jpg", d.Width, d.Height)
}

// VariantTable maps a classification to its variant spec. It is built once
// and only read afterwards.
type VariantTable struct {
	specs map[string]VariantSpec
}

func NewVariantTable(specs ...VariantSpec) (VariantTable, error) {
	if len(specs) == 0 {
		return VariantTable{}, errors.New("variant table must contain at least one classification")
	}

	t := VariantTable{specs: make(map[string]VariantSpec, len(specs))}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return VariantTable{}, err
		}
		if _, dup := t.specs[spec.Classification]; dup {
			return VariantTable{}, fmt.Errorf("duplicate classification %s", spec.Classification)
		}
		dims := make([]Dimension, len(spec.Dimensions))
		copy(dims, spec.Dimensions)
		spec.Dimensions = dims
		t.specs[spec.Classification] = spec
	}
	return t, nil
}

func (t VariantTable) Lookup(classification string) (VariantSpec, error) {
	spec, ok := t.specs[classification]
	if !ok {
		return VariantSpec{}, fmt.Errorf("%w: %q", ErrUnknownClassification, classification)
	}
	dims := make([]Dimension, len(spec.Dimensions))
	copy(dims, spec.Dimensions)
	spec.Dimensions = dims
	return spec, nil
}

func (t VariantTable) Len() int {
	return len(t.specs)
}

func DefaultVariantSpecs() []VariantSpec {
	return []VariantSpec{
		{
			Classification: "avatars",
			Policy:         PolicyCover,
			Naming:         NamingWxH,
			Dimensions:     squares(24, 48, 64, 96, 128),
		},
		{
			Classification: "banners",
			Policy:         PolicyFit,
			Naming:         NamingWxH,
			Dimensions: []Dimension{
				{Width: 320, Height: 120},
				{Width: 640, Height: 240},
				{Width: 960, Height: 360},
				{Width: 1280, Height: 480},
			},
		},
		{
			Classification: "icons",
			Policy:         PolicyCover,
			Naming:         NamingSquare,
			Dimensions:     squares(16, 24, 32, 48, 64, 72, 96, 128, 256, 320, 480, 512, 640, 960),
		},
		{
			Classification: "content",
			Policy:         PolicyFit,
			Naming:         NamingSquare,
			Dimensions:     squares(120, 240, 320, 480, 640, 960),
		},
	}
}

func DefaultVariantTable() VariantTable {
	t, err := NewVariantTable(DefaultVariantSpecs()...)
	if err != nil {
		panic(fmt.Sprintf("default variant table: %v", err))
	}
	return t
}

func squares(sizes ...int) []Dimension {
	out := make([]Dimension, 0, len(sizes))
	for _, s := range sizes {
		out = append(out, Square(s))
	}
	return out
}
