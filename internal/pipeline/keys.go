package pipeline

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dunamismax/variantflow/internal/domain"
)

var acceptedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"jpe":  {},
	"gif":  {},
	"png":  {},
}

// KeyLayout describes where uploads land and where variants are written.
// Source keys look like <UploadMarker>/<classification>/<prefix...>/<file>.
type KeyLayout struct {
	UploadMarker      string
	OutputPrefix      string
	DestinationBucket string
}

func (l KeyLayout) Validate() error {
	marker := strings.TrimSpace(l.UploadMarker)
	if marker == "" {
		return errors.New("upload marker is required")
	}
	if strings.Contains(marker, "/") {
		return fmt.Errorf("upload marker %q must be a single key segment", marker)
	}
	// Writing variants under the upload marker in the same bucket would
	// trigger another invocation for every variant.
	if l.DestinationBucket == "" {
		first, _, _ := strings.Cut(strings.Trim(l.OutputPrefix, "/"), "/")
		if first == marker {
			return fmt.Errorf("output prefix %q must not start with the upload marker when writing to the source bucket", l.OutputPrefix)
		}
	}
	return nil
}

type SourceKey struct {
	Classification string
	// Prefix holds the segments between the classification and the file
	// name, joined with "/". It is preserved in output keys.
	Prefix   string
	FileName string
}

// Parse splits key. A non-empty reason means the key is not eligible and the
// invocation should be skipped.
func (l KeyLayout) Parse(key string) (SourceKey, string) {
	segments := strings.Split(key, "/")
	if len(segments) < 3 {
		return SourceKey{}, fmt.Sprintf("key %q has fewer than 3 segments", key)
	}
	for _, s := range segments {
		if s == "" {
			return SourceKey{}, fmt.Sprintf("key %q has an empty segment", key)
		}
	}
	if segments[0] != l.UploadMarker {
		return SourceKey{}, fmt.Sprintf("key %q is not under upload marker %q", key, l.UploadMarker)
	}

	fileName := segments[len(segments)-1]
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	if _, ok := acceptedExtensions[ext]; !ok {
		return SourceKey{}, fmt.Sprintf("extension %q of %q is not an accepted image type", ext, fileName)
	}

	return SourceKey{
		Classification: segments[1],
		Prefix:         strings.Join(segments[2:len(segments)-1], "/"),
		FileName:       fileName,
	}, ""
}

func (l KeyLayout) OutputBucket(sourceBucket string) string {
	if l.DestinationBucket != "" {
		return l.DestinationBucket
	}
	return sourceBucket
}

func (l KeyLayout) OutputKey(src SourceKey, spec domain.VariantSpec, d domain.Dimension) string {
	return path.Join(strings.Trim(l.OutputPrefix, "/"), src.Prefix, spec.FileName(d))
}
