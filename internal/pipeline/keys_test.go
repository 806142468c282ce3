package pipeline

import (
	"testing"

	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLayoutParse(t *testing.T) {
	layout := KeyLayout{UploadMarker: "uploaded", OutputPrefix: "generated"}

	tests := []struct {
		name string
		key  string
		want SourceKey
		skip bool
	}{
		{name: "avatar", key: "uploaded/avatars/u1/me.png", want: SourceKey{Classification: "avatars", Prefix: "u1", FileName: "me.png"}},
		{name: "nested prefix", key: "uploaded/banners/org/team/b.JPG", want: SourceKey{Classification: "banners", Prefix: "org/team", FileName: "b.JPG"}},
		{name: "no prefix", key: "uploaded/icons/app.jpe", want: SourceKey{Classification: "icons", FileName: "app.jpe"}},
		{name: "bmp rejected", key: "uploaded/avatars/u1/me.bmp", skip: true},
		{name: "no extension", key: "uploaded/avatars/u1/me", skip: true},
		{name: "wrong marker", key: "other/avatars/u1/me.png", skip: true},
		{name: "too short", key: "uploaded/me.png", skip: true},
		{name: "empty segment", key: "uploaded//u1/me.png", skip: true},
		{name: "generated output", key: "generated/u1/24x24.jpg", skip: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := layout.Parse(tt.key)
			if tt.skip {
				assert.NotEmpty(t, reason)
				return
			}
			require.Empty(t, reason)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyLayoutOutput(t *testing.T) {
	layout := KeyLayout{UploadMarker: "uploaded", OutputPrefix: "/generated/"}
	src := SourceKey{Classification: "icons", Prefix: "org/app", FileName: "logo.png"}

	icons := domain.VariantSpec{Naming: domain.NamingSquare}
	assert.Equal(t, "generated/org/app/64.jpeg", layout.OutputKey(src, icons, domain.Square(64)))

	banners := domain.VariantSpec{Naming: domain.NamingWxH}
	assert.Equal(t, "generated/org/app/320x120.jpg", layout.OutputKey(src, banners, domain.Dimension{Width: 320, Height: 120}))

	assert.Equal(t, "src", layout.OutputBucket("src"))
	layout.DestinationBucket = "thumbs"
	assert.Equal(t, "thumbs", layout.OutputBucket("src"))
}

func TestKeyLayoutValidate(t *testing.T) {
	assert.NoError(t, KeyLayout{UploadMarker: "uploaded", OutputPrefix: "generated"}.Validate())
	assert.Error(t, KeyLayout{}.Validate())
	assert.Error(t, KeyLayout{UploadMarker: "a/b"}.Validate())
	assert.Error(t, KeyLayout{UploadMarker: "uploaded", OutputPrefix: "uploaded/thumbs"}.Validate())
	assert.NoError(t, KeyLayout{UploadMarker: "uploaded", OutputPrefix: "uploaded/thumbs", DestinationBucket: "other"}.Validate())
}
