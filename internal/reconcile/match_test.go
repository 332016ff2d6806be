package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitName(t *testing.T) {
	tests := []struct {
		name string
		base string
		ext  string
	}{
		{"cat.jpg", "cat", "jpg"},
		{"cat.final.JPG", "cat.final", "JPG"},
		{"photos/cat.jpg", "cat", "jpg"},
		{`C:\photos\cat.jpg`, "cat", "jpg"},
		{"noext", "noext", ""},
		{"trailingdot.", "trailingdot", ""},
		{".hidden", "", "hidden"},
	}

	for _, tt := range tests {
		base, ext := splitName(tt.name)
		assert.Equal(t, tt.base, base, tt.name)
		assert.Equal(t, tt.ext, ext, tt.name)
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		storageName string
		want        bool
	}{
		{"photo.jpg", true},
		{"photo-1.jpg", true},
		{"photo-23.jpg", true},
		{"photo.JPG", true},
		{"photo2.jpg", false},
		{"photo-abc.jpg", false},
		{"photo-1a.jpg", false},
		{"photo-.jpg", false},
		{"photo.png", false},
		{"otherphoto.jpg", false},
	}

	itemBase, itemExt := splitName("photo.jpg")
	for _, tt := range tests {
		base, ext := splitName(tt.storageName)
		assert.Equal(t, tt.want, matches(base, ext, itemBase, itemExt), tt.storageName)
	}
}

func TestMatchesCaseSensitiveBase(t *testing.T) {
	// Extension compares case-insensitively, the base does not.
	assert.True(t, matches("photo", "JPG", "photo", "jpg"))
	assert.False(t, matches("PHOTO", "jpg", "photo", "jpg"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "cat.jpg", SanitizeFilename("  cat.jpg "))
	assert.Equal(t, "cat.jpg", SanitizeFilename("../secret/cat.jpg"))
	assert.Equal(t, "my-cat.jpg", SanitizeFilename("my cat.jpg"))
	assert.Equal(t, "cat.jpg", SanitizeFilename(`cat*?.jpg`))
	// Unsafe characters vanish but the whitespace around them still becomes a
	// single dash.
	assert.Equal(t, "a-b.jpg", SanitizeFilename("a + b.jpg"))
}
