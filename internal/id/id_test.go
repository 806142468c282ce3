package id

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsUUID(t *testing.T) {
	_, err := uuid.Parse(New())
	require.NoError(t, err)
	assert.NotEqual(t, New(), New())
}

func TestFromEventIsStable(t *testing.T) {
	a := FromEvent("src", "uploaded/avatars/u1/a.png", "0055AED6DCD90281E5")
	b := FromEvent("src", "uploaded/avatars/u1/a.png", "0055AED6DCD90281E5")
	c := FromEvent("src", "uploaded/avatars/u1/a.png", "0055AED6DCD90281E6")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
