package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry[func() int]()
	require.NoError(t, reg.Register("two", func() int { return 2 }))
	require.NoError(t, reg.Register("one", func() int { return 1 }))

	assert.Error(t, reg.Register("one", func() int { return 3 }))
	assert.Error(t, reg.Register("", func() int { return 0 }))

	f, ok := reg.Get("one")
	require.True(t, ok)
	assert.Equal(t, 1, f())

	_, ok = reg.Get("three")
	assert.False(t, ok)
	assert.Equal(t, []string{"one", "two"}, reg.Names())
}
