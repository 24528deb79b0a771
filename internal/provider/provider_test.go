package provider

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceStream(t *testing.T) {
	s := SliceStream("a", "b")
	c, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", c.Delta)

	require.NoError(t, s.Close())
	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, s.Close())
}

func TestDrain(t *testing.T) {
	text, err := Drain(SliceStream("Hel", "lo", ""))
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)

	text, err = Drain(SliceStream())
	require.NoError(t, err)
	assert.Empty(t, text)
}
