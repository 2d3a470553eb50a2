package chart

import (
	"bytes"
	"image/gif"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNG(t *testing.T) {
	s := New(false, 0)
	out, err := s.Chart([]float64{3, 5, 4, 8, 7})
	require.NoError(t, err)
	assert.Equal(t, "image/png", out.ContentType)
	assert.Equal(t, "png", out.Ext)

	img, err := png.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, img.Bounds().Dx())
	assert.Equal(t, DefaultHeight, img.Bounds().Dy())
}

func TestPNGIsDeterministic(t *testing.T) {
	s := New(false, 0)
	a, err := s.PNG([]float64{1, 2, 3})
	require.NoError(t, err)
	b, err := s.PNG([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGIFFrames(t *testing.T) {
	s := New(true, 120*time.Millisecond)
	out, err := s.Chart([]float64{1, 1, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, "image/gif", out.ContentType)

	anim, err := gif.DecodeAll(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Len(t, anim.Image, 3)
	assert.Equal(t, []int{12, 12, 36}, anim.Delay)
}

func TestTooFewPoints(t *testing.T) {
	_, err := New(false, 0).Chart([]float64{1, 2})
	require.ErrorIs(t, err, ErrTooFewPoints)
	_, err = New(true, time.Second).Chart(nil)
	require.ErrorIs(t, err, ErrTooFewPoints)
}
