// Package chart draws small trend images for report summaries.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"math"
	"time"

	"github.com/brensch/sitereports/internal/render"
)

// ErrTooFewPoints is returned for series shorter than render.MinTrendPoints.
var ErrTooFewPoints = errors.New("not enough points for a trend")

const (
	DefaultWidth  = 240
	DefaultHeight = 60
	padding       = 4
)

var palette = color.Palette{
	color.White,
	color.RGBA{R: 0xdd, G: 0xdd, B: 0xdd, A: 0xff}, // baseline
	color.RGBA{R: 0x1f, G: 0x6f, B: 0xb4, A: 0xff}, // line
	color.RGBA{R: 0xe6, G: 0x7e, B: 0x22, A: 0xff}, // last point
}

const (
	idxBaseline = 1
	idxLine     = 2
	idxMarker   = 3
)

// Sparkline renders a series as a PNG, or as an animated GIF revealing the
// series point by point.
type Sparkline struct {
	Width      int
	Height     int
	Animated   bool
	FrameDelay time.Duration
}

// New returns a sparkline of the default size.
func New(animated bool, frameDelay time.Duration) *Sparkline {
	return &Sparkline{Width: DefaultWidth, Height: DefaultHeight, Animated: animated, FrameDelay: frameDelay}
}

// Chart implements render.Charter.
func (s *Sparkline) Chart(points []float64) (render.Chart, error) {
	if s.Animated {
		data, err := s.GIF(points)
		if err != nil {
			return render.Chart{}, err
		}
		return render.Chart{Data: data, ContentType: "image/gif", Ext: "gif"}, nil
	}
	data, err := s.PNG(points)
	if err != nil {
		return render.Chart{}, err
	}
	return render.Chart{Data: data, ContentType: "image/png", Ext: "png"}, nil
}

// PNG draws the full series.
func (s *Sparkline) PNG(points []float64) ([]byte, error) {
	if err := check(points); err != nil {
		return nil, err
	}
	img := s.frame(points, len(points))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// GIF draws one frame per revealed point, starting from two points. The last
// frame holds three times longer.
func (s *Sparkline) GIF(points []float64) ([]byte, error) {
	if err := check(points); err != nil {
		return nil, err
	}
	delay := int(s.FrameDelay / (10 * time.Millisecond))
	if delay < 1 {
		delay = 1
	}
	anim := &gif.GIF{}
	for upto := 2; upto <= len(points); upto++ {
		anim.Image = append(anim.Image, s.frame(points, upto))
		anim.Delay = append(anim.Delay, delay)
	}
	anim.Delay[len(anim.Delay)-1] = delay * 3

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("encode gif: %w", err)
	}
	return buf.Bytes(), nil
}

func check(points []float64) error {
	if len(points) < render.MinTrendPoints {
		return fmt.Errorf("%w: got %d", ErrTooFewPoints, len(points))
	}
	for _, p := range points {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return errors.New("series contains non-finite values")
		}
	}
	return nil
}

// frame draws the first upto points scaled against the whole series so every
// animation frame shares the same axes.
func (s *Sparkline) frame(points []float64, upto int) *image.Paletted {
	w, h := s.Width, s.Height
	img := image.NewPaletted(image.Rect(0, 0, w, h), palette)

	lo, hi := points[0], points[0]
	for _, p := range points {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	x := func(i int) int {
		return padding + i*(w-2*padding-1)/(len(points)-1)
	}
	y := func(v float64) int {
		if hi == lo {
			return h / 2
		}
		return h - padding - 1 - int(math.Round((v-lo)/(hi-lo)*float64(h-2*padding-1)))
	}

	for px := padding; px < w-padding; px++ {
		img.SetColorIndex(px, h-padding, idxBaseline)
	}
	for i := 1; i < upto; i++ {
		line(img, x(i-1), y(points[i-1]), x(i), y(points[i]), idxLine)
	}
	last := upto - 1
	for dx := -2; dx <= 2; dx++ {
		for dy := -2; dy <= 2; dy++ {
			img.SetColorIndex(x(last)+dx, y(points[last])+dy, idxMarker)
		}
	}
	return img
}

// line draws a two pixel thick Bresenham segment.
func line(img *image.Paletted, x0, y0, x1, y1 int, idx uint8) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetColorIndex(x0, y0, idx)
		img.SetColorIndex(x0, y0+1, idx)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
