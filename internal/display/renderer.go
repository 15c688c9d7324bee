// Package display draws the circular keyboard to an image.
package display

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/pleimann/gazeboard/internal/keyboard"
	"github.com/pleimann/gazeboard/internal/layout"
)

// Palette
var (
	Background    = color.RGBA{0x12, 0x12, 0x1a, 0xff}
	KeyFill       = color.RGBA{0x2a, 0x2a, 0x3a, 0xff}
	DeleteFill    = color.RGBA{0x5a, 0x24, 0x2a, 0xff}
	SuggestFill   = color.RGBA{0x1f, 0x4a, 0x6e, 0xff}
	ProgressFill  = color.RGBA{0x4c, 0xaf, 0x50, 0xff}
	TextColor     = color.RGBA{0xee, 0xee, 0xee, 0xff}
	TextAreaColor = color.RGBA{0x1c, 0x1c, 0x28, 0xff}
)

const (
	margin     = 16
	textHeight = 28
	segments   = 48
)

// Renderer renders a keyboard state onto an RGBA image
type Renderer struct {
	board  *layout.Board
	face   font.Face
	width  int
	height int
	cx     float64
	cy     float64
}

// NewRenderer creates a renderer sized to fit board
func NewRenderer(board *layout.Board) *Renderer {
	side := int(math.Ceil(2*board.Extent())) + 2*margin

	return &Renderer{
		board:  board,
		face:   basicfont.Face7x13,
		width:  side,
		height: side + textHeight,
		cx:     float64(side) / 2,
		cy:     float64(side)/2 + textHeight,
	}
}

// Width returns the image width
func (r *Renderer) Width() int {
	return r.width
}

// Height returns the image height
func (r *Renderer) Height() int {
	return r.height
}

// Center returns the keyboard center in image coordinates
func (r *Renderer) Center() (float64, float64) {
	return r.cx, r.cy
}

// Render draws st. Keys and suggestions come from the board and the state;
// the element being dwelt on gets a progress wedge.
func (r *Renderer) Render(st keyboard.State) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)

	draw.Draw(img, image.Rect(0, 0, r.width, textHeight), image.NewUniform(TextAreaColor), image.Point{}, draw.Src)
	r.drawText(img, margin, textHeight-9, lastLine(st.Text, r.width-2*margin, r.face)+"_")

	kr := r.board.KeyRadius
	for _, k := range r.board.Keys {
		fill := KeyFill
		if k.Glyph == layout.DeleteGlyph {
			fill = DeleteFill
		}
		x, y := r.cx+k.X, r.cy+k.Y
		r.fillCircle(img, x, y, kr, fill)
		if st.Dwell.Target == "key" && strings.EqualFold(st.Dwell.Glyph, k.Glyph) {
			r.fillWedge(img, x, y, kr, st.Dwell.Progress, ProgressFill)
		}
		r.drawCentered(img, x, y, k.Glyph)
	}

	// Suggestions overlap the outer ring and are drawn on top of it
	for _, s := range st.Suggestions {
		x, y := r.cx+s.X, r.cy+s.Y
		r.fillCircle(img, x, y, kr, SuggestFill)
		if st.Dwell.Target == "suggestion" && st.Dwell.Slot == s.Index {
			r.fillWedge(img, x, y, kr, st.Dwell.Progress, ProgressFill)
		}
		r.drawCentered(img, x, y, s.Word)
	}

	return img
}

// EncodePNG renders st and writes it to w as a PNG
func (r *Renderer) EncodePNG(w io.Writer, st keyboard.State) error {
	return png.Encode(w, r.Render(st))
}

func (r *Renderer) fillCircle(dst draw.Image, x, y, radius float64, c color.Color) {
	r.fillWedge(dst, x, y, radius, 1, c)
}

// fillWedge fills a pie slice clockwise from the top covering fraction of
// the circle
func (r *Renderer) fillWedge(dst draw.Image, x, y, radius, fraction float64, c color.Color) {
	if fraction <= 0 {
		return
	}
	fraction = math.Min(fraction, 1)

	z := vector.NewRasterizer(r.width, r.height)
	start := -math.Pi / 2
	sweep := 2 * math.Pi * fraction
	steps := int(math.Ceil(segments * fraction))

	if fraction < 1 {
		z.MoveTo(float32(x), float32(y))
		z.LineTo(float32(x+radius*math.Cos(start)), float32(y+radius*math.Sin(start)))
	} else {
		z.MoveTo(float32(x+radius*math.Cos(start)), float32(y+radius*math.Sin(start)))
	}
	for i := 1; i <= steps; i++ {
		a := start + sweep*float64(i)/float64(steps)
		z.LineTo(float32(x+radius*math.Cos(a)), float32(y+radius*math.Sin(a)))
	}
	z.ClosePath()
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

func (r *Renderer) drawText(dst draw.Image, x, y int, text string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(TextColor),
		Face: r.face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func (r *Renderer) drawCentered(dst draw.Image, x, y float64, text string) {
	advance := font.MeasureString(r.face, text).Ceil()
	ascent := r.face.Metrics().Ascent.Ceil()
	r.drawText(dst, int(x)-advance/2, int(y)+ascent/2, text)
}

// lastLine returns the longest suffix of text that fits in maxWidth
func lastLine(text string, maxWidth int, face font.Face) string {
	runes := []rune(text)
	for i := range runes {
		if font.MeasureString(face, string(runes[i:])+"_").Ceil() <= maxWidth {
			return string(runes[i:])
		}
	}
	return ""
}
