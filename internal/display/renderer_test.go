package display

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"golang.org/x/image/font/basicfont"

	"github.com/pleimann/gazeboard/internal/keyboard"
	"github.com/pleimann/gazeboard/internal/layout"
)

func TestNewRendererFitsBoard(t *testing.T) {
	b := layout.Default()
	r := NewRenderer(b)

	cx, cy := r.Center()
	for _, k := range b.Keys {
		x, y := cx+k.X, cy+k.Y
		if x-b.KeyRadius < 0 || x+b.KeyRadius > float64(r.Width()) {
			t.Errorf("key %s x=%.1f outside width %d", k.Glyph, x, r.Width())
		}
		if y-b.KeyRadius < textHeight || y+b.KeyRadius > float64(r.Height()) {
			t.Errorf("key %s y=%.1f outside board area", k.Glyph, y)
		}
	}
	if r.Height() != r.Width()+textHeight {
		t.Errorf("Height() = %d, want width + text area %d", r.Height(), r.Width()+textHeight)
	}
}

func TestRenderDrawsKeysAndBackground(t *testing.T) {
	b := layout.Default()
	r := NewRenderer(b)
	img := r.Render(keyboard.State{})

	if got := img.RGBAAt(1, r.Height()-1); got != Background {
		t.Errorf("corner pixel = %v, want background %v", got, Background)
	}

	k, _ := b.Key("B")
	cx, cy := r.Center()
	// Sample off-center so the glyph does not cover the pixel
	px, py := int(cx+k.X+b.KeyRadius/2), int(cy+k.Y+b.KeyRadius/2)
	if got := img.RGBAAt(px, py); got != KeyFill {
		t.Errorf("key pixel = %v, want key fill %v", got, KeyFill)
	}

	del, _ := b.Key(layout.DeleteGlyph)
	px, py = int(cx+del.X+b.KeyRadius/2), int(cy+del.Y+b.KeyRadius/2)
	if got := img.RGBAAt(px, py); got != DeleteFill {
		t.Errorf("delete key pixel = %v, want %v", got, DeleteFill)
	}
}

func TestRenderProgressWedge(t *testing.T) {
	b := layout.Default()
	r := NewRenderer(b)
	k, _ := b.Key("A")
	cx, cy := r.Center()
	x, y := cx+k.X, cy+k.Y
	q := b.KeyRadius / 2

	st := keyboard.State{Dwell: keyboard.DwellView{Target: "key", Glyph: "A", Progress: 0.5}}
	img := r.Render(st)

	// Half a turn clockwise from the top covers the right half only
	right := img.RGBAAt(int(x+q), int(y-q))
	left := img.RGBAAt(int(x-q), int(y-q))
	if right != ProgressFill {
		t.Errorf("right half = %v, want progress %v", right, ProgressFill)
	}
	if left != KeyFill {
		t.Errorf("left half = %v, want key fill %v", left, KeyFill)
	}
}

func TestRenderSuggestions(t *testing.T) {
	b := layout.Default()
	r := NewRenderer(b)
	slots := b.Suggestions(1)

	st := keyboard.State{Suggestions: []keyboard.Suggestion{{Index: 0, Word: "the", X: slots[0].X, Y: slots[0].Y}}}
	img := r.Render(st)

	cx, cy := r.Center()
	px, py := int(cx+slots[0].X+b.KeyRadius/2), int(cy+slots[0].Y+b.KeyRadius/2)
	if got := img.RGBAAt(px, py); got != SuggestFill {
		t.Errorf("suggestion pixel = %v, want %v", got, SuggestFill)
	}
}

func TestEncodePNG(t *testing.T) {
	r := NewRenderer(layout.New(200))

	var buf bytes.Buffer
	if err := r.EncodePNG(&buf, keyboard.State{Text: "HELLO"}); err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if img.Bounds().Dx() != r.Width() || img.Bounds().Dy() != r.Height() {
		t.Errorf("decoded size = %v, want %dx%d", img.Bounds(), r.Width(), r.Height())
	}
	if c := color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA); c != TextAreaColor {
		t.Errorf("text area pixel = %v, want %v", c, TextAreaColor)
	}
}

func TestLastLine(t *testing.T) {
	face := basicfont.Face7x13
	tests := []struct {
		name     string
		text     string
		maxWidth int
		want     string
	}{
		{"fits", "HI", 100, "HI"},
		{"empty", "", 100, ""},
		// 7px per glyph plus the cursor
		{"keeps tail", "ABCDEFGH", 35, "EFGH"},
		{"too narrow", "ABC", 3, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lastLine(tt.text, tt.maxWidth, face); got != tt.want {
				t.Errorf("lastLine(%q, %d) = %q, want %q", tt.text, tt.maxWidth, got, tt.want)
			}
		})
	}
}
