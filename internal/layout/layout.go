package layout

import (
	"fmt"
	"math"
	"strings"
)

// Ring identifies one of the concentric key rings
type Ring int

const (
	RingInner Ring = iota
	RingMiddle
	RingOuter
	RingSuggestions
)

func (r Ring) String() string {
	switch r {
	case RingInner:
		return "inner"
	case RingMiddle:
		return "middle"
	case RingOuter:
		return "outer"
	case RingSuggestions:
		return "suggestions"
	default:
		return fmt.Sprintf("unknown(%d)", r)
	}
}

const (
	// DeleteGlyph is the key that removes the last character
	DeleteGlyph = "⌫"

	// MaxSuggestions caps the suggestion ring
	MaxSuggestions = 3

	DefaultRadius    = 400.0
	DefaultKeyRadius = 30.0

	InnerGlyphs  = "AEIOU" + DeleteGlyph
	MiddleGlyphs = "BCDFGHJKLMNPQRSTVWXYZ"
	OuterGlyphs  = "1234567890.,?!'-_@#$%&()"
)

// Ring radii as fractions of the keyboard radius
const (
	innerScale      = 0.25
	middleScale     = 0.38
	outerScale      = 0.51
	suggestionScale = 0.51
)

// Key is a single selectable glyph placed on a ring.
// X and Y are relative to the keyboard center with y growing downward.
type Key struct {
	Glyph string
	Ring  Ring
	Angle float64
	X     float64
	Y     float64
}

// Slot is a position on the suggestion ring
type Slot struct {
	Index int
	Angle float64
	X     float64
	Y     float64
}

// PolarToXY converts a radius and angle to screen coordinates
func PolarToXY(radius, angle float64) (float64, float64) {
	return radius * math.Cos(angle), radius * math.Sin(angle)
}

func ringAngle(i, n int, offset float64) float64 {
	return 2*math.Pi*float64(i)/float64(n) - math.Pi/2 + offset
}

// Glyphs splits a ring definition into one glyph per rune
func Glyphs(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// LayoutRing places glyphs evenly around a circle, clockwise from the top.
func LayoutRing(glyphs []string, ring Ring, radius, offset float64) []Key {
	keys := make([]Key, 0, len(glyphs))
	for i, g := range glyphs {
		angle := ringAngle(i, len(glyphs), offset)
		x, y := PolarToXY(radius, angle)
		keys = append(keys, Key{Glyph: g, Ring: ring, Angle: angle, X: x, Y: y})
	}
	return keys
}

// LayoutSuggestions returns slot positions for up to MaxSuggestions words.
// A zero count yields an empty slice and the ring should be hidden.
func LayoutSuggestions(count int, radius float64) []Slot {
	if count > MaxSuggestions {
		count = MaxSuggestions
	}
	if count <= 0 {
		return []Slot{}
	}
	slots := make([]Slot, 0, count)
	for i := 0; i < count; i++ {
		angle := ringAngle(i, count, 0)
		x, y := PolarToXY(radius, angle)
		slots = append(slots, Slot{Index: i, Angle: angle, X: x, Y: y})
	}
	return slots
}

// Board is the full immutable keyboard layout
type Board struct {
	Radius           float64
	KeyRadius        float64
	SuggestionRadius float64
	Keys             []Key

	index map[string]int
}

// Default returns the standard three-ring board at DefaultRadius
func Default() *Board {
	return New(DefaultRadius)
}

// New builds the standard board scaled to radius
func New(radius float64) *Board {
	if radius <= 0 {
		radius = DefaultRadius
	}
	var keys []Key
	keys = append(keys, LayoutRing(Glyphs(InnerGlyphs), RingInner, radius*innerScale, 0)...)
	keys = append(keys, LayoutRing(Glyphs(MiddleGlyphs), RingMiddle, radius*middleScale, 0)...)
	keys = append(keys, LayoutRing(Glyphs(OuterGlyphs), RingOuter, radius*outerScale, 0)...)

	b := &Board{
		Radius:           radius,
		KeyRadius:        DefaultKeyRadius,
		SuggestionRadius: radius * suggestionScale,
		Keys:             keys,
		index:            make(map[string]int, len(keys)),
	}
	for i, k := range keys {
		b.index[strings.ToUpper(k.Glyph)] = i
	}
	return b
}

// Key looks up a key by glyph, ignoring case
func (b *Board) Key(glyph string) (Key, bool) {
	i, ok := b.index[strings.ToUpper(glyph)]
	if !ok {
		return Key{}, false
	}
	return b.Keys[i], true
}

// Contains reports whether glyph is on the board, ignoring case
func (b *Board) Contains(glyph string) bool {
	_, ok := b.index[strings.ToUpper(glyph)]
	return ok
}

// Extent is the distance from the center to the outer edge of the
// farthest key or suggestion
func (b *Board) Extent() float64 {
	extent := b.SuggestionRadius
	for _, k := range b.Keys {
		extent = math.Max(extent, math.Hypot(k.X, k.Y))
	}
	return extent + b.KeyRadius
}

// Ring returns the keys of a single ring in layout order
func (b *Board) Ring(r Ring) []Key {
	var keys []Key
	for _, k := range b.Keys {
		if k.Ring == r {
			keys = append(keys, k)
		}
	}
	return keys
}

// Suggestions lays out the suggestion ring for count words
func (b *Board) Suggestions(count int) []Slot {
	return LayoutSuggestions(count, b.SuggestionRadius)
}

// HitKey returns the nearest key whose center lies within KeyRadius of (x, y)
func (b *Board) HitKey(x, y float64) (Key, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, k := range b.Keys {
		d := math.Hypot(k.X-x, k.Y-y)
		if d <= b.KeyRadius && d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Key{}, false
	}
	return b.Keys[best], true
}

// HitSlot returns the index of the slot within KeyRadius of (x, y)
func (b *Board) HitSlot(slots []Slot, x, y float64) (int, bool) {
	best := -1
	bestDist := math.Inf(1)
	for _, s := range slots {
		d := math.Hypot(s.X-x, s.Y-y)
		if d <= b.KeyRadius && d < bestDist {
			best, bestDist = s.Index, d
		}
	}
	return best, best >= 0
}
