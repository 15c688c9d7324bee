package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// grid maps board coordinates onto terminal cells. A cell is about twice
// as tall as it is wide, so the horizontal scale is doubled.
type grid struct {
	top   int
	cols  int
	rows  int
	scale float64 // terminal rows per board unit
}

func newGrid(top, cols, rows int, extent float64) grid {
	g := grid{top: top, cols: max(cols, 0), rows: max(rows, 0)}
	if g.cols < 2 || g.rows < 2 || extent <= 0 {
		return g
	}
	g.scale = math.Min(float64(g.rows-1)/(2*extent), float64(g.cols-1)/(4*extent))
	return g
}

func (g grid) center() (float64, float64) {
	return float64(g.cols-1) / 2, float64(g.rows-1) / 2
}

// cell returns the board-relative cell nearest to (x, y)
func (g grid) cell(x, y float64) (col, row int) {
	cx, cy := g.center()
	return int(math.Round(cx + x*2*g.scale)), int(math.Round(cy + y*g.scale))
}

// point converts a terminal position to board coordinates. ok is false
// outside the board area.
func (g grid) point(col, row int) (x, y float64, ok bool) {
	row -= g.top
	if g.scale == 0 || col < 0 || col >= g.cols || row < 0 || row >= g.rows {
		return 0, 0, false
	}
	cx, cy := g.center()
	return (float64(col) - cx) / (2 * g.scale), (float64(row) - cy) / g.scale, true
}

type cell struct {
	s     string
	style lipgloss.Style
	set   bool
	cont  bool
}

// canvas is a fixed-size grid of styled cells
type canvas struct {
	cols  int
	cells [][]cell
}

func newCanvas(cols, rows int) *canvas {
	c := &canvas{cols: cols, cells: make([][]cell, rows)}
	for i := range c.cells {
		c.cells[i] = make([]cell, cols)
	}
	return c
}

// put writes text starting at col. Wide runes take two cells.
func (c *canvas) put(col, row int, text string, style lipgloss.Style) {
	if row < 0 || row >= len(c.cells) {
		return
	}
	line := c.cells[row]
	for _, r := range text {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if col >= 0 && col+w <= c.cols {
			line[col] = cell{s: string(r), style: style, set: true}
			if w == 2 {
				line[col+1] = cell{cont: true}
			}
		}
		col += w
	}
}

// putCentered writes text centered on col
func (c *canvas) putCentered(col, row int, text string, style lipgloss.Style) {
	c.put(col-runewidth.StringWidth(text)/2, row, text, style)
}

func (c *canvas) String() string {
	lines := make([]string, len(c.cells))
	for i, line := range c.cells {
		var b strings.Builder
		for _, cl := range line {
			switch {
			case cl.cont:
			case !cl.set:
				b.WriteByte(' ')
			default:
				b.WriteString(cl.style.Render(cl.s))
			}
		}
		lines[i] = b.String()
	}
	return strings.Join(lines, "\n")
}
