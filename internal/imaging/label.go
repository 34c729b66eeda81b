package imaging

import (
	"image"
	"image/color"
)

// digitGlyphs is a 3x5 pixel font covering the characters of a label.
var digitGlyphs = map[rune][]string{
	'0': {"111", "101", "101", "101", "111"},
	'1': {"010", "110", "010", "010", "111"},
	'2': {"111", "001", "111", "100", "111"},
	'3': {"111", "001", "111", "001", "111"},
	'4': {"101", "101", "111", "001", "001"},
	'5': {"111", "100", "111", "001", "111"},
	'6': {"111", "100", "111", "101", "111"},
	'7': {"111", "001", "001", "001", "001"},
	'8': {"111", "101", "111", "101", "111"},
	'9': {"111", "101", "111", "001", "111"},
	'-': {"000", "000", "111", "000", "000"},
}

const (
	glyphAdvance = 4
	glyphHeight  = 5
)

// drawLabel renders text at (x, y) on a filled background box. Characters
// outside the font leave a blank cell.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	bounds := img.Bounds()
	runes := []rune(text)
	width := len(runes) * glyphAdvance

	set := func(px, py int, c color.RGBA) {
		if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
			img.SetRGBA(px, py, c)
		}
	}

	for dy := -1; dy <= glyphHeight; dy++ {
		for dx := -1; dx < width; dx++ {
			set(x+dx, y+dy, bg)
		}
	}

	for i, ch := range runes {
		glyph, ok := digitGlyphs[ch]
		if !ok {
			continue
		}
		cx := x + i*glyphAdvance
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel == '1' {
					set(cx+col, y+row, fg)
				}
			}
		}
	}
}
