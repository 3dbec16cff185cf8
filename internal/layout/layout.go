// Package layout wraps caption text into lines and works out which lines
// fall inside the scrolling viewport.
package layout

// Measure returns the advance width of a rune in pixels.
type Measure func(r rune) int

// Wrap splits text greedily: runes accumulate on the current line while the
// running width stays within maxWidth, and the rune that overflows starts
// the next line. Lines may break mid-word. Empty text yields no lines.
func Wrap(text string, measure Measure, maxWidth int) []string {
	var lines []string
	var current []rune
	width := 0
	for _, r := range text {
		w := measure(r)
		if width+w <= maxWidth || len(current) == 0 {
			current = append(current, r)
			width += w
			continue
		}
		lines = append(lines, string(current))
		current = []rune{r}
		width = w
	}
	if len(current) > 0 {
		lines = append(lines, string(current))
	}
	return lines
}

// VisibleWindow returns the index of the first visible line and the visible
// lines. Line i is visible when (i+1)*lineHeight >= scrollOffset and
// i*lineHeight-scrollOffset <= viewportHeight, which keeps one partially
// scrolled line above and below the viewport. first is len(lines) when
// nothing is visible.
func VisibleWindow(lines []string, lineHeight, scrollOffset, viewportHeight int) (first int, visible []string) {
	first = len(lines)
	for i, line := range lines {
		if (i+1)*lineHeight >= scrollOffset && i*lineHeight-scrollOffset <= viewportHeight {
			if first == len(lines) {
				first = i
			}
			visible = append(visible, line)
		}
	}
	return first, visible
}

// ScrollLimit is the offset at which scrolling stops for lineCount lines.
// It is negative when the text fits in the viewport.
func ScrollLimit(lineCount, lineHeight, viewportHeight int) int {
	return (lineCount+1)*lineHeight - viewportHeight
}

// NextOffset advances offset by speed while it is below limit. The result
// never passes limit, so the offset holds once the bottom is reached.
func NextOffset(offset, speed, limit int) int {
	if speed <= 0 || offset >= limit {
		return offset
	}
	next := offset + speed
	if next > limit {
		next = limit
	}
	return next
}
