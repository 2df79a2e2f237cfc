package console

import "strings"

// Bar draws value as a horizontal bar centered on zero, scaled so that ±limit fills half of width.
// Values past the limit are clipped and the bar ends with an arrow.
func Bar(value, limit float32, width int) string {
	if width < 3 {
		width = 3
	}
	half := width / 2
	cells := make([]rune, 2*half+1)
	for i := range cells {
		cells[i] = ' '
	}
	cells[half] = '|'
	if limit <= 0 {
		return strings.TrimRight(string(cells), " ")
	}
	ratio := value / limit
	clipped := ratio > 1 || ratio < -1
	ratio = min(max(ratio, -1), 1)
	n := int(ratio*float32(half) + sign(ratio)*0.5)
	switch {
	case n > 0:
		for i := 1; i <= n; i++ {
			cells[half+i] = '█'
		}
		if clipped {
			cells[half+n] = '>'
		}
	case n < 0:
		for i := 1; i <= -n; i++ {
			cells[half-i] = '█'
		}
		if clipped {
			cells[half+n] = '<'
		}
	}
	return strings.TrimRight(string(cells), " ")
}

func sign(v float32) float32 {
	if v < 0 {
		return -1
	}
	return 1
}
