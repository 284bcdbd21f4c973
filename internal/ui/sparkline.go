package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Sparkline block characters representing 8 vertical levels (lowest to highest).
const sparklineBlocks = "▁▂▃▄▅▆▇█"

// sparklineBlockRunes provides indexed access to block characters.
var sparklineBlockRunes = []rune(sparklineBlocks)

// Thresholds pick the sparkline color from its latest value.
type Thresholds struct {
	Warning  float64
	Critical float64
}

// PercentThresholds colors 0-60 green, 60-80 amber and 80+ red.
var PercentThresholds = Thresholds{Warning: 60, Critical: 80}

// Color returns the color for v.
func (t Thresholds) Color(v float64) lipgloss.Color {
	switch {
	case v >= t.Critical:
		return ColorError
	case v >= t.Warning:
		return ColorWarning
	default:
		return ColorSuccess
	}
}

// Sparkline renders the most recent width values as block characters, scaled
// between the min and max of the shown window.
func Sparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}

	if len(data) > width {
		data = data[len(data)-width:]
	}

	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	var sb strings.Builder
	sb.Grow(len(data) * 3)

	numLevels := len(sparklineBlockRunes)
	valueRange := maxVal - minVal

	for _, v := range data {
		var level int
		if valueRange == 0 {
			// Flat series: all zeros sit on the floor, anything else mid-height.
			if v != 0 {
				level = numLevels / 2
			}
		} else {
			level = int((v - minVal) / valueRange * float64(numLevels-1))
			if level < 0 {
				level = 0
			} else if level >= numLevels {
				level = numLevels - 1
			}
		}
		sb.WriteRune(sparklineBlockRunes[level])
	}

	return sb.String()
}

// RenderSparkline is Sparkline colored by the last value against t.
func RenderSparkline(data []float64, width int, t Thresholds) string {
	line := Sparkline(data, width)
	if line == "" {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}
	return lipgloss.NewStyle().Foreground(t.Color(data[len(data)-1])).Render(line)
}
