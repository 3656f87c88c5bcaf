package chartdata

import "github.com/wcharczuk/go-chart/v2/drawing"

// Theme names accepted by exports.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Palette holds the colours a rendered chart uses for each series.
type Palette struct {
	Background drawing.Color
	Text       drawing.Color
	Grid       drawing.Color
	Actual     drawing.Color
	Predicted  drawing.Color
	Recent     drawing.Color
	Profit     drawing.Color
	Band       drawing.Color
}

// Palettes is keyed by theme name.
var Palettes = map[string]Palette{
	ThemeLight: {
		Background: drawing.ColorWhite,
		Text:       drawing.ColorFromHex("1f2937"),
		Grid:       drawing.ColorFromHex("e5e7eb"),
		Actual:     drawing.ColorFromHex("2563eb"),
		Predicted:  drawing.ColorFromHex("f97316"),
		Recent:     drawing.ColorFromHex("16a34a"),
		Profit:     drawing.ColorFromHex("9333ea"),
		Band:       drawing.ColorFromHex("fdba74"),
	},
	ThemeDark: {
		Background: drawing.ColorFromHex("111827"),
		Text:       drawing.ColorFromHex("f3f4f6"),
		Grid:       drawing.ColorFromHex("374151"),
		Actual:     drawing.ColorFromHex("60a5fa"),
		Predicted:  drawing.ColorFromHex("fb923c"),
		Recent:     drawing.ColorFromHex("4ade80"),
		Profit:     drawing.ColorFromHex("c084fc"),
		Band:       drawing.ColorFromHex("9a3412"),
	},
}

// PaletteFor returns the palette for theme, falling back to light.
func PaletteFor(theme string) Palette {
	if p, ok := Palettes[theme]; ok {
		return p
	}
	return Palettes[ThemeLight]
}
