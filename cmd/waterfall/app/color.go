package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme names a power-to-color gradient
type ColorTheme string

const (
	EnhancedTheme  ColorTheme = "enhanced"  // Black, blue, cyan, yellow, red
	ClassicTheme   ColorTheme = "classic"   // Blue to red
	GrayscaleTheme ColorTheme = "grayscale" // Black to white
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow
	ThermalTheme   ColorTheme = "thermal"   // Black, red, yellow, white
	MarineTheme    ColorTheme = "marine"    // Deep blue, cyan, white

	DefaultTheme        = EnhancedTheme
	DefaultColorMapSize = 256
)

var noDataColor = color.RGBA{A: 0xff}

var themes = map[ColorTheme]func(float64) color.RGBA{
	EnhancedTheme:  enhanced,
	ClassicTheme:   classic,
	GrayscaleTheme: grayscale,
	JungleTheme:    jungle,
	ThermalTheme:   thermal,
	MarineTheme:    marine,
}

func IsValidTheme(theme ColorTheme) bool {
	_, ok := themes[theme]
	return ok
}

// ColorMapper maps power readings onto a pre-computed gradient
type ColorMapper struct {
	colorMap      []color.RGBA
	size          int
	boundsMin     float64
	powerPerIndex float64
}

func NewColorMapper(theme ColorTheme, bounds PowerBounds) *ColorMapper {
	return NewColorMapperWithSize(theme, bounds, DefaultColorMapSize)
}

func NewColorMapperWithSize(theme ColorTheme, bounds PowerBounds, size int) *ColorMapper {
	if size < 2 {
		size = DefaultColorMapSize
	}
	fn, ok := themes[theme]
	if !ok {
		fn = themes[DefaultTheme]
	}

	cm := &ColorMapper{
		colorMap:      make([]color.RGBA, size),
		size:          size,
		boundsMin:     bounds.Min,
		powerPerIndex: (bounds.Max - bounds.Min) / float64(size-1),
	}
	for i := range cm.colorMap {
		cm.colorMap[i] = fn(float64(i) / float64(size-1))
	}
	return cm
}

// Color returns the gradient color of power, clamped to the bounds
func (cm *ColorMapper) Color(power float32) color.RGBA {
	if math.IsNaN(float64(power)) {
		return noDataColor
	}
	if cm.powerPerIndex <= 0 {
		return cm.colorMap[0]
	}

	index := int((float64(power) - cm.boundsMin) / cm.powerPerIndex)
	switch {
	case index < 0:
		return cm.colorMap[0]
	case index >= cm.size:
		return cm.colorMap[cm.size-1]
	}
	return cm.colorMap[index]
}

func rgba(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// gradient blends evenly spaced stops in HCL space
type gradient []colorful.Color

func (g gradient) at(power float64) colorful.Color {
	power = math.Max(0, math.Min(1, power))

	pos := power * float64(len(g)-1)
	i := min(int(pos), len(g)-2)
	return g[i].BlendHcl(g[i+1], pos-float64(i)).Clamped()
}

var (
	thermalGradient = gradient{
		colorful.Color{},
		colorful.Color{R: 1},
		colorful.Color{R: 1, G: 1},
		colorful.Color{R: 1, G: 1, B: 1},
	}

	marineGradient = gradient{
		colorful.Color{B: 0.3},
		colorful.Color{G: 0.4, B: 0.9},
		colorful.Color{G: 1, B: 1},
		colorful.Color{R: 1, G: 1, B: 1},
	}
)

func enhanced(power float64) color.RGBA {
	level := math.Pow(power, 0.7)

	switch {
	case power < 0.25:
		return rgba(colorful.Hsv(240, 1, math.Min(1, level*4)))
	case power < 0.5:
		return rgba(colorful.Hsv(240-(power-0.25)*240, 1, math.Min(1, level*1.5)))
	case power < 0.75:
		return rgba(colorful.Hsv(180-(power-0.5)*4*120, 1, math.Min(1, level*1.5)))
	default:
		return rgba(colorful.Hsv(60-(power-0.75)*4*60, 1, 1))
	}
}

func classic(power float64) color.RGBA {
	return rgba(colorful.Hsv(240-power*240, 0.9+power*0.1, math.Pow(power, 0.7)))
}

func grayscale(power float64) color.RGBA {
	return rgba(colorful.Hsv(0, 0, math.Pow(power, 0.7)))
}

func jungle(power float64) color.RGBA {
	return rgba(colorful.Hsv(120-power*60, 1, 0.3+math.Pow(power, 0.6)*0.7))
}

func thermal(power float64) color.RGBA {
	return rgba(thermalGradient.at(power))
}

func marine(power float64) color.RGBA {
	return rgba(marineGradient.at(power))
}
