package app

import (
	"image/color"
	"math"
	"testing"
)

func TestColorMapper_Color(t *testing.T) {
	bounds := PowerBounds{Min: -100, Max: 0}

	for theme := range themes {
		t.Run(string(theme), func(t *testing.T) {
			cm := NewColorMapper(theme, bounds)

			if got := cm.Color(float32(math.NaN())); got != noDataColor {
				t.Errorf("Color(NaN) = %v, want no data color", got)
			}
			if got := cm.Color(-150); got != cm.colorMap[0] {
				t.Errorf("Color(below min) = %v, want %v", got, cm.colorMap[0])
			}
			if got := cm.Color(50); got != cm.colorMap[DefaultColorMapSize-1] {
				t.Errorf("Color(above max) = %v, want %v", got, cm.colorMap[DefaultColorMapSize-1])
			}
			if cm.Color(-90) == cm.Color(-10) {
				t.Errorf("Color(-90) and Color(-10) are both %v", cm.Color(-10))
			}
		})
	}
}

func TestThemes_Endpoints(t *testing.T) {
	black := color.RGBA{A: 0xff}
	white := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

	tests := []struct {
		name  string
		fn    func(float64) color.RGBA
		power float64
		want  color.RGBA
	}{
		{"enhanced low", enhanced, 0, black},
		{"enhanced high", enhanced, 1, color.RGBA{R: 0xff, A: 0xff}},
		{"classic high", classic, 1, color.RGBA{R: 0xff, A: 0xff}},
		{"grayscale low", grayscale, 0, black},
		{"grayscale high", grayscale, 1, white},
		{"jungle high", jungle, 1, color.RGBA{R: 0xff, G: 0xff, A: 0xff}},
		{"thermal low", thermal, 0, black},
		{"thermal high", thermal, 1, white},
		{"marine high", marine, 1, white},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.power); !closeColor(got, tt.want) {
				t.Errorf("%s(%v) = %v, want %v", tt.name, tt.power, got, tt.want)
			}
		})
	}
}

func TestGradient_At(t *testing.T) {
	// out of range power is clamped onto the end stops
	if got, want := rgba(thermalGradient.at(-1)), thermal(0); got != want {
		t.Errorf("at(-1) = %v, want %v", got, want)
	}
	if got, want := rgba(thermalGradient.at(2)), thermal(1); got != want {
		t.Errorf("at(2) = %v, want %v", got, want)
	}

	// the middle stop is reached exactly
	if got := rgba(thermalGradient.at(1.0 / 3)); !closeColor(got, color.RGBA{R: 0xff, A: 0xff}) {
		t.Errorf("at(1/3) = %v, want red", got)
	}
}

func closeColor(a, b color.RGBA) bool {
	near := func(x, y uint8) bool {
		return math.Abs(float64(x)-float64(y)) <= 1
	}
	return near(a.R, b.R) && near(a.G, b.G) && near(a.B, b.B) && a.A == b.A
}

func TestIsValidTheme(t *testing.T) {
	if !IsValidTheme(DefaultTheme) {
		t.Errorf("IsValidTheme(%s) = false", DefaultTheme)
	}
	if IsValidTheme("neon") {
		t.Errorf("IsValidTheme(neon) = true")
	}
}
