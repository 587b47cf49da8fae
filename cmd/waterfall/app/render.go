package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const (
	dpi                = 72.0
	fontSize           = 12.0
	tickMarkLength     = 5
	pixelsPerFreqLabel = 150
	pixelsPerTimeLabel = 60

	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 40
	defaultRightBorder  = 40

	defaultTimeFormat     = "15:04:05"
	defaultDatetimeFormat = time.DateTime
)

// BorderConfig defines the white space around the waterfall
type BorderConfig struct {
	Top    int // Frequency scale
	Left   int // Time scale
	Bottom int // Information bar
	Right  int
}

// RenderConfig holds the waterfall rendering options
type RenderConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location

	FontSize   float64
	ColorTheme ColorTheme
	Bounds     PowerBounds

	NoAnnotations bool
	Borders       BorderConfig
}

func (c RenderConfig) withDefaults() RenderConfig {
	if c.TimeFormat == "" {
		c.TimeFormat = defaultTimeFormat
	}
	if c.DatetimeFormat == "" {
		c.DatetimeFormat = defaultDatetimeFormat
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.FontSize == 0 {
		c.FontSize = fontSize
	}
	if c.NoAnnotations {
		c.Borders = BorderConfig{}
		return c
	}
	if c.Borders.Top == 0 {
		c.Borders.Top = defaultTopBorder
	}
	if c.Borders.Left == 0 {
		c.Borders.Left = defaultLeftBorder
	}
	if c.Borders.Bottom == 0 {
		c.Borders.Bottom = defaultBottomBorder
	}
	if c.Borders.Right == 0 {
		c.Borders.Right = defaultRightBorder
	}
	return c
}

// Renderer draws a Waterfall with optional frequency and time scales
type Renderer struct {
	config   RenderConfig
	colorMap *ColorMapper
}

func NewRenderer(config RenderConfig) *Renderer {
	config = config.withDefaults()
	return &Renderer{
		config:   config,
		colorMap: NewColorMapper(config.ColorTheme, config.Bounds),
	}
}

// Render creates an image of the waterfall, one pixel per bin and row
func (r *Renderer) Render(w *Waterfall) (*image.RGBA, error) {
	if w.Width == 0 || w.Height == 0 {
		return nil, fmt.Errorf("nothing to render: %dx%d", w.Width, w.Height)
	}

	b := r.config.Borders
	img := image.NewRGBA(image.Rect(0, 0, w.Width+b.Left+b.Right, w.Height+b.Top+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(b.Left, b.Top, b.Left+w.Width, b.Top+w.Height)

	if !r.config.NoAnnotations {
		ann, err := newAnnotator(r.config)
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		if err = ann.annotate(img, w); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	for y, row := range w.Rows {
		for x, power := range row {
			img.SetRGBA(area.Min.X+x, area.Min.Y+y, r.colorMap.Color(power))
		}
	}
	return img, nil
}

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
	config   RenderConfig
}

func newAnnotator(config RenderConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingFull)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		}),
	}, nil
}

func (a *annotator) Close() error {
	return a.fontFace.Close()
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) annotate(img *image.RGBA, w *Waterfall) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func(*image.RGBA, *Waterfall) error
	}{
		{"drawing frequency scale", a.drawFrequencyScale},
		{"drawing time scale", a.drawTimeScale},
		{"drawing info bar", a.drawInfoBar},
	}
	for _, op := range ops {
		if err := op.fn(img, w); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}
	return nil
}

func (a *annotator) drawFrequencyScale(img *image.RGBA, w *Waterfall) error {
	span := float64(w.FrequencyMax - w.FrequencyMin)
	if span <= 0 {
		return nil
	}

	step := niceFrequencyStep(span, w.Width)
	textY := a.config.Borders.Top - tickMarkLength - a.fontHeight()/2

	first := math.Ceil(float64(w.FrequencyMin)/step) * step
	for freq := first; freq <= float64(w.FrequencyMax); freq += step {
		x := a.config.Borders.Left + int((freq-float64(w.FrequencyMin))/span*float64(w.Width-1))

		for y := a.config.Borders.Top - tickMarkLength; y < a.config.Borders.Top; y++ {
			img.Set(x, y, color.Black)
		}

		label := humanHz(freq)
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(x-width/2, textY)); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, w *Waterfall) error {
	half := a.fontHeight() / 2

	for y := 0; y < w.Height; y += pixelsPerTimeLabel {
		imgY := a.config.Borders.Top + y

		for x := a.config.Borders.Left - tickMarkLength; x < a.config.Borders.Left; x++ {
			img.Set(x, imgY, color.Black)
		}

		label := w.Times[y].In(a.config.Location).Format(a.config.TimeFormat)
		if _, err := a.context.DrawString(label, freetype.Pt(5, imgY+half)); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, w *Waterfall) error {
	info := fmt.Sprintf("%s - %s; %s - %s; 1px = %s",
		spectrum.FormatFrequency(w.FrequencyMin),
		spectrum.FormatFrequency(w.FrequencyMax),
		w.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		w.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat),
		humanHz(float64(w.Step)))

	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom-a.fontHeight())/2 - a.fontFace.Metrics().Descent.Round()
	_, err := a.context.DrawString(info, freetype.Pt(a.config.Borders.Left, textY))
	return err
}

// niceFrequencyStep picks a 1, 2 or 5 times power of ten step that keeps the
// labels at least pixelsPerFreqLabel apart
func niceFrequencyStep(span float64, width int) float64 {
	labels := max(1, float64(width)/pixelsPerFreqLabel)
	target := span / labels

	magnitude := math.Pow(10, math.Floor(math.Log10(target)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= target {
			return step
		}
	}
	return 10 * magnitude
}

func humanHz(hz float64) string {
	value, prefix := humanize.ComputeSI(hz)
	return fmt.Sprintf("%.2f %sHz", value, prefix)
}
