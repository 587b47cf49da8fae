package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     int64
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	TimeZone      *time.Location
	MinPower      *float64
	MaxPower      *float64
	From, To      *time.Time
	MinFrequency  *spectrum.Frequency
	MaxFrequency  *spectrum.Frequency
	Verbose       bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Theme:    DefaultTheme,
		TimeZone: time.Local,
	}
}

// NewConfigFromCLI parses the process command line
func NewConfigFromCLI(args []string, output io.Writer) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("waterfall", flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		imageFormat, theme, tz, from, to string
		minPower, maxPower               float64
		minFreq, maxFreq                 int64
	)
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(DefaultTheme), "Color theme. [enhanced, classic, grayscale, jungle, thermal, marine]")
	fs.StringVar(&tz, "tz", "Local", "Time zone of the time scale, e.g. UTC or Europe/London")
	fs.StringVar(&from, "from", "", "Render snapshots taken at or after this RFC 3339 time")
	fs.StringVar(&to, "to", "", "Render snapshots taken at or before this RFC 3339 time")
	fs.Int64Var(&minFreq, "min-freq", 0, "Lowest frequency to render, in Hz")
	fs.Int64Var(&maxFreq, "max-freq", 0, "Highest frequency to render, in Hz")
	fs.Float64Var(&minPower, "min-power", 0, "Define a manual minimum power (format nn.n)")
	fs.Float64Var(&maxPower, "max-power", 0, "Define a manual maximum power (format nn.n)")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time and frequency scales")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var parseErrs []error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min-power":
			c.MinPower = &minPower
		case "max-power":
			c.MaxPower = &maxPower
		case "min-freq":
			v := spectrum.Frequency(minFreq)
			c.MinFrequency = &v
		case "max-freq":
			v := spectrum.Frequency(maxFreq)
			c.MaxFrequency = &v
		case "from":
			c.From = parseTime(from, "from", &parseErrs)
		case "to":
			c.To = parseTime(to, "to", &parseErrs)
		}
	})

	loc, err := time.LoadLocation(tz)
	if err != nil {
		parseErrs = append(parseErrs, fmt.Errorf("invalid time zone %q: %w", tz, err))
	}
	c.TimeZone = loc
	c.Format = ImageFormat(strings.ToLower(imageFormat))
	c.Theme = ColorTheme(strings.ToLower(theme))

	if err = errors.Join(append(parseErrs, c.Validate())...); err != nil {
		fs.Usage()
		return nil, err
	}

	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}

func parseTime(value, name string, errs *[]error) *time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid -%s time: %w", name, err))
		return nil
	}
	return &t
}

func (c *Config) Validate() error {
	switch {
	case c.DBPath == "":
		return errors.New("db path is required")
	case c.SessionID <= 0:
		return errors.New("session id is required")
	case c.OutputFile == "":
		return errors.New("output file is required")
	}

	if _, ok := validImageFormats[c.Format]; !ok {
		return fmt.Errorf("invalid image format: %s", c.Format)
	}
	if !IsValidTheme(c.Theme) {
		return fmt.Errorf("invalid color theme: %s", c.Theme)
	}
	if c.MinPower != nil && c.MaxPower != nil && *c.MinPower >= *c.MaxPower {
		return fmt.Errorf("min power %.1f must be below max power %.1f", *c.MinPower, *c.MaxPower)
	}
	if c.MinFrequency != nil && c.MaxFrequency != nil && *c.MinFrequency >= *c.MaxFrequency {
		return fmt.Errorf("min frequency %d must be below max frequency %d", *c.MinFrequency, *c.MaxFrequency)
	}
	if c.From != nil && c.To != nil && c.To.Before(*c.From) {
		return errors.New("-to must not be before -from")
	}
	return nil
}
