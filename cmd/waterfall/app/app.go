package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
	"github.com/roman-kulish/radio-scanner/internal/storage"
)

const jpegQuality = 98

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	w, err := readWaterfall(ctx, store, config, logger)
	if err != nil {
		return err
	}

	bounds := w.Histogram.Bounds().Override(config.MinPower, config.MaxPower)

	logger.Info("rendering waterfall",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", w.Width),
			slog.Int("height", w.Height)),
		slog.Group("power",
			slog.String("min", fmt.Sprintf("%0.2fdB", bounds.Min)),
			slog.String("max", fmt.Sprintf("%0.2fdB", bounds.Max)),
			slog.String("mean", fmt.Sprintf("%0.2fdB", bounds.Mean))))

	renderer := NewRenderer(RenderConfig{
		Location:      config.TimeZone,
		ColorTheme:    config.Theme,
		Bounds:        bounds,
		NoAnnotations: config.NoAnnotations,
	})

	img, err := renderer.Render(w)
	if err != nil {
		return fmt.Errorf("rendering waterfall: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}

	return errors.Join(encode(out, img, config.Format), out.Close())
}

func readWaterfall(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) (*Waterfall, error) {
	var (
		opts    []storage.ReaderOption
		filters []any
	)

	if config.From != nil || config.To != nil {
		from, to := time.UnixMilli(0), time.UnixMilli(math.MaxInt64)
		if config.From != nil {
			from = *config.From
		}
		if config.To != nil {
			to = *config.To
		}
		opts = append(opts, storage.WithTimeRange(from.UTC(), to.UTC()))
		filters = append(filters,
			slog.String("from", from.In(config.TimeZone).Format(time.DateTime)),
			slog.String("to", to.In(config.TimeZone).Format(time.DateTime)))
	}

	if config.MinFrequency != nil || config.MaxFrequency != nil {
		var minFreq, maxFreq spectrum.Frequency = 0, math.MaxInt64
		if config.MinFrequency != nil {
			minFreq = *config.MinFrequency
		}
		if config.MaxFrequency != nil {
			maxFreq = *config.MaxFrequency
		}
		opts = append(opts, storage.WithFreqRange(minFreq, maxFreq))
		filters = append(filters,
			slog.String("minFreq", spectrum.FormatFrequency(minFreq)),
			slog.String("maxFreq", spectrum.FormatFrequency(maxFreq)))
	}

	if config.Verbose {
		logger.Info("reader configuration", filters...)
	}

	reader, err := store.ReadSpectrograms(ctx, config.SessionID, opts...)
	if err != nil {
		if errors.Is(err, storage.ErrNoData) {
			return nil, fmt.Errorf("session %d has no matching snapshots: %w", config.SessionID, err)
		}
		return nil, err
	}
	defer reader.Close()

	b := reader.Bounds()
	logger.Info("reading snapshots",
		slog.Int("count", b.Count),
		slog.String("start", b.StartTime.In(config.TimeZone).Format(time.DateTime)),
		slog.String("end", b.EndTime.In(config.TimeZone).Format(time.DateTime)),
		slog.String("minFreq", spectrum.FormatFrequency(b.Start)),
		slog.String("maxFreq", spectrum.FormatFrequency(b.Stop)))

	minFreq, maxFreq := b.Start, b.Stop
	if config.MinFrequency != nil {
		minFreq = max(minFreq, *config.MinFrequency)
	}
	if config.MaxFrequency != nil {
		maxFreq = min(maxFreq, *config.MaxFrequency)
	}

	var w *Waterfall
	for reader.Next(ctx) {
		s := reader.Current()
		if w == nil {
			w = NewWaterfall(minFreq, maxFreq, s.Range.Step)
		}
		w.Update(s)
	}
	if err = reader.Error(); err != nil {
		return nil, fmt.Errorf("reading snapshots: %w", err)
	}
	if w == nil {
		return nil, fmt.Errorf("session %d: %w", config.SessionID, storage.ErrNoData)
	}

	logger.Info("finished reading snapshots",
		slog.Int("rows", w.Height),
		slog.Uint64("readings", w.Histogram.Count()))

	return w, nil
}

func encode(out io.Writer, img image.Image, format ImageFormat) error {
	switch format {
	case ImageJPEG:
		return jpeg.Encode(out, img, &jpeg.Options{Quality: jpegQuality})
	default:
		return png.Encode(out, img)
	}
}
