package app

import (
	"fmt"
	"io"

	"github.com/chrissnell/lunarcal/internal/epochcache"
	"github.com/chrissnell/lunarcal/internal/metrics"
	"github.com/chrissnell/lunarcal/pkg/config"
	"github.com/chrissnell/lunarcal/pkg/ephemeris"
	"github.com/chrissnell/lunarcal/pkg/lunar"
	"go.uber.org/zap"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewSource builds the configured ephemeris backend. Every search it runs is
// reported to the metrics package.
func NewSource(cfg *config.ConfigData) (ephemeris.Source, error) {
	loc := ephemeris.Location{
		Latitude:  cfg.Location.Latitude,
		Longitude: cfg.Location.Longitude,
		Elevation: cfg.Location.Elevation,
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	opts := []ephemeris.Option{
		ephemeris.WithScanStep(cfg.Ephemeris.ScanStep),
		ephemeris.WithMaxIterations(cfg.Ephemeris.MaxIterations),
		ephemeris.WithObserver(metrics.ObserveSearch),
	}

	switch cfg.Ephemeris.Backend {
	case config.EphemerisMeeus, "":
		return ephemeris.NewMeeus(loc, opts...), nil
	case config.EphemerisAnalytic:
		return ephemeris.NewAnalytic(loc, opts...), nil
	}
	return nil, fmt.Errorf("unsupported ephemeris backend: %s", cfg.Ephemeris.Backend)
}

// NewYearStore opens the configured year table cache. The returned closer
// must be closed when the calendar is no longer used; the store is nil when
// caching is disabled.
func NewYearStore(cfg *config.ConfigData) (lunar.YearStore, io.Closer, error) {
	switch cfg.Cache.Backend {
	case config.CacheMemory, "":
		m := epochcache.NewMemory()
		return m, m, nil
	case config.CacheSQLite:
		backend := cfg.Ephemeris.Backend
		if backend == "" {
			backend = config.EphemerisMeeus
		}
		db, err := epochcache.OpenSQLite(cfg.Cache.Path, backend)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	case config.CacheNone:
		return nil, nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
}

// NewCalendar wires the ephemeris, cache and logger described by cfg into a
// lunar calendar.
func NewCalendar(cfg *config.ConfigData, logger *zap.SugaredLogger) (*lunar.Calendar, io.Closer, error) {
	src, err := NewSource(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating ephemeris: %w", err)
	}

	store, closer, err := NewYearStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening year table cache: %w", err)
	}

	loc, err := cfg.TimeLocation()
	if err != nil {
		closer.Close()
		return nil, nil, err
	}

	opts := []lunar.CalendarOption{
		lunar.WithMaxTimeError(cfg.Ephemeris.MaxTimeError),
		lunar.WithLocation(loc),
		lunar.WithLogger(logger),
	}
	if store != nil {
		opts = append(opts, lunar.WithYearStore(store))
	}

	logger.Debugw("calendar configured",
		"ephemeris", cfg.Ephemeris.Backend,
		"cache", cfg.Cache.Backend,
		"max_time_error", cfg.Ephemeris.MaxTimeError,
		"timezone", loc.String())

	return lunar.NewCalendar(src, opts...), closer, nil
}
