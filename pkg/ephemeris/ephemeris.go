// Package ephemeris supplies geocentric ecliptic longitudes of the Sun and Moon
// and a search primitive that locates the instant a longitude crosses a target
// value. The lunar calendar is built on top of the Source interface so that it
// can be driven by the Meeus series, the truncated analytic series, or a fake.
package ephemeris

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Body names a longitude quantity.
type Body string

const (
	Sun  Body = "Sun"
	Moon Body = "Moon"
	// MoSu is the Moon's longitude minus the Sun's, normalized to [0,360).
	// 0 is new moon and 180 is full moon.
	MoSu Body = "MoSu"
)

// ParseBody converts a name such as "Sun", "moon" or "MoSu" to a Body.
func ParseBody(name string) (Body, error) {
	switch name {
	case "Sun", "sun":
		return Sun, nil
	case "Moon", "moon":
		return Moon, nil
	case "MoSu", "mosu", "elongation":
		return MoSu, nil
	}
	return "", fmt.Errorf("%w: unknown body %q", ErrInvalidArgument, name)
}

var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrNotFound             = errors.New("no crossing found in search window")
	ErrAmbiguousResult      = errors.New("more than one crossing found in search window")
	ErrConvergenceFailure   = errors.New("search did not converge")
	ErrEphemerisUnavailable = errors.New("ephemeris value unavailable")
)

// Location is the observer position. It is fixed when a Source is built so
// that sources can be shared between goroutines.
type Location struct {
	Longitude float64 `json:"longitude"` // degrees, east positive
	Latitude  float64 `json:"latitude"`  // degrees, north positive
	Elevation float64 `json:"elevation"` // meters
}

// Validate checks the coordinate ranges.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90,90]", ErrInvalidArgument, l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180,180]", ErrInvalidArgument, l.Longitude)
	}
	return nil
}

// Source is the capability set the lunar calendar needs from an ephemeris.
type Source interface {
	// Longitude returns the geocentric apparent longitude of body at t in [0,360).
	Longitude(body Body, t time.Time) (float64, error)

	// FindCrossing returns the instant within [start, end] at which body's
	// longitude increases through target, accurate to maxErr.
	FindCrossing(body Body, start, end time.Time, target float64, maxErr time.Duration) (time.Time, error)
}

// LongitudeFunc evaluates a single longitude quantity.
type LongitudeFunc func(t time.Time) (float64, error)

// SearchStats describes one completed call to FindCrossing.
type SearchStats struct {
	Body       Body
	Samples    int
	Iterations int
	Elapsed    time.Duration
	Err        error
}

// SearchConfig tunes the crossing search.
type SearchConfig struct {
	// ScanStep is the spacing of the coarse samples used to bracket crossings.
	// It must be short enough that the quantity moves well under 180 degrees
	// between samples.
	ScanStep time.Duration
	// MaxIterations caps the number of bisection steps.
	MaxIterations int
	// Observer, if set, is called after every search.
	Observer func(SearchStats)
}

const (
	DefaultScanStep      = 6 * time.Hour
	DefaultMaxIterations = 64
)

func defaultSearchConfig() SearchConfig {
	return SearchConfig{
		ScanStep:      DefaultScanStep,
		MaxIterations: DefaultMaxIterations,
	}
}

// Option configures a Source.
type Option func(*SearchConfig)

// WithScanStep sets the coarse sampling interval.
func WithScanStep(d time.Duration) Option {
	return func(c *SearchConfig) {
		if d > 0 {
			c.ScanStep = d
		}
	}
}

// WithMaxIterations sets the bisection iteration cap.
func WithMaxIterations(n int) Option {
	return func(c *SearchConfig) {
		if n > 0 {
			c.MaxIterations = n
		}
	}
}

// WithObserver registers a callback that receives statistics for every search.
func WithObserver(fn func(SearchStats)) Option {
	return func(c *SearchConfig) {
		c.Observer = fn
	}
}

// NormalizeAngle wraps an angle to the range [0, 360)
func NormalizeAngle(angle float64) float64 {
	angle = math.Mod(angle, 360)
	if angle < 0 {
		angle += 360
	}
	// math.Mod can return 360 for tiny negative inputs after the addition.
	if angle >= 360 {
		angle -= 360
	}
	return angle
}

// wrap180 maps an angle difference to [-180, 180).
func wrap180(angle float64) float64 {
	return NormalizeAngle(angle+180) - 180
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func checkValue(body Body, v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s longitude is %v", ErrEphemerisUnavailable, body, v)
	}
	return NormalizeAngle(v), nil
}
