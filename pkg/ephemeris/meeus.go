package ephemeris

import (
	"fmt"
	"time"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/moonposition"
	"github.com/soniakeys/meeus/v3/nutation"
	"github.com/soniakeys/meeus/v3/solar"
)

// Meeus computes apparent geocentric longitudes with the series from
// Jean Meeus, Astronomical Algorithms: chapter 25 for the Sun and chapter 47
// for the Moon. Both carry the full nutation in longitude so that it cancels
// in MoSu.
//
// Over 1800-2100 new and full moon instants agree with published tables to
// within about a minute.
type Meeus struct {
	loc    Location
	search SearchConfig
}

// NewMeeus returns a Meeus source for the given observer location.
func NewMeeus(loc Location, opts ...Option) *Meeus {
	cfg := defaultSearchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Meeus{loc: loc, search: cfg}
}

// Location returns the observer location the source was built with.
func (m *Meeus) Location() Location {
	return m.loc
}

// Longitude implements Source.
func (m *Meeus) Longitude(body Body, t time.Time) (float64, error) {
	jde := jdeFromTime(t)
	switch body {
	case Sun:
		return checkValue(body, sunApparentLongitude(jde))
	case Moon:
		return checkValue(body, moonApparentLongitude(jde))
	case MoSu:
		return checkValue(body, moonApparentLongitude(jde)-sunApparentLongitude(jde))
	}
	return 0, fmt.Errorf("%w: unknown body %q", ErrInvalidArgument, body)
}

// FindCrossing implements Source.
func (m *Meeus) FindCrossing(body Body, start, end time.Time, target float64, maxErr time.Duration) (time.Time, error) {
	if _, err := m.Longitude(body, start); err != nil {
		return time.Time{}, err
	}
	fn := func(t time.Time) (float64, error) {
		return m.Longitude(body, t)
	}
	return FindCrossing(fn, body, start, end, target, maxErr, m.search)
}

// jdeFromTime converts a civil instant to a Julian Ephemeris Day.
func jdeFromTime(t time.Time) float64 {
	return julian.TimeToJD(t.UTC()) + deltaT(t)/86400.0
}

// sunApparentLongitude corrects the true longitude for the full nutation in
// longitude and for aberration, matching moonApparentLongitude.
func sunApparentLongitude(jde float64) float64 {
	T := base.J2000Century(jde)
	s, _ := solar.True(T)
	dpsi, _ := nutation.Nutation(jde)
	return s.Deg() + dpsi.Deg() - 20.4898/3600/solar.Radius(T)
}

func moonApparentLongitude(jde float64) float64 {
	lon, _, _ := moonposition.Position(jde)
	dpsi, _ := nutation.Nutation(jde)
	return lon.Deg() + dpsi.Deg()
}
