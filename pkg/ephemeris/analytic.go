package ephemeris

import (
	"fmt"
	"math"
	"time"
)

// Analytic evaluates truncated low-precision series for the Sun and Moon.
// The Moon carries only its five largest periodic terms, so phase instants
// can be off by half an hour or more. It is roughly an order of magnitude
// cheaper than Meeus and is meant for previews and coarse bracketing.
type Analytic struct {
	loc    Location
	search SearchConfig
}

// NewAnalytic returns an Analytic source for the given observer location.
func NewAnalytic(loc Location, opts ...Option) *Analytic {
	cfg := defaultSearchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Analytic{loc: loc, search: cfg}
}

// Location returns the observer location the source was built with.
func (a *Analytic) Location() Location {
	return a.loc
}

// Longitude implements Source.
func (a *Analytic) Longitude(body Body, t time.Time) (float64, error) {
	T := julianCenturies(jdFromTime(t))
	switch body {
	case Sun:
		return checkValue(body, sunEclipticLongitude(T))
	case Moon:
		return checkValue(body, moonEclipticLongitude(T))
	case MoSu:
		return checkValue(body, moonEclipticLongitude(T)-sunEclipticLongitude(T))
	}
	return 0, fmt.Errorf("%w: unknown body %q", ErrInvalidArgument, body)
}

// FindCrossing implements Source.
func (a *Analytic) FindCrossing(body Body, start, end time.Time, target float64, maxErr time.Duration) (time.Time, error) {
	if _, err := a.Longitude(body, start); err != nil {
		return time.Time{}, err
	}
	fn := func(t time.Time) (float64, error) {
		return a.Longitude(body, t)
	}
	return FindCrossing(fn, body, start, end, target, maxErr, a.search)
}

// jdFromTime converts a UTC time to Julian Day
func jdFromTime(t time.Time) float64 {
	return 2440587.5 + float64(t.UnixNano())/86400e9
}

// julianCenturies returns Julian centuries since J2000.0
func julianCenturies(jd float64) float64 {
	return (jd - 2451545.0) / 36525.0
}

// sunEclipticLongitude computes the Sun's ecliptic longitude in degrees
func sunEclipticLongitude(T float64) float64 {
	// Mean longitude
	L0 := 280.46646 + 36000.76983*T + 0.0003032*T*T

	// Mean anomaly
	M := 357.52911 + 35999.05029*T - 0.0001537*T*T
	Mrad := degToRad(NormalizeAngle(M))

	// Equation of center
	C := (1.914602-0.004817*T-0.000014*T*T)*math.Sin(Mrad) +
		(0.019993-0.000101*T)*math.Sin(2*Mrad) +
		0.000289*math.Sin(3*Mrad)

	return NormalizeAngle(L0 + C)
}

// moonEclipticLongitude computes the Moon's ecliptic longitude in degrees
func moonEclipticLongitude(T float64) float64 {
	L := 218.3164477 +
		481267.88123421*T -
		0.0015786*T*T +
		T*T*T/538841 -
		T*T*T*T/65194000

	D := 297.8501921 +
		445267.1114034*T -
		0.0018819*T*T +
		T*T*T/545868 -
		T*T*T*T/113065000

	Mp := 134.9633964 +
		477198.8675055*T +
		0.0087414*T*T +
		T*T*T/69699 -
		T*T*T*T/14712000

	Drad := degToRad(NormalizeAngle(D))
	Mprad := degToRad(NormalizeAngle(Mp))

	lambda := L +
		6.289*math.Sin(Mprad) +
		1.274*math.Sin(2*Drad-Mprad) +
		0.658*math.Sin(2*Drad) +
		0.214*math.Sin(2*Mprad) +
		0.110*math.Sin(Drad)

	return NormalizeAngle(lambda)
}
