package ephemeris

import (
	"time"

	"github.com/soniakeys/meeus/v3/deltat"
	"github.com/soniakeys/meeus/v3/julian"
)

// deltaT returns TT - UT in seconds at t. The observed table is used from
// 1620 through 2008; outside it the chapter 10 polynomials are used.
// Interp10A panics past the table's end, which its day rounding can reach
// late in 2009.
func deltaT(t time.Time) float64 {
	t = t.UTC()
	year := decimalYear(t)
	switch {
	case year < 948:
		return deltat.PolyBefore948(year).Sec()
	case year < 1620:
		return deltat.Poly948to1600(year).Sec()
	case year < 2009:
		return deltat.Interp10A(julian.TimeToJD(t)).Sec()
	}
	return deltat.PolyAfter2000(year).Sec()
}

// decimalYear returns the year of t with the fraction of the year elapsed.
func decimalYear(t time.Time) float64 {
	t = t.UTC()
	return float64(t.Year()) + (float64(t.YearDay())-0.5)/365.25
}
