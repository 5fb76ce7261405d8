package lunar

import (
	"fmt"
	"strconv"
)

// LunarTimeDelta is a signed span of lunar years, months and days. The
// components are independent: sums are never carried, so adding 11 months to
// 5 months gives 16 months, not one year and four months. Carrying only
// happens when a delta is applied to a LunarDate.
type LunarTimeDelta struct {
	Years  float64 `json:"years"`
	Months float64 `json:"months"`
	Days   float64 `json:"days"`
}

// NewLunarTimeDelta returns the delta with the given components.
func NewLunarTimeDelta(years, months, days float64) LunarTimeDelta {
	return LunarTimeDelta{Years: years, Months: months, Days: days}
}

// Add returns the component-wise sum.
func (d LunarTimeDelta) Add(other LunarTimeDelta) LunarTimeDelta {
	return LunarTimeDelta{
		Years:  d.Years + other.Years,
		Months: d.Months + other.Months,
		Days:   d.Days + other.Days,
	}
}

// Sub returns the component-wise difference.
func (d LunarTimeDelta) Sub(other LunarTimeDelta) LunarTimeDelta {
	return d.Add(other.Neg())
}

// Neg negates every component.
func (d LunarTimeDelta) Neg() LunarTimeDelta {
	return LunarTimeDelta{Years: -d.Years, Months: -d.Months, Days: -d.Days}
}

// Equal reports component-wise equality.
func (d LunarTimeDelta) Equal(other LunarTimeDelta) bool {
	return d.Years == other.Years && d.Months == other.Months && d.Days == other.Days
}

// IsZero reports whether every component is zero.
func (d LunarTimeDelta) IsZero() bool {
	return d.Equal(LunarTimeDelta{})
}

func (d LunarTimeDelta) String() string {
	return fmt.Sprintf("LunarTimeDelta(years=%s, months=%s, days=%s)",
		formatNumber(d.Years), formatNumber(d.Months), formatNumber(d.Days))
}

// formatNumber prints integral values with a single decimal place and
// everything else with the shortest exact representation.
func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
