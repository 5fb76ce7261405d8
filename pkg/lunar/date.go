package lunar

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/floats/scalar"
)

const (
	// DaysPerMonth is the length of every month on the elongation scale.
	DaysPerMonth = 30.0
	// DegreesPerDay is the Sun-Moon elongation covered by one lunar day.
	DegreesPerDay = 360.0 / DaysPerMonth
)

// LunarDate is a point in the lunar calendar. Day is continuous: day 0 is the
// new moon that starts the month, day 15 the full moon, and each day unit is
// 12 degrees of Sun-Moon elongation.
//
// A LunarDate is immutable. The zero value is not a valid date.
type LunarDate struct {
	year  int
	month int
	day   float64
}

// NewLunarDate validates and returns a LunarDate. Month must be in [1,12], or
// [1,13] in a leap year, and day must be in [0,30).
func NewLunarDate(year, month int, day float64) (LunarDate, error) {
	if month < 1 || month > MonthsInYear(year) {
		if month == 13 {
			return LunarDate{}, fmt.Errorf("%w: month 13 used in lunar year %d, which is not a leap year", ErrInvalidArgument, year)
		}
		return LunarDate{}, fmt.Errorf("%w: month %d out of range [1,%d] for lunar year %d", ErrInvalidArgument, month, MonthsInYear(year), year)
	}
	if math.IsNaN(day) || day < 0 || day >= DaysPerMonth {
		return LunarDate{}, fmt.Errorf("%w: day %v out of range [0,30)", ErrInvalidArgument, day)
	}
	return LunarDate{year: year, month: month, day: day}, nil
}

// LunarDateFromFloats builds a LunarDate from loosely typed input such as
// decoded JSON. Year and month must be integral.
func LunarDateFromFloats(year, month, day float64) (LunarDate, error) {
	if !isIntegral(year) {
		return LunarDate{}, fmt.Errorf("%w: year %v is not an integer", ErrInvalidArgument, year)
	}
	if !isIntegral(month) {
		return LunarDate{}, fmt.Errorf("%w: month %v is not an integer", ErrInvalidArgument, month)
	}
	return NewLunarDate(int(year), int(month), day)
}

func isIntegral(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v) && v == math.Trunc(v) && math.Abs(v) < math.MaxInt32
}

func (d LunarDate) Year() int { return d.year }

func (d LunarDate) Month() int { return d.month }

// Day returns the fractional day in [0,30).
func (d LunarDate) Day() float64 { return d.day }

// IsLeapYear reports whether the date's year has a 13th month.
func (d LunarDate) IsLeapYear() bool { return IsLunarLeapYear(d.year) }

// Compare returns -1, 0 or +1 ordering by (year, month, day).
func (d LunarDate) Compare(other LunarDate) int {
	switch {
	case d.year != other.year:
		return cmpInt(d.year, other.year)
	case d.month != other.month:
		return cmpInt(d.month, other.month)
	case d.day < other.day:
		return -1
	case d.day > other.day:
		return 1
	}
	return 0
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	return 1
}

func (d LunarDate) Equal(other LunarDate) bool  { return d.Compare(other) == 0 }
func (d LunarDate) Before(other LunarDate) bool { return d.Compare(other) < 0 }
func (d LunarDate) After(other LunarDate) bool  { return d.Compare(other) > 0 }

// ApproxEqual reports whether the dates are at most tol days apart. Dates in
// adjacent months are compared across the boundary, so (2016,3,29.9999) is
// close to (2016,4,0).
func (d LunarDate) ApproxEqual(other LunarDate, tol float64) bool {
	if d.year == other.year && d.month == other.month {
		return scalar.EqualWithinAbs(d.day, other.day, tol)
	}
	a, b := d, other
	if a.After(b) {
		a, b = b, a
	}
	next, err := a.Add(LunarTimeDelta{Months: 1})
	if err != nil || next.year != b.year || next.month != b.month {
		return false
	}
	return scalar.EqualWithinAbs(a.day, b.day+DaysPerMonth, tol)
}

// Add applies delta: years first, then months, then days. After each step
// the month is carried into the year using that year's length, so adding a
// year to month 13 of a leap year lands in month 1 two years later when the
// following year is common. Days carry into months in units of 30.
func (d LunarDate) Add(delta LunarTimeDelta) (LunarDate, error) {
	if !isIntegral(delta.Years) {
		return LunarDate{}, fmt.Errorf("%w: years component %v is not an integer", ErrInvalidArgument, delta.Years)
	}
	if !isIntegral(delta.Months) {
		return LunarDate{}, fmt.Errorf("%w: months component %v is not an integer", ErrInvalidArgument, delta.Months)
	}
	if math.IsNaN(delta.Days) || math.IsInf(delta.Days, 0) {
		return LunarDate{}, fmt.Errorf("%w: days component %v is not finite", ErrInvalidArgument, delta.Days)
	}

	year, month := carryMonths(d.year+int(delta.Years), d.month)
	year, month = carryMonths(year, month+int(delta.Months))

	day := d.day + delta.Days
	if day < 0 || day >= DaysPerMonth {
		shift := math.Floor(day / DaysPerMonth)
		day -= shift * DaysPerMonth
		year, month = carryMonths(year, month+int(shift))
	}
	// Rounding in the subtraction above can leave day exactly at 30.
	if day >= DaysPerMonth {
		day = 0
		year, month = carryMonths(year, month+1)
	}

	return NewLunarDate(year, month, day)
}

// Sub applies the negation of delta.
func (d LunarDate) Sub(delta LunarTimeDelta) (LunarDate, error) {
	return d.Add(delta.Neg())
}

// Diff returns d - other component-wise, without borrowing between
// components: (2018,1,5) - (2016,12,5) is 2 years, -11 months, 0 days.
func (d LunarDate) Diff(other LunarDate) LunarTimeDelta {
	return LunarTimeDelta{
		Years:  float64(d.year - other.year),
		Months: float64(d.month - other.month),
		Days:   d.day - other.day,
	}
}

// carryMonths folds an out-of-range month into neighbouring years.
func carryMonths(year, month int) (int, int) {
	for month > MonthsInYear(year) {
		month -= MonthsInYear(year)
		year++
	}
	for month < 1 {
		year--
		month += MonthsInYear(year)
	}
	return year, month
}

// ConciseString renders the date as "year,month,day", e.g. "2016,3,15.0".
func (d LunarDate) ConciseString() string {
	return fmt.Sprintf("%d,%d,%s", d.year, d.month, formatNumber(d.day))
}

func (d LunarDate) String() string {
	return fmt.Sprintf("LunarDate(year=%d, month=%d, day=%s)", d.year, d.month, formatNumber(d.day))
}

// ParseConcise parses the output of ConciseString.
func ParseConcise(s string) (LunarDate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return LunarDate{}, fmt.Errorf("%w: %q is not of the form year,month,day", ErrInvalidArgument, s)
	}
	year, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return LunarDate{}, fmt.Errorf("%w: year: %v", ErrInvalidArgument, err)
	}
	month, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return LunarDate{}, fmt.Errorf("%w: month: %v", ErrInvalidArgument, err)
	}
	day, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return LunarDate{}, fmt.Errorf("%w: day: %v", ErrInvalidArgument, err)
	}
	return NewLunarDate(year, month, day)
}

type lunarDateJSON struct {
	Year  float64 `json:"year" msgpack:"year"`
	Month float64 `json:"month" msgpack:"month"`
	Day   float64 `json:"day" msgpack:"day"`
}

// MarshalJSON encodes the date as {"year":..,"month":..,"day":..}.
func (d LunarDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(lunarDateJSON{Year: float64(d.year), Month: float64(d.month), Day: d.day})
}

// UnmarshalJSON decodes and validates a date.
func (d *LunarDate) UnmarshalJSON(b []byte) error {
	var raw lunarDateJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ld, err := LunarDateFromFloats(raw.Year, raw.Month, raw.Day)
	if err != nil {
		return err
	}
	*d = ld
	return nil
}

// EncodeMsgpack encodes the date with the same keys as MarshalJSON.
func (d LunarDate) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(lunarDateJSON{Year: float64(d.year), Month: float64(d.month), Day: d.day})
}

// DecodeMsgpack decodes and validates a date.
func (d *LunarDate) DecodeMsgpack(dec *msgpack.Decoder) error {
	var raw lunarDateJSON
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	ld, err := LunarDateFromFloats(raw.Year, raw.Month, raw.Day)
	if err != nil {
		return err
	}
	*d = ld
	return nil
}
