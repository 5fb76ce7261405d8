package lunar

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// YearTable lists the month boundaries of one lunar year as found by the
// ephemeris: Starts[0] is Nisan 1 of Year, Starts[i] the new moon that begins
// month i+1, and End is Nisan 1 of the following year.
type YearTable struct {
	Year     int           `json:"year" msgpack:"year"`
	Starts   []time.Time   `json:"starts" msgpack:"starts"`
	End      time.Time     `json:"end" msgpack:"end"`
	MaxError time.Duration `json:"max_error" msgpack:"max_error"`
}

// Lunations returns the number of months the ephemeris places in the year.
func (t YearTable) Lunations() int {
	return len(t.Starts)
}

// MonthBounds returns the instants at which month begins and ends.
func (t YearTable) MonthBounds(month int) (start, end time.Time, err error) {
	if month < 1 || month > len(t.Starts) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: lunar year %d has %d lunations, no month %d",
			ErrNotFound, t.Year, len(t.Starts), month)
	}
	start = t.Starts[month-1]
	if month == len(t.Starts) {
		end = t.End
	} else {
		end = t.Starts[month]
	}
	return start, end, nil
}

// MonthOf returns the month containing ts, or false when ts is outside the year.
func (t YearTable) MonthOf(ts time.Time) (int, bool) {
	if len(t.Starts) == 0 || ts.Before(t.Starts[0]) || !ts.Before(t.End) {
		return 0, false
	}
	i := sort.Search(len(t.Starts), func(i int) bool {
		return t.Starts[i].After(ts)
	})
	return i, true
}

// Contains reports whether ts falls within the lunar year.
func (t YearTable) Contains(ts time.Time) bool {
	_, ok := t.MonthOf(ts)
	return ok
}

// YearStore persists year tables so that the new moon searches behind them
// are done once. Tables are only valid for the ephemeris that produced them;
// a store must not be shared between calendars built on different sources.
type YearStore interface {
	// LoadYear returns the stored table for year, with false if there is none.
	LoadYear(ctx context.Context, year int) (YearTable, bool, error)
	// StoreYear saves a table, replacing any previous one for the same year.
	StoreYear(ctx context.Context, table YearTable) error
}
