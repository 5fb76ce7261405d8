package lunar

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/chrissnell/lunarcal/pkg/ephemeris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxTimeError is the accuracy requested from every ephemeris search.
const DefaultMaxTimeError = time.Minute

const (
	oneDay = 24 * time.Hour

	// The March equinox always falls between March 19 and 21.
	equinoxWindowStartDay = 15
	equinoxWindowEndDay   = 26

	// Consecutive new moons are 29.27 to 29.83 days apart, so each of these
	// windows holds exactly one of them.
	nextNewMoonMin = 20 * oneDay
	nextNewMoonMax = 40 * oneDay

	// Same-event slack when matching a walked new moon against the next Nisan 1.
	sameEventSlack = 2 * oneDay

	// Upper bound on the rate of change of the Sun-Moon elongation, in
	// degrees per day. The mean is 12.19.
	maxElongationRate = 16.0
)

// Calendar converts between civil instants and lunar dates. Lunar year Y
// begins at Nisan 1 of civil year Y: the new moon preceding the first full
// moon after the March equinox. Months begin at successive new moons.
//
// A Calendar is safe for concurrent use provided its Source and YearStore are.
type Calendar struct {
	src    ephemeris.Source
	maxErr time.Duration
	loc    *time.Location
	logger *zap.SugaredLogger
	store  YearStore
	group  singleflight.Group
}

// CalendarOption configures a Calendar.
type CalendarOption func(*Calendar)

// WithMaxTimeError sets the accuracy of every ephemeris search.
func WithMaxTimeError(d time.Duration) CalendarOption {
	return func(c *Calendar) {
		if d > 0 {
			c.maxErr = d
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.SugaredLogger) CalendarOption {
	return func(c *Calendar) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithYearStore caches year tables in store.
func WithYearStore(store YearStore) CalendarOption {
	return func(c *Calendar) {
		c.store = store
	}
}

// WithLocation sets the time zone of returned instants when the caller
// passes a nil location. The default is UTC.
func WithLocation(loc *time.Location) CalendarOption {
	return func(c *Calendar) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// NewCalendar returns a Calendar backed by src.
func NewCalendar(src ephemeris.Source, opts ...CalendarOption) *Calendar {
	c := &Calendar{
		src:    src,
		maxErr: DefaultMaxTimeError,
		loc:    time.UTC,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxTimeError returns the search accuracy.
func (c *Calendar) MaxTimeError() time.Duration {
	return c.maxErr
}

// IsLunarLeapYear reports whether year has a 13th month in the 19-year cycle.
func (c *Calendar) IsLunarLeapYear(year int) bool {
	return IsLunarLeapYear(year)
}

func (c *Calendar) location(loc *time.Location) *time.Location {
	if loc == nil {
		return c.loc
	}
	return loc
}

// Nisan1 returns the new moon before the first full moon after the March
// equinox of the civil year, in loc (nil for the calendar default).
func (c *Calendar) Nisan1(ctx context.Context, year int, loc *time.Location) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	equinox, err := c.src.FindCrossing(ephemeris.Sun,
		time.Date(year, time.March, equinoxWindowStartDay, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.March, equinoxWindowEndDay, 0, 0, 0, 0, time.UTC),
		0, c.maxErr)
	if err != nil {
		return time.Time{}, fmt.Errorf("finding March equinox of %d: %w", year, err)
	}

	full, err := c.firstFullMoonAfter(equinox)
	if err != nil {
		return time.Time{}, fmt.Errorf("finding first full moon after the %d equinox: %w", year, err)
	}

	newMoon, err := c.src.FindCrossing(ephemeris.MoSu, full.Add(-30*oneDay), full, 0, c.maxErr)
	if err != nil {
		if errors.Is(err, ErrAmbiguousResult) || errors.Is(err, ErrNotFound) {
			c.logger.Errorw("unexpected new moon count before full moon",
				"year", year, "full_moon", full, "error", err)
		}
		return time.Time{}, fmt.Errorf("finding new moon before the %v full moon: %w", full.Format(time.RFC3339), err)
	}

	c.logger.Debugw("computed Nisan 1", "year", year, "equinox", equinox, "full_moon", full, "nisan1", newMoon)
	return newMoon.In(c.location(loc)), nil
}

// firstFullMoonAfter searches two half-lunation windows in turn so that
// neither can hold more than one full moon.
func (c *Calendar) firstFullMoonAfter(t time.Time) (time.Time, error) {
	full, err := c.src.FindCrossing(ephemeris.MoSu, t, t.Add(15*oneDay), 180, c.maxErr)
	if errors.Is(err, ErrNotFound) {
		full, err = c.src.FindCrossing(ephemeris.MoSu, t.Add(15*oneDay), t.Add(30*oneDay), 180, c.maxErr)
	}
	return full, err
}

func (c *Calendar) nextNewMoon(after time.Time) (time.Time, error) {
	return c.src.FindCrossing(ephemeris.MoSu, after.Add(nextNewMoonMin), after.Add(nextNewMoonMax), 0, c.maxErr)
}

// YearTable returns the month boundaries of lunar year.
func (c *Calendar) YearTable(ctx context.Context, year int) (YearTable, error) {
	if c.store != nil {
		tbl, ok, err := c.store.LoadYear(ctx, year)
		switch {
		case err != nil:
			c.logger.Warnw("could not load lunar year table; recomputing", "year", year, "error", err)
		case ok && tbl.MaxError > 0 && tbl.MaxError <= c.maxErr:
			return tbl, nil
		}
	}

	// The shared computation outlives any one caller, so a cancelled request
	// does not fail the others waiting on the same year.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.Itoa(year), func() (interface{}, error) {
		tbl, err := c.computeYearTable(shared, year)
		if err != nil {
			return nil, err
		}
		if c.store != nil {
			if err := c.store.StoreYear(shared, tbl); err != nil {
				c.logger.Warnw("could not store lunar year table", "year", year, "error", err)
			}
		}
		return tbl, nil
	})

	select {
	case <-ctx.Done():
		return YearTable{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return YearTable{}, res.Err
		}
		return res.Val.(YearTable), nil
	}
}

func (c *Calendar) computeYearTable(ctx context.Context, year int) (YearTable, error) {
	start, err := c.Nisan1(ctx, year, time.UTC)
	if err != nil {
		return YearTable{}, err
	}
	end, err := c.Nisan1(ctx, year+1, time.UTC)
	if err != nil {
		return YearTable{}, err
	}

	tbl := YearTable{Year: year, Starts: []time.Time{start}, End: end, MaxError: c.maxErr}
	for cur := start; ; {
		if err := ctx.Err(); err != nil {
			return YearTable{}, err
		}
		next, err := c.nextNewMoon(cur)
		if err != nil {
			return YearTable{}, fmt.Errorf("finding new moon after %v: %w", cur.Format(time.RFC3339), err)
		}
		if next.After(end.Add(-sameEventSlack)) {
			break
		}
		tbl.Starts = append(tbl.Starts, next)
		if len(tbl.Starts) > 13 {
			return YearTable{}, fmt.Errorf("%w: lunar year %d has more than 13 new moons between %v and %v",
				ErrAmbiguousResult, year, start.Format(time.RFC3339), end.Format(time.RFC3339))
		}
		cur = next
	}
	if len(tbl.Starts) < 12 {
		return YearTable{}, fmt.Errorf("%w: lunar year %d has only %d new moons between %v and %v",
			ErrNotFound, year, len(tbl.Starts), start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	c.logger.Debugw("computed lunar year table", "year", year, "lunations", len(tbl.Starts))
	return tbl, nil
}

// LunationsInYear returns how many new moons the ephemeris places in the
// lunar year. It can disagree with MonthsInYear, which follows the fixed cycle.
func (c *Calendar) LunationsInYear(ctx context.Context, year int) (int, error) {
	tbl, err := c.YearTable(ctx, year)
	if err != nil {
		return 0, err
	}
	return tbl.Lunations(), nil
}

// DatetimeToLunarDate converts an instant to a lunar date.
//
// An instant inside a 13th lunation of a year that the 19-year cycle treats
// as common has no valid lunar date and yields ErrInvalidArgument.
func (c *Calendar) DatetimeToLunarDate(ctx context.Context, t time.Time) (LunarDate, error) {
	utc := t.UTC()
	year := utc.Year()

	tbl, err := c.YearTable(ctx, year)
	if err != nil {
		return LunarDate{}, err
	}
	if utc.Before(tbl.Starts[0]) {
		year--
		if tbl, err = c.YearTable(ctx, year); err != nil {
			return LunarDate{}, err
		}
	}
	month, ok := tbl.MonthOf(utc)
	if !ok {
		return LunarDate{}, fmt.Errorf("%w: %v is outside lunar year %d", ErrNotFound, utc.Format(time.RFC3339), year)
	}
	start, end, err := tbl.MonthBounds(month)
	if err != nil {
		return LunarDate{}, err
	}

	elongation, err := c.src.Longitude(ephemeris.MoSu, utc)
	if err != nil {
		return LunarDate{}, err
	}

	ld, err := NewLunarDate(year, month, dayFromElongation(elongation, utc.Sub(start), end.Sub(utc)))
	if err != nil {
		return LunarDate{}, fmt.Errorf("converting %v: %w", utc.Format(time.RFC3339), err)
	}
	return ld, nil
}

// dayFromElongation maps elongation to a day in [0,30). Near the new moons
// that bound the month the elongation can be on the wrong side of 0/360 by
// the search tolerance; those readings are clamped to the month.
func dayFromElongation(elongation float64, sinceStart, untilEnd time.Duration) float64 {
	if elongation > 180 && sinceStart < sameEventSlack {
		elongation -= 360
	}
	if elongation < 180 && untilEnd < sameEventSlack {
		elongation += 360
	}
	d := elongation / DegreesPerDay
	if d < 0 {
		return 0
	}
	if d >= DaysPerMonth {
		return math.Nextafter(DaysPerMonth, 0)
	}
	return d
}

// LunarDateToDatetime returns the instant of ld in loc (nil for the calendar
// default). A month beyond the lunations the ephemeris places in the year
// yields ErrNotFound.
func (c *Calendar) LunarDateToDatetime(ctx context.Context, ld LunarDate, loc *time.Location) (time.Time, error) {
	tbl, err := c.YearTable(ctx, ld.Year())
	if err != nil {
		return time.Time{}, err
	}
	start, end, err := tbl.MonthBounds(ld.Month())
	if err != nil {
		return time.Time{}, err
	}

	if ld.Day() == 0 {
		return start.In(c.location(loc)), nil
	}

	// Search only the half of the month holding the target, so that a target
	// near one new moon cannot also match near the other. A quarter month is
	// left on the far side since the full moon is not mid-month.
	target := ld.Day() * DegreesPerDay
	quarter := end.Sub(start) / 4
	lo, hi := start, end.Add(-quarter)
	if target >= 180 {
		lo, hi = start.Add(quarter), end
	}

	ts, err := c.src.FindCrossing(ephemeris.MoSu, lo, hi, target, c.maxErr)
	if errors.Is(err, ErrNotFound) {
		// The month edges are only known to maxErr. A target that close to
		// an edge may fall just outside the window; the edge is then the
		// answer to within maxErr.
		slack := maxElongationRate * c.maxErr.Hours() / 24
		switch {
		case target <= slack:
			return start.In(c.location(loc)), nil
		case DaysPerMonth*DegreesPerDay-target <= slack:
			// end itself belongs to the next month.
			return end.Add(-time.Nanosecond).In(c.location(loc)), nil
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("locating %s: %w", ld.ConciseString(), err)
	}
	return ts.In(c.location(loc)), nil
}
