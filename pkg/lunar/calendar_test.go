package lunar

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/chrissnell/lunarcal/pkg/ephemeris"
)

// Published new moon instants are rounded to the minute.
const toleranceMinutes = 3.0

func diffMinutes(a, b time.Time) float64 {
	return math.Abs(a.Sub(b).Minutes())
}

func newTestCalendar(opts ...CalendarOption) *Calendar {
	return NewCalendar(ephemeris.NewMeeus(ephemeris.Location{}), opts...)
}

func TestNisan1(t *testing.T) {
	cal := newTestCalendar()
	eastern, err := time.LoadLocation("US/Eastern")
	if err != nil {
		t.Fatalf("loading US/Eastern: %v", err)
	}

	tests := []struct {
		name string
		year int
		loc  *time.Location
		want time.Time
	}{
		{"1897", 1897, time.UTC, time.Date(1897, 4, 2, 4, 24, 0, 0, time.UTC)},
		{"2004", 2004, time.UTC, time.Date(2004, 3, 20, 22, 42, 0, 0, time.UTC)},
		{"2004 US/Eastern", 2004, eastern, time.Date(2004, 3, 20, 17, 42, 0, 0, eastern)},
		{"2016", 2016, time.UTC, time.Date(2016, 3, 9, 1, 54, 0, 0, time.UTC)},
		{"2017", 2017, time.UTC, time.Date(2017, 3, 28, 2, 57, 0, 0, time.UTC)},
		{"nil location means UTC", 2016, nil, time.Date(2016, 3, 9, 1, 54, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cal.Nisan1(context.Background(), tt.year, tt.loc)
			if err != nil {
				t.Fatalf("Nisan1(%d) returned error: %v", tt.year, err)
			}
			if d := diffMinutes(got, tt.want); d > toleranceMinutes {
				t.Errorf("Nisan1(%d) = %v, want ~%v (off by %.1f minutes)", tt.year, got, tt.want, d)
			}
			if got.Location() != tt.want.Location() {
				t.Errorf("Nisan1(%d) location = %v, want %v", tt.year, got.Location(), tt.want.Location())
			}
		})
	}
}

func TestNisan1CancelledContext(t *testing.T) {
	cal := newTestCalendar()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cal.Nisan1(ctx, 2016, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want %v", err, context.Canceled)
	}
}

func TestLunarDateToDatetimeAnchors(t *testing.T) {
	src := ephemeris.NewMeeus(ephemeris.Location{})
	cal := NewCalendar(src, WithMaxTimeError(time.Second))

	tests := []struct {
		date       LunarDate
		elongation float64
		want       time.Time
	}{
		// First full moon of lunar 2016.
		{mustDate(t, 2016, 1, 15), 180, time.Date(2016, 3, 23, 12, 1, 0, 0, time.UTC)},
		{mustDate(t, 2016, 3, 0.5), 6, time.Time{}},
		{mustDate(t, 2016, 12, 29.5), 354, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.date.ConciseString(), func(t *testing.T) {
			ts, err := cal.LunarDateToDatetime(context.Background(), tt.date, nil)
			if err != nil {
				t.Fatalf("LunarDateToDatetime returned error: %v", err)
			}
			elongation, err := src.Longitude(ephemeris.MoSu, ts)
			if err != nil {
				t.Fatalf("Longitude returned error: %v", err)
			}
			if math.Abs(elongation-tt.elongation) > 0.0002 {
				t.Errorf("MoSu at %v = %.6f, want %v", ts, elongation, tt.elongation)
			}
			if !tt.want.IsZero() {
				if d := diffMinutes(ts, tt.want); d > toleranceMinutes {
					t.Errorf("%s = %v, want ~%v", tt.date.ConciseString(), ts, tt.want)
				}
			}
		})
	}
}

func TestLunarDateToDatetimeDayZero(t *testing.T) {
	cal := newTestCalendar()
	got, err := cal.LunarDateToDatetime(context.Background(), mustDate(t, 2004, 1, 0), nil)
	if err != nil {
		t.Fatalf("LunarDateToDatetime returned error: %v", err)
	}
	nisan1, err := cal.Nisan1(context.Background(), 2004, nil)
	if err != nil {
		t.Fatalf("Nisan1 returned error: %v", err)
	}
	if !got.Equal(nisan1) {
		t.Errorf("day 0 of month 1 = %v, want Nisan 1 %v", got, nisan1)
	}
}

func TestLunarDateToDatetimeLocation(t *testing.T) {
	eastern, err := time.LoadLocation("US/Eastern")
	if err != nil {
		t.Fatalf("loading US/Eastern: %v", err)
	}
	cal := newTestCalendar(WithLocation(eastern))

	got, err := cal.LunarDateToDatetime(context.Background(), mustDate(t, 2016, 1, 15), nil)
	if err != nil {
		t.Fatalf("LunarDateToDatetime returned error: %v", err)
	}
	if got.Location() != eastern {
		t.Errorf("location = %v, want %v", got.Location(), eastern)
	}

	got, err = cal.LunarDateToDatetime(context.Background(), mustDate(t, 2016, 1, 15), time.UTC)
	if err != nil {
		t.Fatalf("LunarDateToDatetime returned error: %v", err)
	}
	if got.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", got.Location())
	}
}

func TestDatetimeToLunarDate(t *testing.T) {
	cal := newTestCalendar()
	eastern, err := time.LoadLocation("US/Eastern")
	if err != nil {
		t.Fatalf("loading US/Eastern: %v", err)
	}

	tests := []struct {
		name string
		time time.Time
		want LunarDate
	}{
		{"full moon", time.Date(2016, 3, 23, 12, 1, 0, 0, time.UTC), mustDate(t, 2016, 1, 15)},
		{"Nisan 1 2004", time.Date(2004, 3, 20, 22, 42, 0, 0, time.UTC), mustDate(t, 2004, 1, 0)},
		{"Nisan 1 2004 given in US/Eastern", time.Date(2004, 3, 20, 17, 42, 0, 0, eastern), mustDate(t, 2004, 1, 0)},
		{"new moon before Nisan 1 belongs to previous year", time.Date(2016, 2, 8, 14, 39, 0, 0, time.UTC), mustDate(t, 2015, 12, 0)},
		{"full moon before Nisan 1", time.Date(2016, 2, 22, 18, 20, 0, 0, time.UTC), mustDate(t, 2015, 12, 15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cal.DatetimeToLunarDate(context.Background(), tt.time)
			if err != nil {
				t.Fatalf("DatetimeToLunarDate returned error: %v", err)
			}
			if !got.ApproxEqual(tt.want, 0.01) {
				t.Errorf("DatetimeToLunarDate(%v) = %v, want ~%v", tt.time, got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	cal := newTestCalendar()
	ctx := context.Background()

	days := []float64{0, 0.5, 3.25, 7.5, 14.999, 15, 22.75, 29.5}
	for year := 1998; year <= 2030; year += 4 {
		for month := 1; month <= 12; month += 5 {
			for _, day := range days {
				ld := mustDate(t, year, month, day)
				ts, err := cal.LunarDateToDatetime(ctx, ld, nil)
				if err != nil {
					t.Fatalf("LunarDateToDatetime(%v): %v", ld, err)
				}
				back, err := cal.DatetimeToLunarDate(ctx, ts)
				if err != nil {
					t.Fatalf("DatetimeToLunarDate(%v): %v", ts, err)
				}
				if !back.ApproxEqual(ld, 0.0023) {
					t.Errorf("round trip of %v gave %v (via %v)", ld, back, ts)
				}
			}
		}
	}
}

func TestRoundTripFromInstant(t *testing.T) {
	cal := newTestCalendar()
	ctx := context.Background()

	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	for ts := start; ts.Before(start.AddDate(3, 0, 0)); ts = ts.Add(97 * time.Hour) {
		ld, err := cal.DatetimeToLunarDate(ctx, ts)
		if errors.Is(err, ErrInvalidArgument) {
			// 13th lunation of a year the cycle treats as common.
			continue
		}
		if err != nil {
			t.Fatalf("DatetimeToLunarDate(%v): %v", ts, err)
		}
		back, err := cal.LunarDateToDatetime(ctx, ld, time.UTC)
		if err != nil {
			t.Fatalf("LunarDateToDatetime(%v): %v", ld, err)
		}
		if d := back.Sub(ts); d > 2*cal.MaxTimeError() || d < -2*cal.MaxTimeError() {
			t.Errorf("%v -> %v -> %v (off by %v)", ts, ld, back, d)
		}
	}
}

func TestRoundTripMonthEdges(t *testing.T) {
	cal := newTestCalendar(WithYearStore(&mapStore{tables: make(map[int]YearTable)}))
	ctx := context.Background()

	days := []float64{0.0001, 0.0003, 29.9997, 29.9999, math.Nextafter(DaysPerMonth, 0)}
	for year := 2000; year <= 2009; year++ {
		for month := 1; month <= 12; month++ {
			for _, day := range days {
				ld := mustDate(t, year, month, day)
				ts, err := cal.LunarDateToDatetime(ctx, ld, nil)
				if err != nil {
					t.Errorf("LunarDateToDatetime(%v): %v", ld, err)
					continue
				}
				back, err := cal.DatetimeToLunarDate(ctx, ts)
				if err != nil {
					t.Errorf("DatetimeToLunarDate(%v): %v", ts, err)
					continue
				}
				if !back.ApproxEqual(ld, 0.002) {
					t.Errorf("round trip of %v gave %v (via %v)", ld, back, ts)
				}
			}
		}
	}
}

func TestRoundTripAroundNewMoons(t *testing.T) {
	cal := newTestCalendar(WithYearStore(&mapStore{tables: make(map[int]YearTable)}))
	ctx := context.Background()

	for year := 2000; year <= 2009; year++ {
		tbl, err := cal.YearTable(ctx, year)
		if err != nil {
			t.Fatalf("YearTable(%d): %v", year, err)
		}
		for _, newMoon := range tbl.Starts {
			for _, offset := range []time.Duration{-5 * time.Second, -time.Second, time.Second, 5 * time.Second} {
				ts := newMoon.Add(offset)
				ld, err := cal.DatetimeToLunarDate(ctx, ts)
				if errors.Is(err, ErrInvalidArgument) {
					continue
				}
				if err != nil {
					t.Errorf("DatetimeToLunarDate(%v): %v", ts, err)
					continue
				}
				back, err := cal.LunarDateToDatetime(ctx, ld, time.UTC)
				if err != nil {
					t.Errorf("LunarDateToDatetime(%v) from %v: %v", ld, ts, err)
					continue
				}
				if d := back.Sub(ts); d > 2*cal.MaxTimeError() || d < -2*cal.MaxTimeError() {
					t.Errorf("%v -> %v -> %v (off by %v)", ts, ld, back, d)
				}
			}
		}
	}
}

func TestLunationsInYear(t *testing.T) {
	cal := newTestCalendar()
	tests := []struct {
		year int
		want int
	}{
		{2004, 12},
		{2016, 13},
		{2017, 12},
	}
	for _, tt := range tests {
		got, err := cal.LunationsInYear(context.Background(), tt.year)
		if err != nil {
			t.Fatalf("LunationsInYear(%d): %v", tt.year, err)
		}
		if got != tt.want {
			t.Errorf("LunationsInYear(%d) = %d, want %d", tt.year, got, tt.want)
		}
	}
}

// Lunar 2016 holds 13 new moons although the cycle makes it a common year,
// while 2017 is a leap year with only 12.
func TestCycleAndEphemerisDisagree(t *testing.T) {
	cal := newTestCalendar()
	ctx := context.Background()

	_, err := cal.DatetimeToLunarDate(ctx, time.Date(2017, 3, 10, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("instant in 13th lunation of 2016: error = %v, want %v", err, ErrInvalidArgument)
	}

	_, err = cal.LunarDateToDatetime(ctx, mustDate(t, 2017, 13, 5), nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("month 13 of 2017: error = %v, want %v", err, ErrNotFound)
	}
}

func TestYearTable(t *testing.T) {
	cal := newTestCalendar()
	tbl, err := cal.YearTable(context.Background(), 2016)
	if err != nil {
		t.Fatalf("YearTable returned error: %v", err)
	}
	if tbl.Year != 2016 || tbl.MaxError != cal.MaxTimeError() {
		t.Errorf("YearTable = {Year: %d, MaxError: %v}", tbl.Year, tbl.MaxError)
	}
	for i := 1; i < len(tbl.Starts); i++ {
		gap := tbl.Starts[i].Sub(tbl.Starts[i-1]).Hours() / 24
		if gap < 29.2 || gap > 29.9 {
			t.Errorf("month %d lasts %.2f days", i, gap)
		}
	}
	if gap := tbl.End.Sub(tbl.Starts[len(tbl.Starts)-1]).Hours() / 24; gap < 29.2 || gap > 29.9 {
		t.Errorf("last month lasts %.2f days", gap)
	}

	month, ok := tbl.MonthOf(time.Date(2016, 3, 23, 0, 0, 0, 0, time.UTC))
	if !ok || month != 1 {
		t.Errorf("MonthOf(2016-03-23) = %d, %v, want 1, true", month, ok)
	}
	if tbl.Contains(time.Date(2016, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("2016-03-01 precedes Nisan 1 and should not be in the table")
	}
	if _, _, err := tbl.MonthBounds(14); !errors.Is(err, ErrNotFound) {
		t.Errorf("MonthBounds(14) error = %v, want %v", err, ErrNotFound)
	}
}

type countingSource struct {
	ephemeris.Source
	crossings atomic.Int64
}

func (s *countingSource) FindCrossing(body ephemeris.Body, start, end time.Time, target float64, maxErr time.Duration) (time.Time, error) {
	s.crossings.Add(1)
	return s.Source.FindCrossing(body, start, end, target, maxErr)
}

type mapStore struct {
	mu     sync.Mutex
	tables map[int]YearTable
}

func (s *mapStore) LoadYear(_ context.Context, year int) (YearTable, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl, ok := s.tables[year]
	return tbl, ok, nil
}

func (s *mapStore) StoreYear(_ context.Context, tbl YearTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[tbl.Year] = tbl
	return nil
}

func TestYearStoreIsConsulted(t *testing.T) {
	store := &mapStore{tables: make(map[int]YearTable)}
	ctx := context.Background()

	first := &countingSource{Source: ephemeris.NewMeeus(ephemeris.Location{})}
	if _, err := NewCalendar(first, WithYearStore(store)).YearTable(ctx, 2016); err != nil {
		t.Fatalf("YearTable returned error: %v", err)
	}
	if first.crossings.Load() == 0 {
		t.Fatal("first calendar did not search the ephemeris")
	}
	if _, ok := store.tables[2016]; !ok {
		t.Fatal("table was not stored")
	}

	second := &countingSource{Source: ephemeris.NewMeeus(ephemeris.Location{})}
	if _, err := NewCalendar(second, WithYearStore(store)).YearTable(ctx, 2016); err != nil {
		t.Fatalf("YearTable returned error: %v", err)
	}
	if n := second.crossings.Load(); n != 0 {
		t.Errorf("second calendar ran %d searches, want 0", n)
	}

	// A stored table coarser than the calendar's accuracy is recomputed.
	precise := &countingSource{Source: ephemeris.NewMeeus(ephemeris.Location{})}
	if _, err := NewCalendar(precise, WithYearStore(store), WithMaxTimeError(time.Second)).YearTable(ctx, 2016); err != nil {
		t.Fatalf("YearTable returned error: %v", err)
	}
	if precise.crossings.Load() == 0 {
		t.Error("precise calendar reused a coarse table")
	}
	if got := store.tables[2016].MaxError; got != time.Second {
		t.Errorf("stored MaxError = %v, want 1s", got)
	}
}

func TestYearTableConcurrent(t *testing.T) {
	cal := newTestCalendar()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cal.DatetimeToLunarDate(context.Background(), time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestDatetimeToLunarDateReusesYearTables(t *testing.T) {
	src := &countingSource{Source: ephemeris.NewMeeus(ephemeris.Location{})}
	cal := NewCalendar(src, WithYearStore(&mapStore{tables: make(map[int]YearTable)}))
	ctx := context.Background()

	// Before Nisan 1, so both 2017 and 2016 are needed.
	ts := time.Date(2017, 2, 1, 0, 0, 0, 0, time.UTC)
	first, err := cal.DatetimeToLunarDate(ctx, ts)
	if err != nil {
		t.Fatalf("DatetimeToLunarDate returned error: %v", err)
	}
	if first.Year() != 2016 {
		t.Errorf("year = %d, want 2016", first.Year())
	}

	searches := src.crossings.Load()
	if _, err := cal.DatetimeToLunarDate(ctx, ts); err != nil {
		t.Fatalf("DatetimeToLunarDate returned error: %v", err)
	}
	if n := src.crossings.Load() - searches; n != 0 {
		t.Errorf("second conversion ran %d searches, want 0", n)
	}
}

type blockingSource struct {
	ephemeris.Source
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSource) FindCrossing(body ephemeris.Body, start, end time.Time, target float64, maxErr time.Duration) (time.Time, error) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.Source.FindCrossing(body, start, end, target, maxErr)
}

func TestYearTableCancelledCallerDoesNotFailOthers(t *testing.T) {
	src := &blockingSource{
		Source:  ephemeris.NewMeeus(ephemeris.Location{}),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	cal := NewCalendar(src)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := cal.YearTable(ctx, 2016)
		cancelled <- err
	}()
	<-src.entered

	waiting := make(chan error, 1)
	go func() {
		tbl, err := cal.YearTable(context.Background(), 2016)
		if err == nil && tbl.Year != 2016 {
			err = errors.New("wrong year")
		}
		waiting <- err
	}()

	cancel()
	select {
	case err := <-cancelled:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled caller: error = %v, want %v", err, context.Canceled)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(src.release)
	select {
	case err := <-waiting:
		if err != nil {
			t.Errorf("concurrent caller: %v", err)
		}
	case <-time.After(time.Minute):
		t.Fatal("concurrent caller did not return")
	}
}

func BenchmarkDatetimeToLunarDate(b *testing.B) {
	cal := newTestCalendar(WithYearStore(&mapStore{tables: make(map[int]YearTable)}))
	ts := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < b.N; i++ {
		if _, err := cal.DatetimeToLunarDate(context.Background(), ts); err != nil {
			b.Fatal(err)
		}
	}
}
