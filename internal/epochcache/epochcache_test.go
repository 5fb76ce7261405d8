package epochcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/lunarcal/pkg/ephemeris"
	"github.com/chrissnell/lunarcal/pkg/lunar"
)

func sampleTable(year int) lunar.YearTable {
	start := time.Date(year, 3, 9, 1, 54, 30, 0, time.UTC)
	tbl := lunar.YearTable{Year: year, MaxError: time.Minute}
	for i := 0; i < 12; i++ {
		tbl.Starts = append(tbl.Starts, start.Add(time.Duration(i)*29*24*time.Hour))
	}
	tbl.End = start.Add(12 * 29 * 24 * time.Hour)
	return tbl
}

func newTestSQLite(t *testing.T, source string) *SQLite {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "epochs.db"), source)
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func assertTablesEqual(t *testing.T, got, want lunar.YearTable) {
	t.Helper()
	if got.Year != want.Year || got.MaxError != want.MaxError {
		t.Fatalf("got {Year: %d, MaxError: %v}, want {Year: %d, MaxError: %v}", got.Year, got.MaxError, want.Year, want.MaxError)
	}
	if len(got.Starts) != len(want.Starts) {
		t.Fatalf("got %d starts, want %d", len(got.Starts), len(want.Starts))
	}
	for i := range want.Starts {
		if !got.Starts[i].Equal(want.Starts[i]) {
			t.Errorf("Starts[%d] = %v, want %v", i, got.Starts[i], want.Starts[i])
		}
	}
	if !got.End.Equal(want.End) {
		t.Errorf("End = %v, want %v", got.End, want.End)
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, err := m.LoadYear(ctx, 2016); ok || err != nil {
		t.Fatalf("LoadYear on empty store = %v, %v", ok, err)
	}

	stored := sampleTable(2016)
	if err := m.StoreYear(ctx, stored); err != nil {
		t.Fatalf("StoreYear() error: %v", err)
	}
	// The store keeps its own copy of the starts.
	stored.Starts[0] = time.Time{}
	want := sampleTable(2016)

	got, ok, err := m.LoadYear(ctx, 2016)
	if err != nil || !ok {
		t.Fatalf("LoadYear() = %v, %v", ok, err)
	}
	assertTablesEqual(t, got, want)

	// Nor does a caller's edit of a loaded table reach the store.
	got.Starts[0] = time.Time{}
	again, _, _ := m.LoadYear(ctx, 2016)
	assertTablesEqual(t, again, want)

	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestSQLite(t, "meeus")

	if _, ok, err := db.LoadYear(ctx, 2016); ok || err != nil {
		t.Fatalf("LoadYear on empty store = %v, %v", ok, err)
	}

	want := sampleTable(2016)
	if err := db.StoreYear(ctx, want); err != nil {
		t.Fatalf("StoreYear() error: %v", err)
	}
	got, ok, err := db.LoadYear(ctx, 2016)
	if err != nil || !ok {
		t.Fatalf("LoadYear() = %v, %v", ok, err)
	}
	assertTablesEqual(t, got, want)
	if got.End.Location() != time.UTC {
		t.Errorf("End location = %v, want UTC", got.End.Location())
	}
}

func TestSQLiteReplace(t *testing.T) {
	ctx := context.Background()
	db := newTestSQLite(t, "meeus")

	coarse := sampleTable(2016)
	if err := db.StoreYear(ctx, coarse); err != nil {
		t.Fatal(err)
	}
	fine := sampleTable(2016)
	fine.MaxError = time.Second
	fine.Starts = append(fine.Starts, fine.End)
	fine.End = fine.End.Add(29 * 24 * time.Hour)
	if err := db.StoreYear(ctx, fine); err != nil {
		t.Fatal(err)
	}

	got, _, err := db.LoadYear(ctx, 2016)
	if err != nil {
		t.Fatal(err)
	}
	assertTablesEqual(t, got, fine)

	years, err := db.Years(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(years) != 1 || years[0] != 2016 {
		t.Errorf("Years() = %v, want [2016]", years)
	}
}

func TestSQLiteSeparatesSources(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "epochs.db")

	meeus, err := OpenSQLite(path, "meeus")
	if err != nil {
		t.Fatal(err)
	}
	defer meeus.Close()
	if err := meeus.StoreYear(ctx, sampleTable(2016)); err != nil {
		t.Fatal(err)
	}

	analytic, err := OpenSQLite(path, "analytic")
	if err != nil {
		t.Fatal(err)
	}
	defer analytic.Close()
	if _, ok, err := analytic.LoadYear(ctx, 2016); ok || err != nil {
		t.Errorf("analytic store saw the meeus table: %v, %v", ok, err)
	}
}

func TestOpenSQLiteRequiresSource(t *testing.T) {
	if _, err := OpenSQLite(filepath.Join(t.TempDir(), "epochs.db"), ""); err == nil {
		t.Error("expected an error for an empty source name")
	}
}

func TestCalendarUsesSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "epochs.db")

	store, err := OpenSQLite(path, "meeus")
	if err != nil {
		t.Fatal(err)
	}
	cal := lunar.NewCalendar(ephemeris.NewMeeus(ephemeris.Location{}), lunar.WithYearStore(store))
	want, err := cal.YearTable(ctx, 2016)
	if err != nil {
		t.Fatalf("YearTable() error: %v", err)
	}
	store.Close()

	again, err := OpenSQLite(path, "meeus")
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	got, ok, err := again.LoadYear(ctx, 2016)
	if err != nil || !ok {
		t.Fatalf("LoadYear() after reopen = %v, %v", ok, err)
	}
	assertTablesEqual(t, got, want)
	if got.Lunations() != 13 {
		t.Errorf("Lunations() = %d, want 13", got.Lunations())
	}
}

func TestSQLiteSchemaVersion(t *testing.T) {
	db := newTestSQLite(t, "meeus")

	var version int
	if err := db.db.QueryRow("SELECT MAX(version) FROM epochcache_migrations").Scan(&version); err != nil {
		t.Fatalf("reading schema version: %v", err)
	}
	if version != 1 {
		t.Errorf("schema version = %d, want 1", version)
	}
}
