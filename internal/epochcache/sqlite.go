package epochcache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/lunarcal/internal/log"
	"github.com/chrissnell/lunarcal/pkg/lunar"
	"github.com/chrissnell/lunarcal/pkg/migrate"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLite is a lunar.YearStore persisted in a SQLite database. Rows are keyed
// by the ephemeris backend name so that one file can serve several backends.
type SQLite struct {
	db     *sql.DB
	dbPath string
	source string
}

// OpenSQLite opens (creating if needed) the cache database at dbPath for
// tables computed by the named ephemeris backend.
func OpenSQLite(dbPath, source string) (*SQLite, error) {
	if source == "" {
		return nil, fmt.Errorf("epoch cache requires an ephemeris source name")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	m := migrate.NewMigrator(db, migrate.NewFSProvider(migrations, "migrations"), "epochcache_migrations", log.GetSugaredLogger())
	if err := m.MigrateUp(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate epoch cache schema: %w", err)
	}

	log.Infow("opened epoch cache", "path", dbPath, "source", source)

	return &SQLite{
		db:     db,
		dbPath: dbPath,
		source: source,
	}, nil
}

// LoadYear returns the stored table for year.
func (s *SQLite) LoadYear(ctx context.Context, year int) (lunar.YearTable, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM lunar_years WHERE source = ? AND year = ?`,
		s.source, year).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return lunar.YearTable{}, false, nil
	}
	if err != nil {
		return lunar.YearTable{}, false, fmt.Errorf("failed to query lunar year %d: %w", year, err)
	}

	var tbl lunar.YearTable
	if err := msgpack.Unmarshal(payload, &tbl); err != nil {
		return lunar.YearTable{}, false, fmt.Errorf("failed to decode lunar year %d: %w", year, err)
	}
	if tbl.Year != year {
		return lunar.YearTable{}, false, fmt.Errorf("row for lunar year %d holds year %d", year, tbl.Year)
	}

	// msgpack restores instants in the local zone.
	for i := range tbl.Starts {
		tbl.Starts[i] = tbl.Starts[i].UTC()
	}
	tbl.End = tbl.End.UTC()
	return tbl, true, nil
}

// StoreYear saves table, replacing any previous row for its year.
func (s *SQLite) StoreYear(ctx context.Context, table lunar.YearTable) error {
	payload, err := msgpack.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to encode lunar year %d: %w", table.Year, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lunar_years (source, year, max_error_ns, lunations, computed_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, year) DO UPDATE SET
			max_error_ns = excluded.max_error_ns,
			lunations    = excluded.lunations,
			computed_at  = excluded.computed_at,
			payload      = excluded.payload`,
		s.source, table.Year, int64(table.MaxError), table.Lunations(), time.Now().Unix(), payload)
	if err != nil {
		return fmt.Errorf("failed to store lunar year %d: %w", table.Year, err)
	}
	return nil
}

// Years lists the cached years in ascending order.
func (s *SQLite) Years(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT year FROM lunar_years WHERE source = ? ORDER BY year`, s.source)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached years: %w", err)
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("failed to scan year row: %w", err)
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
