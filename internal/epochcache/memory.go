// Package epochcache stores computed lunar year tables so that the new moon
// searches behind them run once per year.
package epochcache

import (
	"context"
	"sync"
	"time"

	"github.com/chrissnell/lunarcal/pkg/lunar"
)

// Memory is a process-local lunar.YearStore.
type Memory struct {
	mu     sync.RWMutex
	tables map[int]lunar.YearTable
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[int]lunar.YearTable)}
}

// LoadYear returns a copy of the stored table for year.
func (m *Memory) LoadYear(_ context.Context, year int) (lunar.YearTable, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tbl, ok := m.tables[year]
	if ok {
		tbl.Starts = append([]time.Time(nil), tbl.Starts...)
	}
	return tbl, ok, nil
}

// StoreYear saves a copy of table.
func (m *Memory) StoreYear(_ context.Context, table lunar.YearTable) error {
	table.Starts = append([]time.Time(nil), table.Starts...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table.Year] = table
	return nil
}

// Len returns the number of stored years.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables)
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
