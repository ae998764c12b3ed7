// Package testhelpers provides shared fixtures for package tests.
package testhelpers

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aawaaz/citizen-report-server/internal/database"
	"github.com/aawaaz/citizen-report-server/internal/logging"
)

// NewDB opens a migrated SQLite database in a temp dir, closed on cleanup.
func NewDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.RunMigrations(context.Background(), logging.Nop()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{t: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time and advances it by a millisecond so
// consecutive writes keep a stable order.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(time.Millisecond)
	return now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
