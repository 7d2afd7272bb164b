// Package audit persists every received request into an append-only,
// monthly-rotated SQLite file. The schema is versioned through the
// user_version pragma; upgrade steps marked FROZEN are immutable.
package audit

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const latestUserVersion = 1

type entry struct {
	url               string
	medium            string
	identifierVersion int
	identifier        string
}

// Logger buffers audit rows and flushes them in batches. It is the single
// writer of its database file; all methods are safe for concurrent use.
type Logger struct {
	mu        sync.Mutex
	dir       string
	threshold int
	now       func() time.Time

	conn  *sql.DB
	year  int
	month time.Month
	buff  []entry
}

// New opens (creating if necessary) the current month's database under dir.
// flushThreshold rows are buffered before a flush; 1 makes every Log
// effectively synchronous.
func New(dir string, flushThreshold int) (*Logger, error) {
	if flushThreshold < 1 {
		flushThreshold = 1
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	l := &Logger{
		dir:       dir,
		threshold: flushThreshold,
		now:       time.Now,
	}
	if err := l.rotate(l.now()); err != nil {
		return nil, err
	}
	return l, nil
}

// DatabasePath returns the database file for the calendar month of t.
func DatabasePath(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("requests_%d-%d.sqlite3", t.Year(), int(t.Month())))
}

// Log records one received request. The row is buffered; it reaches the
// database once the buffer holds flushThreshold rows, on month rollover, and
// on Close.
func (l *Logger) Log(url, medium string, identifierVersion int, identifier string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Year() != l.year || now.Month() != l.month {
		if err := l.flushLocked(); err != nil {
			return err
		}
		if err := l.rotate(now); err != nil {
			return err
		}
	}

	l.buff = append(l.buff, entry{
		url:               url,
		medium:            medium,
		identifierVersion: identifierVersion,
		identifier:        identifier,
	})
	if len(l.buff) >= l.threshold {
		return l.flushLocked()
	}
	return nil
}

// Flush writes any buffered rows to the database.
func (l *Logger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

// Close flushes and releases the database connection.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	flushErr := l.flushLocked()
	if l.conn != nil {
		if err := l.conn.Close(); err != nil && flushErr == nil {
			flushErr = err
		}
		l.conn = nil
	}
	return flushErr
}

func (l *Logger) flushLocked() error {
	if len(l.buff) == 0 {
		return nil
	}

	tx, err := l.conn.Begin()
	if err != nil {
		return fmt.Errorf("audit flush: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO request (url, medium, identifier_version, identifier) VALUES (?, ?, ?, ?);")
	if err != nil {
		return fmt.Errorf("audit flush: %w", err)
	}
	defer stmt.Close()

	for _, e := range l.buff {
		if _, err := stmt.Exec(e.url, e.medium, e.identifierVersion, e.identifier); err != nil {
			return fmt.Errorf("audit insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("audit flush: %w", err)
	}

	l.buff = l.buff[:0]
	return nil
}

// rotate closes the current file (if any) and opens the one for t's month.
func (l *Logger) rotate(t time.Time) error {
	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			slog.Error("closing previous audit database", "error", err)
		}
		l.conn = nil
	}

	path := DatabasePath(l.dir, t)
	conn, err := open(path)
	if err != nil {
		return err
	}

	l.conn = conn
	l.year = t.Year()
	l.month = t.Month()
	slog.Info("audit database open", "path", path)
	return nil
}

func open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	// Single writer.
	conn.SetMaxOpenConns(1)

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
