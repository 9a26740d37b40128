package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// MissionRecord is one catalogued recording session. End time and counters
// are nil for a mission that never finalized, which after the fact marks an
// interrupted recording.
type MissionRecord struct {
	ID           int64
	SessionDir   string
	StorageRoot  string
	UsedFallback bool
	GPSEnabled   bool
	StartTime    time.Time
	EndTime      *time.Time
	FrameCount   *int64
	ByteCount    *int64
}

// Catalog records one row per recording mission in a local sqlite database.
// It is an index over the session directories, not the data itself: the
// frames on disk are the mission, so callers treat catalog failures as
// warnings, never as mission failures.
type Catalog struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewCatalog creates a catalog over the sqlite database at dbPath. The
// database and schema are created lazily on first use.
func NewCatalog(dbPath string) *Catalog {
	return &Catalog{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, command string) error {
	_, err := db.Exec(command)
	return err
}

func (c *Catalog) getWriteDB() (*sql.DB, error) {
	c.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", c.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			c.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			c.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		c.writeDB = db
	})

	return c.writeDB, c.writeDBErr
}

func (c *Catalog) getReadDB() (*sql.DB, error) {
	c.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", c.dbPath, "mode=ro"))
		if err != nil {
			c.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		c.readDB = db
	})

	return c.readDB, c.readDBErr
}

// CreateSession records the start of a mission and returns the row ID used
// to finalize it later.
func (c *Catalog) CreateSession(ctx context.Context, s *Session, root Root, gpsEnabled bool) (sessionID int64, err error) {
	db, err := c.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, s.Dir, root.Path, root.Fallback, gpsEnabled)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

// FinalizeSession closes out a mission row with its end time and counters.
func (c *Catalog) FinalizeSession(ctx context.Context, sessionID int64, endTime time.Time, frames int, bytes int64) (err error) {
	db, err := c.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, finalizeSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, endTime.UTC(), frames, bytes, sessionID); err != nil {
		return fmt.Errorf("finalizing session: %w", err)
	}
	return nil
}

// Sessions returns all catalogued missions ordered by start time.
func (c *Catalog) Sessions(ctx context.Context) (records []MissionRecord, err error) {
	db, err := c.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var rec MissionRecord
		var endTime sql.NullTime
		var frames, bytes sql.NullInt64

		if err = rows.Scan(
			&rec.ID,
			&rec.SessionDir,
			&rec.StorageRoot,
			&rec.UsedFallback,
			&rec.GPSEnabled,
			&rec.StartTime,
			&endTime,
			&frames,
			&bytes,
		); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}

		if endTime.Valid {
			rec.EndTime = &endTime.Time
		}
		if frames.Valid {
			rec.FrameCount = &frames.Int64
		}
		if bytes.Valid {
			rec.ByteCount = &bytes.Int64
		}

		records = append(records, rec)
	}
	err = rows.Err()
	return
}

// Close releases the database connections. Safe to call more than once.
func (c *Catalog) Close() error {
	c.closeOnce.Do(func() {
		var writeErr, readErr error

		if c.writeDB != nil {
			writeErr = c.writeDB.Close()
			c.writeDB = nil
		}
		if c.readDB != nil {
			readErr = c.readDB.Close()
			c.readDB = nil
		}

		c.closeErr = errors.Join(writeErr, readErr)
	})

	return c.closeErr
}
