package storage

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    session_dir   TEXT      NOT NULL,
    storage_root  TEXT      NOT NULL,
    used_fallback INTEGER   NOT NULL DEFAULT 0,
    gps_enabled   INTEGER   NOT NULL DEFAULT 0,
    start_time    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    end_time      TIMESTAMP,
    frame_count   INTEGER,
    byte_count    INTEGER
);

CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions (start_time);`

	insertSessionSQL = `
INSERT INTO sessions (
                      session_dir,
                      storage_root,
                      used_fallback,
                      gps_enabled,
                      start_time)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`

	finalizeSessionSQL = `
UPDATE sessions
SET
    end_time = ?,
    frame_count = ?,
    byte_count = ?
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    session_dir,
    storage_root,
    used_fallback,
    gps_enabled,
    start_time,
    end_time,
    frame_count,
    byte_count
FROM sessions
ORDER BY start_time`
)
