package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BenoitAud/drone-hydro-camera/internal/camera"
	"github.com/BenoitAud/drone-hydro-camera/internal/gps"
)

const (
	sessionTimeFormat = "2006-01-02_15-04-05"
	gpsLogName        = "gps_log.txt"
	gpsLogHeader      = "SystemTime,RawNMEA"
)

// sessionID derives the session identifier from wall-clock time at one
// second resolution. Collisions within the same second are accepted:
// session creation is gated by a physical trigger press.
func sessionID(t time.Time) string {
	return t.Format(sessionTimeFormat)
}

// frameTimestamp formats a capture instant with millisecond precision for
// image names and GPS log records.
func frameTimestamp(t time.Time) string {
	return fmt.Sprintf("%s-%03d", t.Format(sessionTimeFormat), t.Nanosecond()/int(time.Millisecond))
}

// Manager creates session layouts under a confirmed storage root.
type Manager struct {
	logger *slog.Logger
}

// NewManager creates a session manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{logger: logger}
}

// Open creates `<root>/session_<id>/images/` and, when a GPS source is
// active, the append-only sentence log with its header line. Directory
// creation failure is fatal to mission start and is propagated, not retried.
func (m *Manager) Open(root Root, gpsActive bool) (*Session, error) {
	id := sessionID(time.Now())
	dir := filepath.Join(root.Path, "session_"+id)
	imageDir := filepath.Join(dir, "images")

	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating session layout: %w", err)
	}

	s := Session{ID: id, Dir: dir, ImageDir: imageDir}

	if gpsActive {
		f, err := os.OpenFile(filepath.Join(dir, gpsLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("creating gps log: %w", err)
		}
		if _, err = fmt.Fprintln(f, gpsLogHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("writing gps log header: %w", err)
		}
		s.gpsLog = f
	}

	m.logger.Info("session opened", slog.String("dir", dir), slog.Bool("gps", gpsActive))
	return &s, nil
}

// Session owns the on-disk artifacts of one recording mission. Exactly one
// session exists at a time; it is created on trigger press and closed on
// stop.
type Session struct {
	ID       string
	Dir      string
	ImageDir string

	gpsLog *os.File

	frames int
	bytes  int64

	closeOnce sync.Once
	closeErr  error
}

// WriteFrame persists one encoded frame under images/ with a
// millisecond-precision timestamped name.
func (s *Session) WriteFrame(f camera.Frame) error {
	name := filepath.Join(s.ImageDir, "img_"+frameTimestamp(f.Timestamp)+".jpg")
	if err := os.WriteFile(name, f.Data, 0o644); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}

	s.frames++
	s.bytes += int64(len(f.Data))
	return nil
}

// AppendGPS appends retained sentences to the session log, one
// `<frame_timestamp>,<raw_sentence>` record per line. Lines are only ever
// appended, never rewritten. A session opened without GPS drops them.
func (s *Session) AppendGPS(lines []gps.Line) error {
	if s.gpsLog == nil || len(lines) == 0 {
		return nil
	}

	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(frameTimestamp(line.Timestamp))
		sb.WriteByte(',')
		sb.WriteString(line.Raw)
		sb.WriteByte('\n')
	}

	if _, err := s.gpsLog.WriteString(sb.String()); err != nil {
		return fmt.Errorf("appending gps lines: %w", err)
	}
	return nil
}

// Frames returns the number of frames persisted so far.
func (s *Session) Frames() int { return s.frames }

// Bytes returns the total payload bytes persisted so far.
func (s *Session) Bytes() int64 { return s.bytes }

// Close flushes and closes the GPS log. Safe to call more than once; every
// exit path of the acquisition loop runs through here.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.gpsLog == nil {
			return
		}
		s.closeErr = errors.Join(s.gpsLog.Sync(), s.gpsLog.Close())
	})
	return s.closeErr
}
