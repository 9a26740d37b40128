package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestCatalog_MissionRoundTrip(t *testing.T) {
	c := NewCatalog(filepath.Join(t.TempDir(), "missions.sqlite"))
	defer c.Close()

	ctx := context.Background()
	root := Root{Path: t.TempDir(), Fallback: true}
	session := &Session{ID: "2025-06-01_12-00-00", Dir: filepath.Join(root.Path, "session_2025-06-01_12-00-00")}

	id, err := c.CreateSession(ctx, session, root, true)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected a positive session ID, got %d", id)
	}

	end := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)
	if err = c.FinalizeSession(ctx, id, end, 5, 1024); err != nil {
		t.Fatalf("FinalizeSession failed: %v", err)
	}

	records, err := c.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.ID != id {
		t.Errorf("expected ID %d, got %d", id, rec.ID)
	}
	if rec.SessionDir != session.Dir {
		t.Errorf("expected dir %q, got %q", session.Dir, rec.SessionDir)
	}
	if rec.StorageRoot != root.Path {
		t.Errorf("expected root %q, got %q", root.Path, rec.StorageRoot)
	}
	if !rec.UsedFallback {
		t.Error("expected fallback flag to round-trip")
	}
	if !rec.GPSEnabled {
		t.Error("expected gps flag to round-trip")
	}
	if rec.EndTime == nil || !rec.EndTime.Equal(end) {
		t.Errorf("expected end time %v, got %v", end, rec.EndTime)
	}
	if rec.FrameCount == nil || *rec.FrameCount != 5 {
		t.Errorf("expected frame count 5, got %v", rec.FrameCount)
	}
	if rec.ByteCount == nil || *rec.ByteCount != 1024 {
		t.Errorf("expected byte count 1024, got %v", rec.ByteCount)
	}
}

func TestCatalog_InterruptedMissionHasNoEndTime(t *testing.T) {
	c := NewCatalog(filepath.Join(t.TempDir(), "missions.sqlite"))
	defer c.Close()

	ctx := context.Background()
	root := Root{Path: t.TempDir()}
	session := &Session{ID: "2025-06-01_12-00-00", Dir: filepath.Join(root.Path, "session_2025-06-01_12-00-00")}

	if _, err := c.CreateSession(ctx, session, root, false); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	records, err := c.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.EndTime != nil || rec.FrameCount != nil || rec.ByteCount != nil {
		t.Error("a mission that never finalized must have nil end markers")
	}
	if rec.UsedFallback || rec.GPSEnabled {
		t.Error("flags must default to false")
	}
	if rec.StartTime.IsZero() {
		t.Error("start time must be recorded on creation")
	}
}

func TestCatalog_CloseIdempotent(t *testing.T) {
	c := NewCatalog(filepath.Join(t.TempDir(), "missions.sqlite"))

	if _, err := c.CreateSession(context.Background(), &Session{Dir: "d"}, Root{Path: "r"}, false); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
