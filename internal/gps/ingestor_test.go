package gps

import (
	"io"
	"strings"
	"testing"
	"time"
)

func drainAll(t *testing.T, in *Ingestor, frameTime time.Time, want int) []Line {
	t.Helper()

	var got []Line
	deadline := time.Now().Add(time.Second)
	for len(got) < want && time.Now().Before(deadline) {
		got = append(got, in.Drain(frameTime)...)
		time.Sleep(time.Millisecond)
	}
	return got
}

func TestIngestor_DrainFiltersSentences(t *testing.T) {
	stream := io.NopCloser(strings.NewReader("$GPGGA,1\r\nJUNK\r\n$GNGGA,2\r\n"))
	in := NewIngestor(stream)
	defer in.Close()

	frameTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	got := drainAll(t, in, frameTime, 2)

	if len(got) != 2 {
		t.Fatalf("expected exactly 2 retained lines, got %d: %v", len(got), got)
	}

	want := []string{"$GPGGA,1", "$GNGGA,2"}
	for i, line := range got {
		if line.Raw != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], line.Raw)
		}
		if !line.Timestamp.Equal(frameTime) {
			t.Errorf("line %d: expected frame timestamp %v, got %v", i, frameTime, line.Timestamp)
		}
	}

	// The junk line must never surface, no matter how long we wait.
	time.Sleep(10 * time.Millisecond)
	if extra := in.Drain(frameTime); len(extra) != 0 {
		t.Errorf("expected no further lines, got %v", extra)
	}
}

func TestIngestor_DrainEmpty(t *testing.T) {
	r, _ := io.Pipe()
	in := NewIngestor(r)
	defer in.Close()

	if lines := in.Drain(time.Now()); lines != nil {
		t.Errorf("expected nil from an empty drain, got %v", lines)
	}
}

func TestIngestor_BacklogDropsOldest(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < lineBacklog+10; i++ {
		sb.WriteString("$GPRMC,")
		sb.WriteString(strings.Repeat("x", i%7))
		sb.WriteString("\r\n")
	}
	in := NewIngestor(io.NopCloser(strings.NewReader(sb.String())))
	defer in.Close()

	got := drainAll(t, in, time.Now(), lineBacklog)
	if len(got) == 0 || len(got) > lineBacklog+10 {
		t.Fatalf("unexpected drain size %d", len(got))
	}
	for _, line := range got {
		if !strings.HasPrefix(line.Raw, sentenceStart) {
			t.Errorf("retained line without sentence marker: %q", line.Raw)
		}
	}
}

func TestIngestor_CloseIdempotent(t *testing.T) {
	in := NewIngestor(io.NopCloser(strings.NewReader("")))

	if err := in.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := in.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}
