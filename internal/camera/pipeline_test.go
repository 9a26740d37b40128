package camera

import (
	"bufio"
	"bytes"
	"testing"
)

func jpeg(payload ...byte) []byte {
	var b []byte
	b = append(b, jpegSOI...)
	b = append(b, payload...)
	b = append(b, jpegEOI...)
	return b
}

func scanAll(t *testing.T, stream []byte) [][]byte {
	t.Helper()

	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Split(splitJPEG)

	var frames [][]byte
	for scanner.Scan() {
		frames = append(frames, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanner error: %v", err)
	}
	return frames
}

func TestSplitJPEG(t *testing.T) {
	first := jpeg(0x01, 0x02, 0x03)
	second := jpeg(0x04)

	tests := []struct {
		name   string
		stream []byte
		want   [][]byte
	}{
		{
			name:   "two frames back to back",
			stream: append(append([]byte(nil), first...), second...),
			want:   [][]byte{first, second},
		},
		{
			name:   "garbage between frames is discarded",
			stream: bytes.Join([][]byte{{0xde, 0xad}, first, {0xbe, 0xef}, second, {0x00}}, nil),
			want:   [][]byte{first, second},
		},
		{
			name:   "truncated trailing frame is dropped",
			stream: append(append([]byte(nil), first...), jpegSOI...),
			want:   [][]byte{first},
		},
		{
			name:   "empty stream",
			stream: nil,
			want:   nil,
		},
		{
			name:   "garbage only",
			stream: []byte{0x01, 0x02, 0x03},
			want:   nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := scanAll(t, tc.stream)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d frames, got %d", len(tc.want), len(got))
			}
			for i := range got {
				if !bytes.Equal(got[i], tc.want[i]) {
					t.Errorf("frame %d: expected % x, got % x", i, tc.want[i], got[i])
				}
			}
		})
	}
}

func TestSplitJPEG_MarkerAcrossReads(t *testing.T) {
	frame := jpeg(0xaa, 0xbb)

	// A one-byte reader forces every marker to straddle a read boundary.
	scanner := bufio.NewScanner(bytes.NewReader(frame))
	scanner.Buffer(make([]byte, 1), maxFrameSize)
	scanner.Split(splitJPEG)

	if !scanner.Scan() {
		t.Fatalf("expected one frame, scan failed: %v", scanner.Err())
	}
	if !bytes.Equal(scanner.Bytes(), frame) {
		t.Errorf("expected % x, got % x", frame, scanner.Bytes())
	}
	if scanner.Scan() {
		t.Error("expected a single frame")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Width: 1280, Height: 720, FrameRate: 2}

	if got := cfg.command(); got != defaultCommand {
		t.Errorf("expected default command %q, got %q", defaultCommand, got)
	}

	cfg.Command = "libcamera-vid"
	if got := cfg.command(); got != "libcamera-vid" {
		t.Errorf("expected explicit command to win, got %q", got)
	}

	args := cfg.args()
	for _, want := range []string{"--codec", "mjpeg", "--framerate", "2", "--output", "-"} {
		found := false
		for _, a := range args {
			if a == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected %q in args %v", want, args)
		}
	}
}
