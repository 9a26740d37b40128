package gps

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

const (
	// sentenceStart marks the beginning of an NMEA sentence. Anything not
	// starting with it is binary garbage or a partial line and is dropped.
	sentenceStart = "$"

	// lineBacklog bounds the number of retained sentences between drains.
	lineBacklog = 64
)

// ErrNoDevice is returned when port auto-detection finds no USB serial device.
var ErrNoDevice = errors.New("gps: no usb serial device found")

// Line is one retained NMEA sentence tagged with the timestamp of the most
// recently persisted camera frame. The coarse correlation is deliberate:
// sentences are matched to the frame they arrived behind, not to their own
// GPS time.
type Line struct {
	Timestamp time.Time
	Raw       string
}

// Config holds the serial connection parameters.
type Config struct {
	Port     string // empty means auto-detect
	BaudRate uint
}

// WithLogger sets the logger for the ingestor.
func WithLogger(logger *slog.Logger) func(*Ingestor) {
	return func(in *Ingestor) {
		in.logger = logger.With(slog.String("component", "gps"))
	}
}

// Ingestor reads NMEA sentences from a serial stream, best effort. Read and
// decode failures are logged and swallowed: GPS loss degrades the log, it
// never interrupts a recording.
type Ingestor struct {
	conn   io.ReadCloser
	lines  chan string
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// DetectPort returns the first serial device that looks like a USB GPS
// receiver. They enumerate as ttyACM* or ttyUSB*.
func DetectPort() (string, error) {
	for _, pattern := range []string{"/dev/ttyACM*", "/dev/ttyUSB*"} {
		matches, err := filepath.Glob(pattern)
		if err == nil && len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", ErrNoDevice
}

// Open connects to the GPS receiver and starts ingesting sentences from it.
// The caller decides whether a failure here is fatal; for a recording
// mission it is not, the mission just proceeds without GPS.
func Open(cfg Config, options ...func(*Ingestor)) (*Ingestor, error) {
	port := cfg.Port
	if port == "" {
		var err error
		if port, err = DetectPort(); err != nil {
			return nil, err
		}
	}

	conn, err := serial.Open(serial.OpenOptions{
		PortName:        port,
		BaudRate:        cfg.BaudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("opening port %s: %w", port, err)
	}

	return NewIngestor(conn, options...), nil
}

// NewIngestor starts a sentence reader over an already open stream.
func NewIngestor(conn io.ReadCloser, options ...func(*Ingestor)) *Ingestor {
	in := Ingestor{
		conn:   conn,
		lines:  make(chan string, lineBacklog),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&in)
	}

	go in.read()
	return &in
}

func (in *Ingestor) read() {
	defer close(in.lines)

	scanner := bufio.NewScanner(in.conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, sentenceStart) {
			continue
		}

		select {
		case in.lines <- line:
		default:
			// Backlog full: drop the oldest sentence so the freshest fix
			// survives until the next drain.
			select {
			case <-in.lines:
			default:
			}
			select {
			case in.lines <- line:
			default:
			}
		}
	}
	if err := scanner.Err(); err != nil {
		in.logger.Warn(fmt.Sprintf("gps read stopped: %s", err))
	}
}

// Drain returns every sentence buffered since the last call without
// blocking, tagging each with frameTime. Returns nil when nothing arrived.
func (in *Ingestor) Drain(frameTime time.Time) []Line {
	var out []Line
	for {
		select {
		case raw, ok := <-in.lines:
			if !ok {
				return out
			}
			out = append(out, Line{Timestamp: frameTime, Raw: raw})
		default:
			return out
		}
	}
}

// Close closes the serial stream; the reader goroutine exits on the next
// read. Safe to call more than once.
func (in *Ingestor) Close() error {
	in.closeOnce.Do(func() {
		in.closeErr = in.conn.Close()
	})
	return in.closeErr
}
