package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultCommand = "rpicam-vid"

	// frameQueueSize bounds the in-flight frames between the capture process
	// and the acquisition loop. When the loop falls behind, backpressure
	// propagates into the pipe buffer rather than into memory.
	frameQueueSize = 4

	// maxFrameSize caps the scanner token size for a single encoded frame.
	maxFrameSize = 32 << 20
)

// JPEG stream markers used to split the MJPEG byte stream into frames.
var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

// Config holds the capture pipeline parameters. They are handed to the
// capture binary verbatim; the pipeline consumes whatever it emits and does
// not interpret sensor settings.
type Config struct {
	Command   string // capture binary, defaults to rpicam-vid
	Width     int
	Height    int
	FrameRate int
}

func (c Config) command() string {
	if c.Command != "" {
		return c.Command
	}
	return defaultCommand
}

func (c Config) args() []string {
	return []string{
		"--codec", "mjpeg",
		"--width", strconv.Itoa(c.Width),
		"--height", strconv.Itoa(c.Height),
		"--framerate", strconv.Itoa(c.FrameRate),
		"--timeout", "0",
		"--nopreview",
		"--output", "-",
	}
}

// WithLogger sets the logger for the pipeline.
func WithLogger(logger *slog.Logger) func(*Pipeline) {
	return func(p *Pipeline) {
		p.logger = logger.With(slog.String("component", "camera"))
	}
}

// Pipeline runs an external MJPEG capture process and exposes its output as
// a bounded, ordered frame queue.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger

	frames  chan Frame
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

// NewPipeline creates a pipeline for the given capture configuration.
func NewPipeline(cfg Config, options ...func(*Pipeline)) *Pipeline {
	p := Pipeline{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		frames: make(chan Frame, frameQueueSize),
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// Frames implements Source.
func (p *Pipeline) Frames() <-chan Frame { return p.frames }

// Start spawns the capture process and begins delivering frames. A failure
// here means the camera is not usable at all and is fatal to the mission.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.running.Load() {
		return fmt.Errorf("pipeline is already running")
	}
	p.running.Store(true)

	ctx, p.cancel = context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, p.cfg.command(), p.cfg.args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.abortStart()
		return fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		p.abortStart()
		return fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		p.abortStart()
		return fmt.Errorf("error starting %s: %w", p.cfg.command(), err)
	}

	p.done = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go p.handleStdout(ctx, stdout, &wg)
	go p.handleStderr(stderr, &wg)

	go func() {
		defer close(p.done)

		wg.Wait()
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			p.logger.Error(fmt.Sprintf("capture process exited: %s", err))
		}

		close(p.frames)
		p.running.Store(false)
		p.logger.Info("capture pipeline stopped")
	}()

	p.logger.Info("capture pipeline started",
		slog.Int("width", p.cfg.Width),
		slog.Int("height", p.cfg.Height),
		slog.Int("framerate", p.cfg.FrameRate))

	return nil
}

func (p *Pipeline) handleStdout(ctx context.Context, stdout io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	scanner.Split(splitJPEG)

	var seq uint64
	for scanner.Scan() {
		data := append([]byte(nil), scanner.Bytes()...)
		frame := Frame{Seq: seq, Timestamp: time.Now(), Data: data}
		seq++

		// Blocking send: the bounded queue is the only backpressure between
		// the camera and disk I/O.
		select {
		case p.frames <- frame:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		p.logger.Warn(fmt.Sprintf("error reading capture stream: %s", err))
	}
}

func (p *Pipeline) handleStderr(stderr io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p.logger.Warn(fmt.Sprintf("%s >> %s", p.cfg.command(), line))
	}
}

// abortStart resets the pipeline state when Start fails part way through.
func (p *Pipeline) abortStart() {
	p.cancel()
	p.cancel = nil
	p.running.Store(false)
}

// Close terminates the capture process and waits for the frame channel to
// close. Safe to call on a pipeline that never started.
func (p *Pipeline) Close() error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	<-p.done
	return nil
}

// splitJPEG is a bufio.SplitFunc tokenizing a raw MJPEG byte stream into
// complete JPEG images delimited by SOI/EOI markers. Bytes between frames
// are discarded.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep one trailing byte around in case a marker straddles reads.
		if len(data) > 1 {
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	end += start + len(jpegSOI) + len(jpegEOI)
	return end, data[start:end], nil
}
