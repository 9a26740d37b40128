package mission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/BenoitAud/drone-hydro-camera/internal/camera"
	"github.com/BenoitAud/drone-hydro-camera/internal/gps"
	"github.com/BenoitAud/drone-hydro-camera/internal/storage"
	"github.com/BenoitAud/drone-hydro-camera/internal/trigger"
)

var (
	// ErrFrameSourceClosed is returned when the camera pipeline terminates
	// mid-recording.
	ErrFrameSourceClosed = errors.New("mission: frame source closed")

	// ErrFrameTimeout is returned when a frame wait exceeds the configured
	// timeout. With no timeout configured a stalled camera stalls the
	// mission indefinitely; that is an unrecoverable hardware condition.
	ErrFrameTimeout = errors.New("mission: timed out waiting for a frame")
)

// statusEvery controls how often the human-readable status line is emitted,
// in frames.
const statusEvery = 2

// WithLogger sets the logger for the loop.
func WithLogger(logger *slog.Logger) func(*Loop) {
	return func(l *Loop) {
		l.logger = logger.With(slog.String("component", "mission"))
	}
}

// WithGPS attaches a GPS ingestor. Without one the mission records in
// degraded no-GPS mode and creates no sentence log.
func WithGPS(in *gps.Ingestor) func(*Loop) {
	return func(l *Loop) {
		l.gps = in
	}
}

// WithCatalog attaches the mission catalog. Catalog errors are warnings,
// never mission failures.
func WithCatalog(c *storage.Catalog) func(*Loop) {
	return func(l *Loop) {
		l.catalog = c
	}
}

// WithStateFunc registers an observer invoked on every state transition.
func WithStateFunc(fn func(State)) func(*Loop) {
	return func(l *Loop) {
		l.stateFunc = fn
	}
}

// WithFrameTimeout bounds each frame wait. Zero means wait forever.
func WithFrameTimeout(d time.Duration) func(*Loop) {
	return func(l *Loop) {
		l.frameTimeout = d
	}
}

// WithStopCooldown sets the settle interval between resource teardown and
// handing the process back to the supervisor.
func WithStopCooldown(d time.Duration) func(*Loop) {
	return func(l *Loop) {
		l.cooldown = d
	}
}

// Loop is the acquisition state machine for a single mission: wait for the
// trigger, fuse camera frames with GPS text onto confirmed storage, detect
// the hold-to-stop gesture, clean up.
type Loop struct {
	button   *trigger.Button
	frames   camera.Source
	resolver *storage.Resolver
	sessions *storage.Manager

	gps     *gps.Ingestor    // nil in degraded mode
	catalog *storage.Catalog // nil when disabled

	frameTimeout time.Duration
	cooldown     time.Duration
	stateFunc    func(State)
	logger       *slog.Logger
}

// NewLoop wires the acquisition loop. GPS and the catalog are optional and
// attached through options; everything else is mandatory.
func NewLoop(button *trigger.Button, frames camera.Source, resolver *storage.Resolver, sessions *storage.Manager, options ...func(*Loop)) *Loop {
	l := Loop{
		button:   button,
		frames:   frames,
		resolver: resolver,
		sessions: sessions,
		cooldown: time.Second,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&l)
	}

	return &l
}

func (l *Loop) setState(s State) {
	l.logger.Info("state transition", slog.String("state", s.String()))
	if l.stateFunc != nil {
		l.stateFunc(s)
	}
}

// Run executes one mission end to end. It returns nil on a normal
// hold-stop and on cancellation (an interruption signal is treated exactly
// like a stop request); any other error already went through the same
// cleanup path and is reported so the supervisor can log it before
// rebuilding the hardware.
func (l *Loop) Run(ctx context.Context) error {
	l.setState(StateIdle)
	l.setState(StateArmed)

	pressAt, err := l.button.WaitForPress(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return fmt.Errorf("waiting for trigger: %w", err)
	}
	l.logger.Info("trigger received, starting recording", slog.Time("pressedAt", pressAt))

	root, err := l.resolver.Resolve()
	if err != nil {
		return fmt.Errorf("resolving storage: %w", err)
	}

	session, err := l.sessions.Open(root, l.gps != nil)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}

	var catalogID int64
	if l.catalog != nil {
		if catalogID, err = l.catalog.CreateSession(ctx, session, root, l.gps != nil); err != nil {
			l.logger.Warn(fmt.Sprintf("catalog: recording mission failed: %s", err))
			catalogID = 0
		}
	}

	l.setState(StateRecording)
	recordErr := l.record(ctx, session)

	// Every path from here on is the one STOPPING sequence: flush and close
	// the session, finalize the catalog row, settle, hand off.
	l.setState(StateStopping)

	if err = session.Close(); err != nil {
		l.logger.Warn(fmt.Sprintf("closing session: %s", err))
	}

	if l.catalog != nil && catalogID != 0 {
		err = l.catalog.FinalizeSession(context.WithoutCancel(ctx), catalogID, time.Now(), session.Frames(), session.Bytes())
		if err != nil {
			l.logger.Warn(fmt.Sprintf("catalog: finalizing mission failed: %s", err))
		}
	}

	l.logger.Info("session saved",
		slog.String("dir", session.Dir),
		slog.Int("frames", session.Frames()),
		slog.String("written", humanize.Bytes(uint64(session.Bytes()))))

	select {
	case <-time.After(l.cooldown):
	case <-ctx.Done():
	}

	l.setState(StateRestarting)
	return recordErr
}

// record runs the fused capture/log loop. Receiving a frame paces each
// iteration; GPS drain and trigger checks are non-blocking reads performed
// once per frame.
func (l *Loop) record(ctx context.Context, session *storage.Session) error {
	for {
		frame, ok, err := l.nextFrame(ctx)
		if err != nil {
			return err
		}
		if !ok {
			l.logger.Info("interrupted, stopping")
			return nil
		}

		if err = session.WriteFrame(frame); err != nil {
			return err
		}

		if l.gps != nil {
			if err = session.AppendGPS(l.gps.Drain(frame.Timestamp)); err != nil {
				// GPS must never fail the mission.
				l.logger.Warn(fmt.Sprintf("gps log append failed: %s", err))
			}
		}

		if session.Frames()%statusEvery == 1 {
			l.logger.Info("recording",
				slog.Int("frames", session.Frames()),
				slog.String("written", humanize.Bytes(uint64(session.Bytes()))),
				slog.Bool("gps", l.gps != nil))
		}

		if l.button.StopRequested(time.Now()) {
			l.logger.Info("stop hold detected")
			return nil
		}
	}
}

// nextFrame blocks until a frame arrives, the context is cancelled (ok
// false) or the optional timeout expires. Frame availability is the only
// blocking wait in the loop.
func (l *Loop) nextFrame(ctx context.Context) (camera.Frame, bool, error) {
	var timeout <-chan time.Time
	if l.frameTimeout > 0 {
		timer := time.NewTimer(l.frameTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case frame, ok := <-l.frames.Frames():
		if !ok {
			return camera.Frame{}, false, ErrFrameSourceClosed
		}
		return frame, true, nil

	case <-timeout:
		return camera.Frame{}, false, ErrFrameTimeout

	case <-ctx.Done():
		return camera.Frame{}, false, nil
	}
}
