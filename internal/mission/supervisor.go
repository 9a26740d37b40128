package mission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/BenoitAud/drone-hydro-camera/internal/camera"
	"github.com/BenoitAud/drone-hydro-camera/internal/gps"
	"github.com/BenoitAud/drone-hydro-camera/internal/trigger"
)

// Hardware bundles the per-mission device handles. The supervisor builds a
// fresh bundle before every mission and tears it down afterwards, so no
// stale driver state ever survives into the next one. Anything that must
// outlive a mission lives on disk.
type Hardware struct {
	Button *trigger.Button
	Frames camera.Source
	GPS    *gps.Ingestor // nil in degraded no-GPS mode
}

// Close releases every handle in the bundle.
func (h *Hardware) Close() error {
	var errs []error

	if h.GPS != nil {
		if err := h.GPS.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing gps: %w", err))
		}
	}
	if h.Frames != nil {
		if err := h.Frames.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing camera: %w", err))
		}
	}
	if h.Button != nil {
		if err := h.Button.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing trigger: %w", err))
		}
	}

	return errors.Join(errs...)
}

// InitFunc builds the hardware bundle for one mission. A trigger or camera
// failure is fatal and must be returned; a GPS failure must be absorbed by
// returning a bundle with a nil ingestor.
type InitFunc func(ctx context.Context) (*Hardware, error)

// Supervisor runs missions back to back, re-initializing all hardware from
// scratch between them. This is the clean-slate guarantee the trigger
// contract demands: a finished mission hands back a process
// indistinguishable from a freshly started one.
type Supervisor struct {
	init    InitFunc
	newLoop func(*Hardware) *Loop
	logger  *slog.Logger
}

// NewSupervisor creates a supervisor. newLoop is called with each fresh
// hardware bundle to wire the acquisition loop for that mission.
func NewSupervisor(init InitFunc, newLoop func(*Hardware) *Loop, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Supervisor{init: init, newLoop: newLoop, logger: logger}
}

// Run executes missions until the context is cancelled. Hardware
// initialization failure aborts with an error (no restart); a mission that
// ends in an error is logged and followed by a fresh one.
func (s *Supervisor) Run(ctx context.Context) error {
	for missionNo := 1; ; missionNo++ {
		if ctx.Err() != nil {
			return nil
		}

		hw, err := s.init(ctx)
		if err != nil {
			return fmt.Errorf("hardware init: %w", err)
		}

		s.logger.Info("system ready, waiting for trigger", slog.Int("mission", missionNo))

		err = s.newLoop(hw).Run(ctx)
		if cErr := hw.Close(); cErr != nil {
			s.logger.Warn(fmt.Sprintf("hardware teardown: %s", cErr))
		}

		switch {
		case ctx.Err() != nil:
			s.logger.Info("shutdown requested, supervisor exiting")
			return nil
		case err != nil:
			s.logger.Error(fmt.Sprintf("mission aborted: %s", err))
		}
	}
}
