package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const probeFileName = ".write_test"

// Root is a storage location whose write health was confirmed by an actual
// probe write during Resolve. Immutable for the rest of the mission.
type Root struct {
	Path     string
	Fallback bool
}

// Resolver picks a writable storage root. Presence of a mount point in the
// filesystem namespace is never trusted: removable media can sit there and
// still reject every write, so the only accepted evidence of health is a
// probe file successfully written and removed in this call.
type Resolver struct {
	primary  string
	fallback string
	logger   *slog.Logger
}

// NewResolver creates a resolver over a primary root (typically removable
// media) and a fallback root (a local path that is always writable).
func NewResolver(primary, fallback string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{primary: primary, fallback: fallback, logger: logger}
}

// Resolve returns a root that accepted a real write during this call.
// Primary first; any I/O failure there switches to the fallback. Two tiers
// only, no retries. An error means even the fallback rejected the probe,
// which is fatal to mission start.
func (r *Resolver) Resolve() (Root, error) {
	if err := probe(r.primary); err != nil {
		r.logger.Warn(fmt.Sprintf("primary storage failed write test: %s", err), slog.String("path", r.primary))

		if err = probe(r.fallback); err != nil {
			return Root{}, fmt.Errorf("fallback storage failed write test: %w", err)
		}

		r.logger.Info("storage: using fallback", slog.String("path", r.fallback))
		return Root{Path: r.fallback, Fallback: true}, nil
	}

	r.logger.Info("storage: primary verified", slog.String("path", r.primary))
	return Root{Path: r.primary}, nil
}

// probe proves the directory accepts I/O by creating and removing a small
// file inside it. A ghost mount fails here immediately instead of half way
// through a recording.
func probe(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	name := filepath.Join(dir, probeFileName)
	if err := os.WriteFile(name, []byte("test"), 0o644); err != nil {
		return fmt.Errorf("writing probe file: %w", err)
	}
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("removing probe file: %w", err)
	}
	return nil
}
