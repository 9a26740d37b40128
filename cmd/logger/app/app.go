package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BenoitAud/drone-hydro-camera/internal/camera"
	"github.com/BenoitAud/drone-hydro-camera/internal/gps"
	"github.com/BenoitAud/drone-hydro-camera/internal/mission"
	"github.com/BenoitAud/drone-hydro-camera/internal/storage"
	"github.com/BenoitAud/drone-hydro-camera/internal/trigger"
)

const (
	fallbackDirName = "camera_logs_backup"
	catalogFileName = "missions.sqlite"
)

// Run wires the logger and hands control to the mission supervisor until
// the context is cancelled or a fatal hardware failure occurs.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	fallback, err := fallbackRoot(&config.Storage)
	if err != nil {
		return fmt.Errorf("determining fallback storage root: %w", err)
	}

	resolver := storage.NewResolver(config.Storage.PrimaryRoot, fallback, logger)
	sessions := storage.NewManager(logger)

	var catalog *storage.Catalog
	if config.Storage.Catalog {
		path := config.Storage.CatalogPath
		if path == "" {
			// The catalog must outlive unreliable media, so it lives on the
			// always-writable local tier.
			if err = os.MkdirAll(fallback, 0o755); err != nil {
				return fmt.Errorf("creating catalog directory: %w", err)
			}
			path = filepath.Join(fallback, catalogFileName)
		}

		catalog = storage.NewCatalog(path)
		defer func() {
			if cErr := catalog.Close(); cErr != nil {
				logger.Warn(fmt.Sprintf("closing mission catalog: %s", cErr))
			}
		}()
	}

	init := func(ctx context.Context) (*mission.Hardware, error) {
		return initHardware(ctx, config, logger)
	}

	newLoop := func(hw *mission.Hardware) *mission.Loop {
		options := []func(*mission.Loop){
			mission.WithLogger(logger),
			mission.WithStopCooldown(time.Duration(config.Mission.StopCooldown)),
		}
		if hw.GPS != nil {
			options = append(options, mission.WithGPS(hw.GPS))
		}
		if catalog != nil {
			options = append(options, mission.WithCatalog(catalog))
		}
		return mission.NewLoop(hw.Button, hw.Frames, resolver, sessions, options...)
	}

	return mission.NewSupervisor(init, newLoop, logger).Run(ctx)
}

// initHardware builds one mission's hardware bundle. Trigger and camera
// failures are fatal; a missing or broken GPS only degrades the mission.
func initHardware(ctx context.Context, config *Config, logger *slog.Logger) (*mission.Hardware, error) {
	edges, err := trigger.NewGPIOSource(config.Trigger.Pin, time.Duration(config.Trigger.DebounceInterval))
	if err != nil {
		return nil, fmt.Errorf("initializing trigger input: %w", err)
	}
	button := trigger.New(edges, time.Duration(config.Trigger.HoldThreshold))
	logger.Info("trigger ready", slog.String("pin", config.Trigger.Pin))

	pipeline := camera.NewPipeline(camera.Config{
		Command:   config.Camera.Command,
		Width:     config.Camera.Width,
		Height:    config.Camera.Height,
		FrameRate: config.Camera.FrameRate,
	}, camera.WithLogger(logger))

	if err = pipeline.Start(ctx); err != nil {
		_ = button.Close()
		return nil, fmt.Errorf("starting camera pipeline: %w", err)
	}
	logger.Info("camera ready", slog.Int("framerate", config.Camera.FrameRate))

	hw := mission.Hardware{Button: button, Frames: pipeline}

	ingestor, err := gps.Open(gps.Config{
		Port:     config.GPS.Port,
		BaudRate: config.GPS.BaudRate,
	}, gps.WithLogger(logger))
	if err != nil {
		logger.Warn(fmt.Sprintf("gps unavailable, recording without it: %s", err))
	} else {
		hw.GPS = ingestor
		logger.Info("gps ready")
	}

	return &hw, nil
}

func fallbackRoot(config *StorageConfig) (string, error) {
	if config.FallbackRoot != "" {
		return config.FallbackRoot, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallbackDirName), nil
}
