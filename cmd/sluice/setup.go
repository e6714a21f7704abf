package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/samcharles93/sluice/internal/accel"
	"github.com/samcharles93/sluice/internal/accel/cuda"
	"github.com/samcharles93/sluice/internal/accel/sim"
	"github.com/samcharles93/sluice/internal/logger"
	"github.com/samcharles93/sluice/internal/streams"
)

func buildLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, level)
	case "text":
		return logger.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	default:
		return logger.Pretty(os.Stderr, level)
	}
}

// setupDriver selects and registers the process driver and applies the
// pool configuration. Called once at the top of each command, before any
// pool is first-touched.
func setupDriver(log logger.Logger) (accel.Driver, error) {
	var drv accel.Driver
	switch driverName {
	case "sim":
		drv = sim.New()
	case "cuda":
		d, err := cuda.New()
		if err != nil {
			return nil, err
		}
		drv = d
	case "auto", "":
		if cuda.Available() {
			if d, err := cuda.New(); err == nil {
				drv = d
			} else {
				log.Warn("cuda probe failed, falling back to sim", "error", err)
			}
		}
		if drv == nil {
			drv = sim.New()
		}
	default:
		return nil, fmt.Errorf("unknown driver %q (want auto, sim, or cuda)", driverName)
	}

	accel.Register(drv)
	streams.SetLogger(log)
	streams.UseDefaultStreams(defaultStreams)
	log.Debug("driver registered", "driver", drv.Name())
	return drv, nil
}
