package main

import "github.com/urfave/cli/v3"

var (
	driverName     string
	device         int64
	defaultStreams bool
	logLevel       string
	logFormat      string
	debug          bool
)

func driverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "driver",
			Usage:       "accelerator driver (auto, sim, cuda)",
			Value:       "auto",
			Destination: &driverName,
		},
		&cli.Int64Flag{
			Name:        "device",
			Aliases:     []string{"d"},
			Usage:       "device id",
			Value:       0,
			Destination: &device,
		},
		&cli.BoolFlag{
			Name:        "default-streams",
			Usage:       "pass work through the driver's ambient stream instead of the pool",
			Destination: &defaultStreams,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
