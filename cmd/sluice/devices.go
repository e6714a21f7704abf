package main

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/sluice/internal/accel"
	"github.com/samcharles93/sluice/internal/accel/wgpu"
)

func devicesCmd() *cli.Command {
	var jsonOut bool

	flags := append(driverFlags(), loggingFlags()...)
	flags = append(flags, &cli.BoolFlag{
		Name:        "json",
		Usage:       "print device list as JSON",
		Destination: &jsonOut,
	})

	return &cli.Command{
		Name:  "devices",
		Usage: "List accelerator devices",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := buildLogger()
			applyCommonConfig(cmd, LoadConfig())

			drv, err := setupDriver(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: driver: %v", err), 1)
			}
			count, err := drv.DeviceCount()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: device count: %v", err), 1)
			}

			devices := make([]accel.DeviceInfo, 0, count)
			for i := 0; i < count; i++ {
				info, err := drv.DeviceInfo(i)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: device %d: %v", i, err), 1)
				}
				devices = append(devices, info)
			}

			// WebGPU sees GPUs even in builds without the cuda tag.
			if wgpu.Available() {
				probed, err := wgpu.Probe()
				if err != nil {
					log.Warn("webgpu probe failed", "error", err)
				} else {
					devices = append(devices, probed...)
				}
			} else {
				log.Debug("webgpu probe not built")
			}

			if jsonOut {
				b, err := json.MarshalIndent(devices, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(b))
				return nil
			}

			fmt.Printf("%-4s %-8s %-32s %10s\n", "ID", "KIND", "NAME", "MEMORY")
			for _, d := range devices {
				fmt.Printf("%-4d %-8s %-32s %9.1fG\n",
					d.ID, d.Kind, d.Name, float64(d.MemoryBytes)/(1024*1024*1024))
			}
			return nil
		},
	}
}
