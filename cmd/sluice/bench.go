package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/sluice/internal/dispatch"
	"github.com/samcharles93/sluice/internal/streams"
)

func benchCmd() *cli.Command {
	var (
		warmupRuns int64
		benchRuns  int64
		experts    int64
		tokens     int64
		dModel     int64
		dHidden    int64
		seed       int64
	)

	flags := append(driverFlags(), loggingFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs per expert count",
			Value:       3,
			Destination: &benchRuns,
		},
		&cli.Int64Flag{
			Name:        "experts",
			Aliases:     []string{"e"},
			Usage:       "max expert count for the sweep",
			Value:       int64(streams.Slots),
			Destination: &experts,
		},
		&cli.Int64Flag{
			Name:        "tokens",
			Aliases:     []string{"n"},
			Usage:       "tokens per run",
			Value:       256,
			Destination: &tokens,
		},
		&cli.Int64Flag{
			Name:        "d-model",
			Usage:       "model dimension",
			Value:       256,
			Destination: &dModel,
		},
		&cli.Int64Flag{
			Name:        "d-hidden",
			Usage:       "hidden dimension",
			Value:       1024,
			Destination: &dHidden,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "workload seed",
			Value:       42,
			Destination: &seed,
		},
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Run dispatch benchmarks across the stream pool",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := buildLogger()
			applyBenchConfig(cmd, LoadConfig(), &experts, &tokens, &dModel, &dHidden)

			drv, err := setupDriver(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: driver: %v", err), 1)
			}
			pool, err := streams.For(int(device))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: pool: %v", err), 1)
			}
			defer func() { _ = streams.Shutdown() }()
			d := dispatch.New(pool)

			fmt.Println("=== Sluice Benchmark ===")
			fmt.Printf("Driver:   %s\n", drv.Name())
			fmt.Printf("Device:   %d\n", device)
			fmt.Printf("Slots:    %d\n", streams.Slots)
			fmt.Printf("CPUs:     %d (GOMAXPROCS %d)\n", runtime.NumCPU(), runtime.GOMAXPROCS(0))
			fmt.Printf("Plan:     %d tokens, %dx%d, seed %d\n", tokens, dModel, dHidden, seed)
			fmt.Printf("Warmup:   %d runs\n", warmupRuns)
			fmt.Printf("Runs:     %d per expert count\n", benchRuns)
			fmt.Println()

			basePlan := dispatch.Plan{
				Experts: int(experts),
				Tokens:  int(tokens),
				DModel:  int(dModel),
				DHidden: int(dHidden),
				Seed:    seed,
			}
			for i := range int(warmupRuns) {
				log.Debug("warmup run", "run", i+1)
				if _, err := d.Run(ctx, basePlan); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup run %d: %v", i+1, err), 1)
				}
			}

			fmt.Printf("%-8s %12s %12s %10s\n", "Experts", "Avg", "Tok/s", "Slots")
			for e := int64(1); e <= experts; e *= 2 {
				plan := basePlan
				plan.Experts = int(e)

				var sumDur time.Duration
				var sumTPS float64
				for i := range int(benchRuns) {
					res, err := d.Run(ctx, plan)
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: run %d (experts=%d): %v", i+1, e, err), 1)
					}
					sumDur += res.Duration
					sumTPS += res.TokensPerSec
				}
				n := time.Duration(benchRuns)
				fmt.Printf("%-8d %12s %12.1f %10d\n",
					e, (sumDur / n).Round(time.Microsecond), sumTPS/float64(benchRuns), min(int(e), streams.Slots))
			}

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))
			return nil
		},
	}
}
