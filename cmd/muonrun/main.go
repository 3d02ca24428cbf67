// Command muonrun is a small CLI harness exercising the muonrun engine
// end to end, the way the teacher's cmd/ublk-mem exercises backend.go.
// Full CLI/glob-based test selection and symbol scanning remain the
// spec's non-goals; this entrypoint only wires flags onto a single
// RunLibrary call.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ehrlich-b/muonrun"
	"github.com/ehrlich-b/muonrun/examples/goloader"
	"github.com/ehrlich-b/muonrun/internal/logging"
	"github.com/ehrlich-b/muonrun/internal/reporter"
)

func main() {
	// Must run before any flag parsing: a fork-mode child is this same
	// binary re-exec'd with a sentinel environment variable set, and
	// this is the hook that recognizes and services it.
	muonrun.MaybeRunChild(goloader.New())

	app := &cli.App{
		Name:      "muonrun",
		Usage:     "run the tests registered with the goloader example library",
		ArgsUsage: "<library>",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "timeout",
				Usage: "terminate an unresponsive test after this many milliseconds",
				Value: muonrun.DefaultTimeoutMillis,
			},
			&cli.IntFlag{
				Name:  "iterations",
				Usage: "run each test this many times unless it fails or declares otherwise",
				Value: muonrun.DefaultIterations,
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "run tests in-process instead of under fork isolation",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "engine log format: console or json",
				Value: "console",
			},
			&cli.StringFlag{
				Name:  "resource",
				Usage: "TOML resource file overriding the defaults above",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "muonrun:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one library argument is required", 2)
	}
	library := c.Args().First()

	logConfig := logging.DefaultConfig()
	logConfig.JSON = c.String("log-format") == "json"
	logging.SetDefault(logging.NewLogger(logConfig))

	params := muonrun.Params{
		Loader:               goloader.New(),
		Logger:               reporter.NewConsole(),
		DefaultTimeoutMillis: c.Int64("timeout"),
		DefaultIterations:    c.Int("iterations"),
		MaxLogLevel:          muonrun.LevelInfo,
		Debug:                c.Bool("debug"),
	}

	if path := c.String("resource"); path != "" {
		cfg, err := muonrun.LoadConfig(path)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		cfg.ApplyTo(&params)
	}

	summary, err := muonrun.RunLibrary(library, params)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	fmt.Printf("\n%d tests, %d passed, %d failed\n", summary.Total, summary.Passed, summary.Failed)
	if summary.Failed > 0 {
		os.Exit(1)
	}
	return nil
}
