package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/SeldomQA/seldom-atx/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "seldom-atx"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
	cfg    config.Config
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cfg:    config.Default(),
		cli: &cli.App{
			Name:  AppName,
			Usage: "Measure the performance and duration of mobile app actions",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:    "config",
					Aliases: []string{"c"},
					Usage:   "YAML configuration file",
					EnvVars: []string{config.EnvPrefix + "CONFIG"},
				},
				&cli.StringFlag{
					Name:  "env-file",
					Usage: "File of SELDOM_* variables loaded into the environment",
					Value: ".env",
				},
				&cli.StringFlag{
					Name:  "output-dir",
					Usage: "Directory receiving recordings, frames, charts and manifests",
				},
				&cli.StringFlag{
					Name:  "database",
					Usage: "Path of the sqlite database holding run records",
				},
			},
		},
	}
	app.cli.Before = app.before

	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run a command as an instrumented action against a device",
		ArgsUsage: "[--] <command> [args...]",
		Action:    app.run,
		Flags:     runFlags(),
		Description: `Runs the command once per repetition while the requested capabilities
capture the device. The command is the test action: it drives the app, e.g.
through adb or an automation client.

Capabilities:
  duration      record the screen and measure start to stop keyframe time
  performance   sample CPU, memory and FPS
  log           stream the device log to a file
  record        record the screen and extract every frame (keyframe harvest)

Examples:
  seldom-atx run --package com.example.app --capability performance -- ./open.sh
  seldom-atx run --name open --capability duration --repetitions 5 -- ./open.sh`,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "frames",
		Usage:     "Extract every frame of a recording to harvest keyframes",
		ArgsUsage: "<video> <out-dir>",
		Action:    app.frames,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "resolve",
		Usage:  "Measure the duration between two keyframes in a recording",
		Action: app.resolve,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "video", Usage: "Recording to analyse", Required: true},
			&cli.StringFlag{Name: "start", Usage: "Start keyframe image", Required: true},
			&cli.StringFlag{Name: "stop", Usage: "Stop keyframe image", Required: true},
			&cli.Float64Flag{Name: "frame-seconds", Usage: "Length of the start and stop windows in seconds"},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "diff",
		Usage:     "Compare two images by perceptual hash distance",
		ArgsUsage: "<image1> <image2>",
		Action:    app.diff,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List stored run records",
		Action: app.list,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "case",
				Aliases: []string{"p"},
				Usage:   "Filter by test case name",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:            "view",
		Usage:           "View a run and its artifacts",
		ArgsUsage:       "[ID|INDEX]",
		Action:          app.view,
		SkipFlagParsing: true,
		Description: `View a run from the output directory.

Arguments:
  0           View last run (default)
  -1          View 2nd last run
  <hex-id>    View run matching the ID prefix

Arguments after the run are passed to "go tool pprof" for the sample
profile of the first repetition.

Examples:
  seldom-atx view             # View last run
  seldom-atx view -1          # View 2nd last run
  seldom-atx view abc123 -top # Show the samples of run abc123`,
	})
	return app
}

func (a *App) before(ctx *cli.Context) error {
	if ctx.Bool("verbose") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(ctx.String("env-file")); err != nil {
		return err
	}
	if ctx.IsSet("output-dir") {
		cfg.OutputDir = ctx.String("output-dir")
	}
	if ctx.IsSet("database") {
		cfg.Database = ctx.String("database")
	}
	a.cfg = cfg
	return nil
}

func (a *App) Run(ctx context.Context, args []string) error {
	return a.cli.RunContext(ctx, args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && len(commit) >= 8 {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}
