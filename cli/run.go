package cli

// This file contains the run command: a local command executed as the
// instrumented action on every repetition.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/SeldomQA/seldom-atx/capture"
	"github.com/SeldomQA/seldom-atx/config"
	"github.com/SeldomQA/seldom-atx/instrument"
	"github.com/SeldomQA/seldom-atx/model"
	"github.com/SeldomQA/seldom-atx/report"
	"github.com/SeldomQA/seldom-atx/store"
	"github.com/urfave/cli/v2"
)

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "platform", Usage: "Device platform (Android or iOS)", EnvVars: []string{config.EnvPrefix + "PLATFORM"}},
		&cli.StringFlag{Name: "device", Aliases: []string{"s"}, Usage: "Device serial or UDID", EnvVars: []string{config.EnvPrefix + "DEVICE"}},
		&cli.StringFlag{Name: "package", Usage: "Package or bundle ID of the app under test", EnvVars: []string{config.EnvPrefix + "PACKAGE"}},
		&cli.StringSliceFlag{Name: "capability", Aliases: []string{"C"}, Usage: "Capability to enable (repeatable): duration, performance, log, record"},
		&cli.IntFlag{Name: "repetitions", Aliases: []string{"r"}, Usage: "Number of repetitions (default: duration_times when measuring a duration, else 1)"},
		&cli.StringFlag{Name: "name", Usage: "Action name, also the keyframe file prefix", Required: true},
		&cli.StringFlag{Name: "class", Usage: "Test suite the action belongs to"},
		&cli.StringFlag{Name: "file", Usage: "Test file the action belongs to"},
		&cli.StringFlag{Name: "desc", Usage: "Description of the action"},
		&cli.BoolFlag{Name: "auto-record", Usage: "Record the whole command (disable when the command signals start and stop itself)", Value: true},
		&cli.Float64Flag{Name: "frame-seconds", Usage: "Length of the start and stop analysis windows in seconds"},
		&cli.Float64Flag{Name: "fps", Usage: "Recording frame rate"},
		&cli.Float64Flag{Name: "memory-threshold", Usage: "Maximum allowed PSS in MB"},
		&cli.Float64Flag{Name: "duration-threshold", Usage: "Maximum allowed average duration in seconds"},
		&cli.StringFlag{Name: "keyframes-dir", Usage: "Directory holding <Platform>KeyFrames/<name>_{start,stop}.jpg"},
	}
}

// applyRunFlags overrides cfg with the flags set on the command line.
func applyRunFlags(ctx *cli.Context, cfg *config.Config) {
	strs := map[string]*string{
		"platform":      &cfg.Platform,
		"device":        &cfg.Device,
		"package":       &cfg.Package,
		"keyframes-dir": &cfg.KeyframesDir,
	}
	for name, dst := range strs {
		if ctx.IsSet(name) {
			*dst = ctx.String(name)
		}
	}
	floats := map[string]*float64{
		"frame-seconds":      &cfg.FrameSeconds,
		"fps":                &cfg.FPS,
		"memory-threshold":   &cfg.MemoryThreshold,
		"duration-threshold": &cfg.DurationThreshold,
	}
	for name, dst := range floats {
		if ctx.IsSet(name) {
			*dst = ctx.Float64(name)
		}
	}
}

func (a *App) run(ctx *cli.Context) error {
	cfg := a.cfg
	applyRunFlags(ctx, &cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	args := removeFirstDashDash(ctx.Args().Slice())
	if len(args) == 0 {
		return fmt.Errorf("no command specified: please provide the command performing the action (e.g. '-- ./open.sh')")
	}

	caps, err := model.ParseCapabilitySet(ctx.StringSlice("capability"))
	if err != nil {
		return err
	}

	setup, err := newDeviceSetup(a.logger, cfg)
	if err != nil {
		return err
	}

	db, err := store.Open(a.logger, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	in := instrument.New(a.logger, cfg, setup.driver, setup.target, db,
		instrument.WithCaptureOptions(setup.options...))

	opts := instrument.Options{
		Case: model.Case{
			File:  ctx.String("file"),
			Class: ctx.String("class"),
			Name:  ctx.String("name"),
			Desc:  ctx.String("desc"),
		},
		Capabilities: caps,
		Repetitions:  ctx.Int("repetitions"),
		AutoRecord:   ctx.Bool("auto-record"),
		Args:         os.Args,
	}

	res, err := in.Run(ctx.Context, opts, a.commandAction(args))
	if res != nil && res.Record != nil {
		a.logger.Info().
			Str("id", res.Record.ID).
			Floats64("durations", res.Record.DurationList).
			Float64("duration_avg", res.Record.DurationAvg).
			Float64("memory_max", res.Record.MemoryMax).
			Str("dir", res.Dir).
			Msg("Run finished")
	}
	var breach *report.ThresholdBreach
	if errors.As(err, &breach) {
		a.logger.Error().Err(err).Msg("Threshold exceeded")
	}
	return err
}

// commandAction runs args once per repetition. The repetition directory is
// exported as SELDOM_REPETITION_DIR; output is shown and saved next to the
// other artifacts of the repetition.
func (a *App) commandAction(args []string) capture.Action {
	return func(ctx context.Context, s *capture.Session) error {
		dir := s.Context().Dir
		a.logger.Debug().
			Strs("args", args).
			Int("repetition", s.Repetition()).
			Msg("Starting action command")

		stdoutFile, err := os.Create(filepath.Join(dir, capture.StdoutFile))
		if err != nil {
			return fmt.Errorf("failed to create stdout file: %w", err)
		}
		defer stdoutFile.Close()
		stderrFile, err := os.Create(filepath.Join(dir, capture.StderrFile))
		if err != nil {
			return fmt.Errorf("failed to create stderr file: %w", err)
		}
		defer stderrFile.Close()

		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		cmd.Env = append(os.Environ(),
			config.EnvPrefix+"REPETITION_DIR="+dir,
			fmt.Sprintf("%sREPETITION=%d", config.EnvPrefix, s.Repetition()),
		)
		cmd.Stdout = io.MultiWriter(os.Stdout, stdoutFile)
		cmd.Stderr = io.MultiWriter(os.Stderr, stderrFile)

		if err := cmd.Run(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				a.logger.Info().
					Int("exit_code", exitErr.ExitCode()).
					Msg("Action command failed")
				return fmt.Errorf("action command failed with exit code %d", exitErr.ExitCode())
			}
			return fmt.Errorf("failed to execute action command: %w", err)
		}
		return nil
	}
}
