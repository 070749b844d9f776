package cli

// This file contains the offline video commands: frame harvesting and
// duration resolution of an existing recording.

import (
	"fmt"
	"path/filepath"

	"github.com/SeldomQA/seldom-atx/duration"
	"github.com/SeldomQA/seldom-atx/model"
	"github.com/SeldomQA/seldom-atx/video"
	"github.com/urfave/cli/v2"
)

func (a *App) frames(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return fmt.Errorf("expected <video> <out-dir>, got %d arguments", ctx.NArg())
	}
	videoPath, outDir := ctx.Args().Get(0), ctx.Args().Get(1)

	info, err := video.NewFFmpeg(a.logger).ExtractAll(ctx.Context, videoPath, outDir)
	if err != nil {
		return err
	}

	a.logger.Info().
		Str("video", videoPath).
		Int("frames", info.Frames).
		Float64("fps", info.FPS).
		Msg("Frames extracted")
	fmt.Printf("%d frames written to %s\n", info.Frames, outDir)
	fmt.Printf("Copy the chosen frames to %s/<Platform>KeyFrames/<name>_start.jpg and <name>_stop.jpg\n", a.cfg.KeyframesDir)
	return nil
}

func (a *App) resolve(ctx *cli.Context) error {
	frameSeconds := a.cfg.FrameSeconds
	if ctx.IsSet("frame-seconds") {
		frameSeconds = ctx.Float64("frame-seconds")
	}

	refs, err := duration.LoadReferences(ctx.String("start"), ctx.String("stop"))
	if err != nil {
		return err
	}

	videoPath := ctx.String("video")
	ffmpeg := video.NewFFmpeg(a.logger)
	info, err := ffmpeg.Probe(ctx.Context, videoPath)
	if err != nil {
		return err
	}

	framesDir := filepath.Join(filepath.Dir(videoPath), "frames")
	res, err := duration.NewResolver(a.logger, ffmpeg, frameSeconds).Resolve(ctx.Context, 0,
		&model.RecordingArtifact{Path: videoPath, FPS: info.FPS}, framesDir, refs)
	if err != nil {
		return err
	}

	fmt.Printf("Start: frame %d (distance %d) %s\n", res.Start.Index, res.Start.Distance, res.Start.Path)
	fmt.Printf("Stop:  frame %d (distance %d) %s\n", res.Stop.Index, res.Stop.Distance, res.Stop.Path)
	fmt.Printf("Duration: %.2fs\n", res.Seconds)
	return nil
}
