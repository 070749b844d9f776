package cli

// This file contains the wiring of a device platform to the capture
// components: driver, screen recorder, sampler and log capturer.

import (
	"fmt"
	"net"
	"strconv"

	"github.com/SeldomQA/seldom-atx/capture"
	"github.com/SeldomQA/seldom-atx/config"
	"github.com/SeldomQA/seldom-atx/device"
	"github.com/SeldomQA/seldom-atx/logcapture"
	"github.com/SeldomQA/seldom-atx/model"
	"github.com/SeldomQA/seldom-atx/recording"
	"github.com/SeldomQA/seldom-atx/sampler"
	"github.com/rs/zerolog"
)

type deviceSetup struct {
	driver  device.Driver
	target  model.Target
	options []capture.Option
}

func newDeviceSetup(logger zerolog.Logger, cfg config.Config) (*deviceSetup, error) {
	platform, err := model.ParsePlatform(cfg.Platform)
	if err != nil {
		return nil, err
	}
	target := model.Target{Platform: platform, DeviceID: cfg.Device, Package: cfg.Package}

	switch platform {
	case model.PlatformAndroid:
		var opts []device.ADBOption
		if cfg.Device != "" {
			opts = append(opts, device.WithSerial(cfg.Device))
		}
		adb := device.NewADB(logger, opts...)
		return &deviceSetup{
			driver: adb,
			target: target,
			options: []capture.Option{
				capture.WithRecorder(func() recording.Controller {
					return recording.NewAndroid(logger, adb, cfg.FPS, recording.DefaultStopDelay)
				}),
				capture.WithSampler(func() sampler.Sampler {
					return sampler.NewAndroid(logger, adb, cfg.Package)
				}),
				capture.WithLogCapturer(logcapture.New(logger, adb)),
			},
		}, nil

	case model.PlatformIOS:
		opts := []device.IOSOption{
			device.WithFrameAddr(net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.FramePort))),
		}
		if cfg.Device != "" {
			opts = append(opts, device.WithUDID(cfg.Device))
		}
		ios := device.NewIOS(logger, opts...)
		return &deviceSetup{
			driver: ios,
			target: target,
			options: []capture.Option{
				capture.WithRecorder(func() recording.Controller {
					return recording.NewIOS(logger, ios, recording.FFmpegWriter("ffmpeg"), cfg.FPS)
				}),
				capture.WithSampler(func() sampler.Sampler {
					return sampler.NewIOS(logger, ios, cfg.Package)
				}),
				capture.WithLogCapturer(logcapture.New(logger, ios)),
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", model.ErrUnknownPlatform, platform)
}
