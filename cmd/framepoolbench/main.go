// Command framepoolbench drives concurrent producers and consumers through a
// framepool.Manager and reports pool statistics.
//
// Producers upload frames on their own streams; consumers read each frame on
// theirs, optionally run a device copy kernel, and release it
// asynchronously. The run ends when every frame has been consumed and every
// release has been applied.
//
// Usage:
//
//	framepoolbench --frames 1000 --producers 4 --consumers 2 --width 1280 --height 720
//	framepoolbench --config workload.yaml --backend hal
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/gogpu/framepool"
	"github.com/gogpu/framepool/device"
	"github.com/gogpu/framepool/device/halgpu"
	"github.com/gogpu/framepool/device/sim"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	w := defaultWorkload()
	var configPath string

	flagSet := newFlagSet(&w, &configPath)
	flagSet.SetOutput(stderr)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	if configPath != "" {
		if err := loadWorkloadFile(configPath, &w); err != nil {
			return err
		}
	}

	format, limit, err := w.validate()
	if err != nil {
		return err
	}
	level, err := parseLevel(w.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	framepool.SetLogger(logger)
	defer framepool.SetLogger(nil)

	dev, err := openDevice(w.Backend, limit, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			logger.Warn("framepoolbench: device close", "err", err)
		}
	}()

	report, err := bench(ctx, w, format, dev)
	if err != nil {
		return err
	}
	report.Print(stdout)
	return nil
}

func newFlagSet(w *Workload, configPath *string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("framepoolbench", pflag.ContinueOnError)
	w.addFlags(flagSet)
	flagSet.StringVar(configPath, "config", "", "YAML workload file; its fields override flags")
	return flagSet
}

func openDevice(backend string, limit uint64, logger *slog.Logger) (device.Device, error) {
	switch backend {
	case "hal":
		dev, err := halgpu.Open()
		if err != nil {
			return nil, err
		}
		dev.SetLogger(logger)
		return dev, nil
	default:
		dev := sim.New(sim.Config{MemoryLimit: limit})
		dev.SetLogger(logger)
		return dev, nil
	}
}
