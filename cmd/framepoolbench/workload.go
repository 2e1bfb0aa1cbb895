package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/framepool"
)

// Workload describes one benchmark run. Flags fill it first; a YAML file
// given with --config overrides every field it sets.
type Workload struct {
	// Backend selects the device: "sim" or "hal".
	Backend string `yaml:"backend"`

	Producers int `yaml:"producers"`
	Consumers int `yaml:"consumers"`
	Frames    int `yaml:"frames"`
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`

	// Format is a framepool.Format name such as "RGBA8".
	Format string `yaml:"format"`

	// Process runs a device copy kernel on every frame before it is consumed.
	Process bool `yaml:"process"`

	// MemoryLimit caps simulated device memory, e.g. "512 MiB". Empty means
	// unlimited.
	MemoryLimit string `yaml:"memory_limit"`

	ReleaseQueueSize int           `yaml:"release_queue_size"`
	ReclaimInterval  time.Duration `yaml:"reclaim_interval"`

	// Source is an optional PNG or JPEG used as frame content.
	Source string `yaml:"source"`

	// Dump writes the last consumed frame to this PNG or JPEG path.
	Dump string `yaml:"dump"`

	LogLevel string `yaml:"log_level"`
}

func defaultWorkload() Workload {
	return Workload{
		Backend:          "sim",
		Producers:        2,
		Consumers:        2,
		Frames:           500,
		Width:            1920,
		Height:           1080,
		Format:           framepool.FormatRGBA8.String(),
		ReleaseQueueSize: framepool.DefaultReleaseQueueSize,
		ReclaimInterval:  framepool.DefaultReclaimInterval,
		LogLevel:         "warn",
	}
}

// addFlags binds w's fields to flagSet, using the current values as defaults.
func (w *Workload) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&w.Backend, "backend", w.Backend, "device backend: sim or hal")
	flagSet.IntVarP(&w.Producers, "producers", "p", w.Producers, "number of producer streams")
	flagSet.IntVarP(&w.Consumers, "consumers", "c", w.Consumers, "number of consumer streams")
	flagSet.IntVarP(&w.Frames, "frames", "n", w.Frames, "total frames to produce")
	flagSet.IntVar(&w.Width, "width", w.Width, "frame width in pixels")
	flagSet.IntVar(&w.Height, "height", w.Height, "frame height in pixels")
	flagSet.StringVar(&w.Format, "format", w.Format, "pixel format (Gray8, RGB8, RGBA8, BGRA8, ...)")
	flagSet.BoolVar(&w.Process, "process", w.Process, "run a copy kernel on each frame")
	flagSet.StringVar(&w.MemoryLimit, "memory-limit", w.MemoryLimit, "simulated device memory limit, e.g. 256MiB")
	flagSet.IntVar(&w.ReleaseQueueSize, "release-queue", w.ReleaseQueueSize, "preallocated release queue slots")
	flagSet.DurationVar(&w.ReclaimInterval, "reclaim-interval", w.ReclaimInterval, "release queue drain interval")
	flagSet.StringVar(&w.Source, "source", w.Source, "PNG or JPEG used as frame content")
	flagSet.StringVar(&w.Dump, "dump", w.Dump, "write the last frame to this image file")
	flagSet.StringVar(&w.LogLevel, "log-level", w.LogLevel, "log level: debug, info, warn or error")
}

// loadWorkloadFile overlays the YAML file at path onto w.
func loadWorkloadFile(path string, w *Workload) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read workload %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, w); err != nil {
		return fmt.Errorf("parse workload %s: %w", path, err)
	}
	return nil
}

// validate checks w and resolves its derived values.
func (w *Workload) validate() (framepool.Format, uint64, error) {
	format, ok := framepool.ParseFormat(w.Format)
	if !ok {
		return 0, 0, fmt.Errorf("unknown format %q", w.Format)
	}
	switch {
	case w.Backend != "sim" && w.Backend != "hal":
		return 0, 0, fmt.Errorf("unknown backend %q", w.Backend)
	case w.Producers < 1 || w.Consumers < 1:
		return 0, 0, fmt.Errorf("need at least one producer and one consumer")
	case w.Frames < 1:
		return 0, 0, fmt.Errorf("frames must be positive")
	case w.Width < 1 || w.Height < 1:
		return 0, 0, fmt.Errorf("invalid frame size %dx%d", w.Width, w.Height)
	case w.ReclaimInterval <= 0:
		return 0, 0, fmt.Errorf("reclaim interval must be positive")
	}

	var limit uint64
	if w.MemoryLimit != "" {
		var err error
		limit, err = humanize.ParseBytes(w.MemoryLimit)
		if err != nil {
			return 0, 0, fmt.Errorf("memory limit: %w", err)
		}
	}
	return format, limit, nil
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}
