package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/framepool"
	"github.com/gogpu/framepool/device/sim"
	fpimage "github.com/gogpu/framepool/internal/image"
)

func TestWorkloadFlags(t *testing.T) {
	w := defaultWorkload()
	var configPath string
	flagSet := newFlagSet(&w, &configPath)

	require.NoError(t, flagSet.Parse([]string{"-p", "3", "--consumers=5", "-n", "10", "--format", "BGRA8", "--process"}))
	assert.Equal(t, 3, w.Producers)
	assert.Equal(t, 5, w.Consumers)
	assert.Equal(t, 10, w.Frames)
	assert.Equal(t, "BGRA8", w.Format)
	assert.True(t, w.Process)
	assert.Equal(t, 1920, w.Width, "unset flags keep defaults")
}

func TestWorkloadFileOverridesFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workload.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
frames: 64
width: 320
memory_limit: 64 MiB
reclaim_interval: 5ms
`), 0o600))

	w := defaultWorkload()
	w.Frames = 7
	w.Producers = 9
	require.NoError(t, loadWorkloadFile(path, &w))

	assert.Equal(t, 64, w.Frames)
	assert.Equal(t, 320, w.Width)
	assert.Equal(t, 9, w.Producers, "fields absent from the file are kept")
	assert.Equal(t, 5*time.Millisecond, w.ReclaimInterval)

	format, limit, err := w.validate()
	require.NoError(t, err)
	assert.Equal(t, framepool.FormatRGBA8, format)
	assert.Equal(t, uint64(64<<20), limit)
}

func TestWorkloadFileErrors(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, loadWorkloadFile(filepath.Join(dir, "missing.yaml"), &Workload{}))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("frames: [1, 2"), 0o600))
	assert.Error(t, loadWorkloadFile(bad, &Workload{}))
}

func TestWorkloadValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Workload)
	}{
		{"format", func(w *Workload) { w.Format = "YUV" }},
		{"backend", func(w *Workload) { w.Backend = "metal" }},
		{"producers", func(w *Workload) { w.Producers = 0 }},
		{"frames", func(w *Workload) { w.Frames = 0 }},
		{"size", func(w *Workload) { w.Height = 0 }},
		{"interval", func(w *Workload) { w.ReclaimInterval = 0 }},
		{"memory", func(w *Workload) { w.MemoryLimit = "lots" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := defaultWorkload()
			tt.mutate(&w)
			_, _, err := w.validate()
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", level.String())

	_, err = parseLevel("loud")
	assert.Error(t, err)
}

func smallWorkload() Workload {
	w := defaultWorkload()
	w.Frames = 40
	w.Width = 64
	w.Height = 16
	w.Producers = 3
	w.Consumers = 2
	w.ReclaimInterval = time.Millisecond
	return w
}

func TestBench(t *testing.T) {
	for _, process := range []bool{false, true} {
		w := smallWorkload()
		w.Process = process

		dev := sim.New(sim.Config{})
		t.Cleanup(func() { _ = dev.Close() })

		report, err := bench(context.Background(), w, framepool.FormatRGBA8, dev)
		require.NoError(t, err)

		assert.Equal(t, 40, report.Frames)
		assert.Equal(t, sim.DefaultName, report.Device)
		assert.Zero(t, report.Stats.Valid, "every frame was released")
		assert.Zero(t, report.Stats.InFlight)
		assert.Equal(t, int(report.Stats.Allocations), report.Stats.Pooled)
		requests := uint64(w.Frames)
		if process {
			requests *= 2
		}
		assert.Equal(t, requests, report.Stats.Allocations+report.Stats.Reuses)
		assert.Zero(t, dev.Stats().Buffers, "manager close frees the pool")
	}
}

func TestBenchDump(t *testing.T) {
	w := smallWorkload()
	w.Process = true
	w.Dump = filepath.Join(t.TempDir(), "last.png")

	dev := sim.New(sim.Config{})
	t.Cleanup(func() { _ = dev.Close() })

	_, err := bench(context.Background(), w, framepool.FormatRGBA8, dev)
	require.NoError(t, err)

	got, err := fpimage.LoadImage(w.Dump, framepool.FormatRGBA8)
	require.NoError(t, err)
	assert.Equal(t, w.Width, got.Width())
	r, g, _, a := got.GetRGBA(w.Width-1, w.Height-1)
	assert.Equal(t, uint8((w.Width-1)*255/w.Width), r)
	assert.Equal(t, uint8((w.Height-1)*255/w.Height), g)
	assert.Equal(t, uint8(255), a)
}

func TestBenchOutOfMemory(t *testing.T) {
	w := smallWorkload()
	dev := sim.New(sim.Config{MemoryLimit: 1024})
	t.Cleanup(func() { _ = dev.Close() })

	_, err := bench(context.Background(), w, framepool.FormatRGBA8, dev)
	assert.ErrorIs(t, err, framepool.ErrAllocationFailed)
}

func TestRun(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--frames", "12", "--width", "32", "--height", "8", "--log-level", "error",
	}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "frames:          12")
	assert.Contains(t, stdout.String(), "device:          sim")
}

func TestRunErrors(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(context.Background(), []string{"--format", "nope"}, &out, &out))
	assert.Error(t, run(context.Background(), []string{"extra"}, &out, &out))
	assert.Error(t, run(context.Background(), []string{"--bogus"}, &out, &out))
	assert.NoError(t, run(context.Background(), []string{"--help"}, &out, &out))
}
