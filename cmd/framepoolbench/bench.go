package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/framepool"
	"github.com/gogpu/framepool/device"
	fpimage "github.com/gogpu/framepool/internal/image"
	"github.com/gogpu/framepool/transfer"
)

// frame is a published image travelling from a producer to a consumer,
// together with the reference its handle owns.
type frame struct {
	seq int
	id  framepool.ID
}

// Report summarizes a finished run.
type Report struct {
	Frames  int
	Elapsed time.Duration
	Stats   framepool.Stats
	Device  string
}

// FPS returns frames per second over the whole run.
func (r Report) FPS() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Frames) / r.Elapsed.Seconds()
}

// Print writes a human-readable summary.
func (r Report) Print(w io.Writer) {
	s := r.Stats
	fmt.Fprintf(w, "device:          %s\n", r.Device)
	fmt.Fprintf(w, "frames:          %s in %s (%.1f fps)\n", humanize.Comma(int64(r.Frames)), r.Elapsed.Round(time.Millisecond), r.FPS())
	fmt.Fprintf(w, "allocations:     %s (%s device memory)\n", humanize.Comma(int64(s.Allocations)), humanize.IBytes(s.BytesAllocated))
	fmt.Fprintf(w, "reuses:          %s\n", humanize.Comma(int64(s.Reuses)))
	fmt.Fprintf(w, "pooled buffers:  %d\n", s.Pooled)
	fmt.Fprintf(w, "last image id:   %d\n", s.LastID)
	for _, capacity := range sortedTiers(s.Tiers) {
		fmt.Fprintf(w, "  tier %-10s %d buffers\n", humanize.IBytes(capacity), s.Tiers[capacity])
	}
}

// bench runs w against dev. The caller owns dev.
func bench(ctx context.Context, w Workload, format framepool.Format, dev device.Device) (Report, error) {
	m, err := framepool.New(framepool.Config{Device: dev, ReleaseQueueSize: w.ReleaseQueueSize})
	if err != nil {
		return Report{}, err
	}
	defer func() {
		if err := m.Close(); err != nil {
			framepool.Logger().Warn("framepoolbench: close", "err", err)
		}
	}()

	src, err := sourceImage(w)
	if err != nil {
		return Report{}, err
	}

	reclaimCtx, stopReclaimer := context.WithCancel(ctx)
	reclaimDone := make(chan error, 1)
	go func() { reclaimDone <- m.RunReclaimer(reclaimCtx, w.ReclaimInterval) }()
	defer func() {
		stopReclaimer()
		<-reclaimDone
	}()

	start := time.Now()
	frames := make(chan frame, w.Consumers*2)

	g, gctx := errgroup.WithContext(ctx)
	producers, pctx := errgroup.WithContext(gctx)
	for p := range w.Producers {
		producers.Go(func() error {
			return produce(pctx, m, p, w, format, src, frames)
		})
	}
	g.Go(func() error {
		defer close(frames)
		return producers.Wait()
	})
	for c := range w.Consumers {
		g.Go(func() error {
			return consume(gctx, m, c, w, format, frames)
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	// Let every stream finish, then apply the releases they posted.
	for _, name := range m.Streams() {
		s, err := m.Stream(name)
		if err != nil {
			return Report{}, err
		}
		if err := dev.SynchronizeStream(s); err != nil {
			return Report{}, fmt.Errorf("stream %s: %w", name, err)
		}
	}
	if _, err := m.ProcessAutoreleaseQueue(); err != nil {
		return Report{}, err
	}

	return Report{
		Frames:  w.Frames,
		Elapsed: time.Since(start),
		Stats:   m.Stats(),
		Device:  dev.Name(),
	}, nil
}

// produce uploads producer p's share of frames on its own stream.
func produce(ctx context.Context, m *framepool.Manager, p int, w Workload, format framepool.Format,
	src image.Image, out chan<- frame) error {
	s, err := m.Stream(fmt.Sprintf("producer-%d", p))
	if err != nil {
		return err
	}
	for seq := p; seq < w.Frames; seq += w.Producers {
		img, err := transfer.Upload(m, s, src, format)
		if err != nil {
			return fmt.Errorf("producer %d frame %d: %w", p, seq, err)
		}
		select {
		case out <- frame{seq: seq, id: img.ID}:
		case <-ctx.Done():
			return errors.Join(ctx.Err(), m.ReleaseImage(img.ID))
		}
	}
	return nil
}

// consume reads frames on consumer c's stream and releases them
// asynchronously. The last frame is downloaded when a dump path is set.
func consume(ctx context.Context, m *framepool.Manager, c int, w Workload, format framepool.Format,
	in <-chan frame) error {
	s, err := m.Stream(fmt.Sprintf("consumer-%d", c))
	if err != nil {
		return err
	}
	for {
		var f frame
		var ok bool
		select {
		case f, ok = <-in:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := consumeFrame(m, s, w, format, f); err != nil {
			return fmt.Errorf("consumer %d frame %d: %w", c, f.seq, err)
		}
	}
}

// consumeFrame reads f on stream s and releases every reference it holds,
// the one handed over by the producer included.
func consumeFrame(m *framepool.Manager, s device.StreamID, w Workload, format framepool.Format, f frame) error {
	id := f.id
	if w.Process {
		img, err := transfer.Process(m, s, id, format, transfer.CopyKernel)
		if err != nil {
			return errors.Join(err, m.ReleaseImage(id))
		}
		// Process holds its own read of the input until the kernel has run.
		if err := m.ReleaseImage(id); err != nil {
			return errors.Join(err, m.ReleaseImage(img.ID))
		}
		id = img.ID
	}

	if w.Dump != "" && f.seq == w.Frames-1 {
		return errors.Join(dump(m, s, id, w.Dump), m.ReleaseImage(id))
	}

	ra, err := m.RequestReadAccess(id)
	if err != nil {
		return err
	}
	if err := m.ReleaseImage(id); err != nil {
		return errors.Join(err, m.Release(ra))
	}
	if err := m.Device().StreamWaitEvent(s, ra.ReadyEvent()); err != nil {
		return errors.Join(err, m.Release(ra))
	}
	return m.Autorelease(ra, s)
}

func dump(m *framepool.Manager, s device.StreamID, id framepool.ID, path string) error {
	rgba, err := transfer.Download(m, s, id)
	if err != nil {
		return err
	}
	buf, err := fpimage.FromStdImage(rgba, framepool.FormatRGBA8)
	if err != nil {
		return err
	}
	return buf.Save(path)
}

func sortedTiers(tiers map[uint64]int) []uint64 {
	return slices.Sorted(maps.Keys(tiers))
}

// sourceImage loads w.Source scaled to the frame size, or draws a test card.
func sourceImage(w Workload) (image.Image, error) {
	if w.Source != "" {
		loaded, err := fpimage.LoadImage(w.Source, framepool.FormatRGBA8)
		if err != nil {
			return nil, err
		}
		buf, err := fpimage.NewImageBuf(w.Width, w.Height, framepool.FormatRGBA8)
		if err != nil {
			return nil, err
		}
		buf.DrawFrom(loaded.ToStdImage())
		return buf.ToStdImage(), nil
	}

	img := image.NewNRGBA(image.Rect(0, 0, w.Width, w.Height))
	for y := range w.Height {
		for x := range w.Width {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / w.Width),
				G: uint8(y * 255 / w.Height),
				B: uint8((x ^ y) & 0xff),
				A: 255,
			})
		}
	}
	return img, nil
}
