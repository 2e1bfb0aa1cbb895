package transfer

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/framepool"
	"github.com/gogpu/framepool/device"
	"github.com/gogpu/framepool/device/sim"
)

func newTestManager(t *testing.T) (*framepool.Manager, *sim.Device) {
	t.Helper()
	dev := sim.New(sim.Config{})
	m, err := framepool.New(framepool.Config{Device: dev})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.Close()
		_ = dev.Close()
	})
	return m, dev
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8(x + y), A: 255})
		}
	}
	return img
}

// drain waits for stream s and applies every queued release.
func drain(t *testing.T, m *framepool.Manager, s device.StreamID) {
	t.Helper()
	require.NoError(t, m.Device().SynchronizeStream(s))
	_, err := m.ProcessAutoreleaseQueue()
	require.NoError(t, err)
}

func TestUploadDownload(t *testing.T) {
	for _, f := range []framepool.Format{framepool.FormatRGBA8, framepool.FormatBGRA8, framepool.FormatRGBAPremul} {
		t.Run(f.String(), func(t *testing.T) {
			m, _ := newTestManager(t)
			s, err := m.Stream("io")
			require.NoError(t, err)

			src := gradient(37, 11)
			img, err := Upload(m, s, src, f)
			require.NoError(t, err)
			assert.Equal(t, 37, img.Width)
			assert.Equal(t, 11, img.Height)
			assert.Equal(t, f, img.Format)

			got, err := Download(m, s, img.ID)
			require.NoError(t, err)
			assert.Equal(t, src.Pix, got.Pix)
			assert.Equal(t, 1, m.Stats().Valid, "download leaves the upload handle")

			require.NoError(t, m.ReleaseImage(img.ID))
			drain(t, m, s)
			st := m.Stats()
			assert.Zero(t, st.InFlight)
			assert.Zero(t, st.Valid)
			assert.Equal(t, 1, st.Pooled)
		})
	}
}

func TestUploadGray(t *testing.T) {
	m, _ := newTestManager(t)
	s, err := m.Stream("io")
	require.NoError(t, err)

	src := image.NewGray(image.Rect(0, 0, 4, 2))
	src.SetGray(3, 1, color.Gray{Y: 99})

	img, err := Upload(m, s, src, framepool.FormatGray8)
	require.NoError(t, err)
	assert.Equal(t, uint64(framepool.PitchAlignment), img.Pitch)

	got, err := Download(m, s, img.ID)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 99, G: 99, B: 99, A: 255}, got.RGBAAt(3, 1))
}

func TestUploadInvalid(t *testing.T) {
	m, _ := newTestManager(t)
	s, err := m.Stream("io")
	require.NoError(t, err)

	_, err = Upload(m, s, image.NewRGBA(image.Rectangle{}), framepool.FormatRGBA8)
	assert.ErrorIs(t, err, framepool.ErrInvalidDimensions)

	_, err = Upload(m, s, gradient(2, 2), framepool.Format(99))
	assert.ErrorIs(t, err, framepool.ErrInvalidFormat)
}

func TestUploadInvalidStreamReleases(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := Upload(m, device.StreamID(999), gradient(8, 8), framepool.FormatRGBA8)
	require.Error(t, err)

	st := m.Stats()
	assert.Zero(t, st.InFlight)
	assert.Zero(t, st.Valid)
	assert.Equal(t, 1, st.Pooled)
}

func TestUploadIsAsync(t *testing.T) {
	m, dev := newTestManager(t)
	s, err := m.Stream("capture")
	require.NoError(t, err)
	reader, err := m.Stream("reader")
	require.NoError(t, err)

	require.NoError(t, dev.Pause(s))
	img, err := Upload(m, s, gradient(16, 16), framepool.FormatRGBA8)
	require.NoError(t, err)
	pending, err := dev.Pending(s)
	require.NoError(t, err)
	assert.Positive(t, pending, "copy is queued, not executed")
	require.NoError(t, dev.Resume(s))

	got, err := Download(m, reader, img.ID)
	require.NoError(t, err)
	assert.Equal(t, gradient(16, 16).Pix, got.Pix)
}

func TestDownloadUnknown(t *testing.T) {
	m, _ := newTestManager(t)
	s, err := m.Stream("io")
	require.NoError(t, err)

	_, err = Download(m, s, framepool.ID(42))
	assert.ErrorIs(t, err, framepool.ErrInvalidAccessor)
}

func TestProcessCopy(t *testing.T) {
	m, _ := newTestManager(t)
	capture, err := m.Stream("capture")
	require.NoError(t, err)
	work, err := m.Stream("work")
	require.NoError(t, err)

	src := gradient(20, 5)
	in, err := Upload(m, capture, src, framepool.FormatRGBA8)
	require.NoError(t, err)

	out, err := Process(m, work, in.ID, framepool.FormatRGBA8, CopyKernel)
	require.NoError(t, err)
	assert.NotEqual(t, in.ID, out.ID)
	assert.Equal(t, in.Width, out.Width)

	got, err := Download(m, work, out.ID)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, got.Pix)

	drain(t, m, work)
	assert.Equal(t, 2, m.Stats().Valid, "both handles still held")

	require.NoError(t, m.ReleaseImage(in.ID))
	require.NoError(t, m.ReleaseImage(out.ID))
	st := m.Stats()
	assert.Zero(t, st.Valid)
	assert.Zero(t, st.InFlight)
	assert.Equal(t, 2, st.Pooled)
}

func TestProcessFill(t *testing.T) {
	m, _ := newTestManager(t)
	s, err := m.Stream("work")
	require.NoError(t, err)

	in, err := Upload(m, s, gradient(4, 4), framepool.FormatRGBA8)
	require.NoError(t, err)

	out, err := Process(m, s, in.ID, framepool.FormatRGBA8, FillKernel(0xff))
	require.NoError(t, err)

	got, err := Download(m, s, out.ID)
	require.NoError(t, err)
	for _, b := range got.Pix {
		require.Equal(t, byte(0xff), b)
	}
	require.NoError(t, m.ReleaseImage(in.ID))
	require.NoError(t, m.ReleaseImage(out.ID))
}

func TestProcessFormatMismatch(t *testing.T) {
	m, _ := newTestManager(t)
	s, err := m.Stream("work")
	require.NoError(t, err)

	in, err := Upload(m, s, gradient(4, 4), framepool.FormatRGBA8)
	require.NoError(t, err)

	_, err = Process(m, s, in.ID, framepool.FormatGray8, CopyKernel)
	assert.ErrorIs(t, err, ErrFormatMismatch)
	require.NoError(t, m.ReleaseImage(in.ID))

	drain(t, m, s)
	st := m.Stats()
	assert.Zero(t, st.InFlight, "output abandoned")
	assert.Zero(t, st.Valid, "input read released")
	assert.Equal(t, 2, st.Pooled)
}

func TestProcessUnknownInput(t *testing.T) {
	m, _ := newTestManager(t)
	s, err := m.Stream("work")
	require.NoError(t, err)

	_, err = Process(m, s, framepool.ID(7), framepool.FormatRGBA8, CopyKernel)
	assert.ErrorIs(t, err, framepool.ErrInvalidAccessor)
}
