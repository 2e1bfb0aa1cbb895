// Package transfer moves frames between host images and a framepool.Manager.
//
// Upload and Process are stream ordered and return as soon as their device
// work is queued. Download is the copy-and-wait path: it blocks until the
// frame is on the host.
package transfer

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/framepool"
	"github.com/gogpu/framepool/device"
	fpimage "github.com/gogpu/framepool/internal/image"
)

// Upload converts img to format, copies it into a pooled device buffer on
// stream and publishes it. The returned image is readable once consumers wait
// on its ready event. The caller owns its reference and gives it back with
// Manager.ReleaseImage.
func Upload(m *framepool.Manager, stream device.StreamID, img image.Image, format framepool.Format) (framepool.Image, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return framepool.Image{}, fmt.Errorf("%w: upload of %dx%d image", framepool.ErrInvalidDimensions, width, height)
	}
	if !format.IsValid() {
		return framepool.Image{}, fmt.Errorf("%w: %d", framepool.ErrInvalidFormat, format)
	}

	staging, err := fpimage.GetFromDefault(width, height, format)
	if err != nil {
		return framepool.Image{}, fmt.Errorf("transfer: staging frame: %w", err)
	}
	staging.DrawFrom(img)

	wa, err := m.RequestOutputImage(width, height, format)
	if err != nil {
		fpimage.PutToDefault(staging)
		return framepool.Image{}, err
	}

	dev := m.Device()
	if err := dev.CopyHostToDevice(stream, wa.Buffer(), wa.Pitch(),
		staging.Data(), uint64(staging.Stride()), uint64(format.RowBytes(width)), height); err != nil {
		fpimage.PutToDefault(staging)
		return framepool.Image{}, errors.Join(fmt.Errorf("transfer: upload: %w", err), m.Release(wa))
	}

	// The staging frame goes back to the pool once the copy has executed.
	if err := dev.AddCallback(stream, func(error) { fpimage.PutToDefault(staging) }); err != nil {
		framepool.Logger().Debug("transfer: staging frame not recycled", "err", err)
	}

	result, err := m.Finalise(wa, stream)
	if err != nil {
		return framepool.Image{}, errors.Join(err, abandon(m, stream, wa))
	}
	framepool.Logger().Debug("transfer: uploaded", "image", result.ID, "width", width, "height", height, "format", format)
	return result, nil
}

// Download copies a published image to the host and waits for the copy. The
// read reference it takes is released before returning; references the
// caller holds on id are untouched.
func Download(m *framepool.Manager, stream device.StreamID, id framepool.ID) (*image.RGBA, error) {
	staging, err := download(m, stream, id)
	if err != nil {
		return nil, err
	}
	defer fpimage.PutToDefault(staging)
	return staging.ToRGBA(), nil
}

func download(m *framepool.Manager, stream device.StreamID, id framepool.ID) (buf *fpimage.ImageBuf, err error) {
	ra, err := m.RequestReadAccess(id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := m.Release(ra); relErr != nil {
			err = errors.Join(err, relErr)
		}
	}()

	if ra.Width() == 0 || ra.Height() == 0 {
		return nil, fmt.Errorf("%w: image %d is empty", framepool.ErrInvalidDimensions, id)
	}
	staging, err := fpimage.GetFromDefault(ra.Width(), ra.Height(), ra.Format())
	if err != nil {
		return nil, fmt.Errorf("transfer: staging frame: %w", err)
	}

	dev := m.Device()
	if err := dev.StreamWaitEvent(stream, ra.ReadyEvent()); err != nil {
		return nil, fmt.Errorf("transfer: download image %d: %w", id, err)
	}
	if err := dev.CopyDeviceToHost(stream, staging.Data(), uint64(staging.Stride()),
		ra.Buffer(), ra.Pitch(), uint64(ra.Format().RowBytes(ra.Width())), ra.Height()); err != nil {
		return nil, fmt.Errorf("transfer: download image %d: %w", id, err)
	}
	if err := dev.SynchronizeStream(stream); err != nil {
		return nil, fmt.Errorf("transfer: download image %d: %w", id, err)
	}
	return staging, nil
}

// Process runs kernel on stream to turn image id into a new image of the
// given format and the same size. Process reads the input under its own
// reference, released once the stream has executed the kernel. The caller
// owns the returned image's reference.
func Process(m *framepool.Manager, stream device.StreamID, id framepool.ID, format framepool.Format, kernel Kernel) (framepool.Image, error) {
	ra, err := m.RequestReadAccess(id)
	if err != nil {
		return framepool.Image{}, err
	}
	wa, err := m.RequestOutputImage(ra.Width(), ra.Height(), format)
	if err != nil {
		return framepool.Image{}, errors.Join(err, m.Release(ra))
	}

	dev := m.Device()
	if err := dev.StreamWaitEvent(stream, ra.ReadyEvent()); err != nil {
		err = fmt.Errorf("transfer: process image %d: %w", id, err)
		return framepool.Image{}, errors.Join(err, m.Release(wa), m.Release(ra))
	}
	if err := kernel.Run(dev, stream, wa, ra); err != nil {
		err = fmt.Errorf("transfer: process image %d: %w", id, err)
		return framepool.Image{}, errors.Join(err, abandon(m, stream, wa), abandon(m, stream, ra))
	}
	img, err := m.FinaliseAndAutorelease(wa, ra, stream)
	if err != nil {
		err = errors.Join(err, abandon(m, stream, wa), abandon(m, stream, ra))
		if img.IsValid() {
			err = errors.Join(err, m.ReleaseImage(img.ID))
		}
		return framepool.Image{}, err
	}
	return img, nil
}

// abandon drops acc after the work already queued on stream, falling back to
// an immediate release.
func abandon(m *framepool.Manager, stream device.StreamID, acc framepool.Accessor) error {
	if !acc.Valid() {
		return nil
	}
	if err := m.Autorelease(acc, stream); err != nil {
		return m.Release(acc)
	}
	return nil
}
