package transfer

import (
	"errors"
	"fmt"

	"github.com/gogpu/framepool"
	"github.com/gogpu/framepool/device"
)

// ErrFormatMismatch is returned by kernels that cannot convert formats.
var ErrFormatMismatch = errors.New("transfer: format mismatch")

// Kernel queues the device work that produces dst from src on stream.
// Implementations must not block on the stream.
type Kernel interface {
	Run(dev device.Device, stream device.StreamID, dst *framepool.WriteAccessor, src *framepool.ReadAccessor) error
}

// KernelFunc adapts a function to Kernel.
type KernelFunc func(dev device.Device, stream device.StreamID, dst *framepool.WriteAccessor, src *framepool.ReadAccessor) error

// Run calls f.
func (f KernelFunc) Run(dev device.Device, stream device.StreamID, dst *framepool.WriteAccessor, src *framepool.ReadAccessor) error {
	return f(dev, stream, dst, src)
}

// CopyKernel copies src into dst row by row. Both must share a format.
var CopyKernel Kernel = KernelFunc(copyRows)

func copyRows(dev device.Device, stream device.StreamID, dst *framepool.WriteAccessor, src *framepool.ReadAccessor) error {
	if dst.Format() != src.Format() {
		return fmt.Errorf("%w: copy %s to %s", ErrFormatMismatch, src.Format(), dst.Format())
	}
	rowBytes := uint64(src.Format().RowBytes(src.Width()))
	return dev.CopyDeviceToDevice(stream, dst.Buffer(), dst.Pitch(), src.Buffer(), src.Pitch(), rowBytes, src.Height())
}

// FillKernel ignores src and sets every byte of dst to value.
func FillKernel(value byte) Kernel {
	return KernelFunc(func(dev device.Device, stream device.StreamID, dst *framepool.WriteAccessor, _ *framepool.ReadAccessor) error {
		return dev.Fill(stream, dst.Buffer(), 0, dst.Size(), value)
	})
}
