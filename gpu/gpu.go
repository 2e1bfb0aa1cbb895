//go:build !nogpu

// Package gpu registers a Vulkan-backed device for the process-wide frame
// pool.
//
// Import this package to back framepool.Default with GPU memory. The device
// is opened through wgpu/hal on the first discrete or integrated adapter.
//
// If GPU initialization fails (no Vulkan driver available), the registration
// is skipped with a warning and framepool.Default reports ErrNoDevice unless
// another device is registered.
//
// Usage:
//
//	import _ "github.com/gogpu/framepool/gpu" // enable the GPU frame pool
package gpu

import (
	"github.com/gogpu/framepool"
	"github.com/gogpu/framepool/device/halgpu"
)

func init() {
	dev, err := halgpu.Open()
	if err != nil {
		framepool.Logger().Warn("GPU device not available", "err", err)
		return
	}
	if err := framepool.RegisterDevice(dev); err != nil {
		framepool.Logger().Warn("GPU device not registered", "err", err)
		_ = dev.Close()
	}
}

// SetDeviceProvider makes the registered GPU device share the hal device of
// an external provider (e.g., a gogpu window), so pooled frames live on the
// same device as the renderer that displays them.
//
// The provider should be a gpucontext.DeviceProvider that also exposes
// HalDevice() and HalQueue().
//
// Call this before the first framepool.Default.
func SetDeviceProvider(provider any) error {
	return framepool.SetDeviceProvider(provider)
}
