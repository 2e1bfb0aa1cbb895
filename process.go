package framepool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/framepool/device"
)

// DeviceProviderAware is an optional interface for devices that can share
// GPU resources with an external provider (e.g., a gogpu window).
// When SetDeviceProvider is called, the device reuses the provided GPU
// device instead of its own.
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

// The process-wide pool. The device is registered once (typically from an
// init function via blank import), the manager is created on first use and
// torn down once by Shutdown.
var (
	procMu      sync.Mutex
	procDevice  device.Device
	procManager *Manager
	procDown    bool
)

// RegisterDevice registers the device backing the process-wide pool.
//
// Only one device can be registered. Ownership passes to framepool: Shutdown
// closes it.
//
// Typical usage via blank import in device packages:
//
//	func init() {
//	    framepool.RegisterDevice(dev)
//	}
func RegisterDevice(d device.Device) error {
	if d == nil {
		return fmt.Errorf("%w: device must not be nil", ErrNoDevice)
	}

	procMu.Lock()
	if procDown {
		procMu.Unlock()
		return ErrManagerClosed
	}
	if procDevice != nil {
		name := procDevice.Name()
		procMu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceAlreadyRegistered, name)
	}
	procDevice = d
	procMu.Unlock()

	propagateLogger(d, Logger())
	Logger().Info("framepool: device registered", "device", d.Name())
	return nil
}

// RegisteredDevice returns the registered device, or nil if none.
func RegisteredDevice() device.Device {
	procMu.Lock()
	defer procMu.Unlock()
	return procDevice
}

// Default returns the process-wide manager, creating it on first use.
func Default() (*Manager, error) {
	procMu.Lock()
	defer procMu.Unlock()

	if procDown {
		return nil, ErrManagerClosed
	}
	if procManager != nil {
		return procManager, nil
	}
	if procDevice == nil {
		return nil, ErrNoDevice
	}
	m, err := New(Config{Device: procDevice})
	if err != nil {
		return nil, err
	}
	procManager = m
	return m, nil
}

// SetDeviceProvider passes a device provider to the registered device,
// enabling GPU device sharing. If no device is registered or it doesn't
// support device sharing, this is a no-op. It returns ErrPoolStarted once
// Default has created the pool.
//
// The provider should implement HalDevice() any and HalQueue() any methods
// that return wgpu/hal types.
func SetDeviceProvider(provider any) error {
	procMu.Lock()
	d := procDevice
	started := procManager != nil
	procMu.Unlock()

	if d == nil {
		return nil
	}
	dpa, ok := d.(DeviceProviderAware)
	if !ok {
		return nil
	}
	if started {
		return ErrPoolStarted
	}
	return dpa.SetDeviceProvider(provider)
}

// Shutdown tears down the process-wide manager and closes the registered
// device. It runs once; later calls return nil. Shutdown never panics:
// failures, including panics raised by a device during teardown, are
// logged and returned.
func Shutdown() error {
	procMu.Lock()
	if procDown {
		procMu.Unlock()
		return nil
	}
	procDown = true
	m, d := procManager, procDevice
	procManager, procDevice = nil, nil
	procMu.Unlock()

	var errs []error
	if m != nil {
		errs = append(errs, teardown("manager", m.Close))
	}
	if d != nil {
		errs = append(errs, teardown("device "+d.Name(), d.Close))
	}

	err := errors.Join(errs...)
	if err != nil {
		Logger().Warn("framepool: shutdown", "err", err)
		return err
	}
	Logger().Info("framepool: shut down")
	return nil
}

func teardown(what string, closeFn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("framepool: panic closing %s: %v", what, p)
		}
	}()
	if err := closeFn(); err != nil {
		return fmt.Errorf("framepool: close %s: %w", what, err)
	}
	return nil
}
