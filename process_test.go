package framepool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/framepool/device/sim"
)

// resetProcess clears the process-wide pool before and after a test.
func resetProcess(t *testing.T) {
	t.Helper()
	reset := func() {
		_ = Shutdown()
		procMu.Lock()
		procDevice, procManager, procDown = nil, nil, false
		procMu.Unlock()
	}
	reset()
	t.Cleanup(reset)
}

func TestDefault_NoDevice(t *testing.T) {
	resetProcess(t)

	_, err := Default()
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.Nil(t, RegisteredDevice())
}

func TestDefault_CreatedOnce(t *testing.T) {
	resetProcess(t)

	dev := sim.New(sim.Config{})
	require.NoError(t, RegisterDevice(dev))
	assert.Same(t, dev, RegisteredDevice())

	m1, err := Default()
	require.NoError(t, err)
	m2, err := Default()
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Same(t, dev, m1.Device())
}

func TestRegisterDevice_Twice(t *testing.T) {
	resetProcess(t)

	require.NoError(t, RegisterDevice(sim.New(sim.Config{Name: "first"})))
	second := sim.New(sim.Config{Name: "second"})
	defer second.Close()

	err := RegisterDevice(second)
	assert.ErrorIs(t, err, ErrDeviceAlreadyRegistered)
	assert.ErrorContains(t, err, "first")
}

func TestRegisterDevice_Nil(t *testing.T) {
	resetProcess(t)
	assert.ErrorIs(t, RegisterDevice(nil), ErrNoDevice)
}

func TestShutdown_ExactlyOnce(t *testing.T) {
	resetProcess(t)

	dev := sim.New(sim.Config{})
	require.NoError(t, RegisterDevice(dev))
	m, err := Default()
	require.NoError(t, err)

	s, err := m.Stream("s")
	require.NoError(t, err)
	wa, err := m.RequestOutputImage(8, 8, FormatRGBA8)
	require.NoError(t, err)
	_, err = m.Finalise(wa, s)
	require.NoError(t, err)

	require.NoError(t, Shutdown())
	assert.Equal(t, 0, dev.Stats().Buffers)

	_, err = Default()
	assert.ErrorIs(t, err, ErrManagerClosed)
	assert.ErrorIs(t, RegisterDevice(sim.New(sim.Config{})), ErrManagerClosed)
	assert.NoError(t, Shutdown())
}

type panickingDevice struct {
	*sim.Device
}

func (d panickingDevice) Close() error {
	_ = d.Device.Close()
	panic("driver lost")
}

func TestShutdown_RecoversPanics(t *testing.T) {
	resetProcess(t)

	require.NoError(t, RegisterDevice(panickingDevice{sim.New(sim.Config{})}))
	_, err := Default()
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		err = Shutdown()
	})
	assert.ErrorContains(t, err, "driver lost")
}

type providerDevice struct {
	*sim.Device
	provider any
}

func (d *providerDevice) SetDeviceProvider(provider any) error {
	d.provider = provider
	return nil
}

func TestSetDeviceProvider(t *testing.T) {
	resetProcess(t)

	assert.NoError(t, SetDeviceProvider("ignored without a device"))

	dev := &providerDevice{Device: sim.New(sim.Config{})}
	require.NoError(t, RegisterDevice(dev))
	require.NoError(t, SetDeviceProvider("shared"))
	assert.Equal(t, "shared", dev.provider)

	_, err := Default()
	require.NoError(t, err)
	assert.ErrorIs(t, SetDeviceProvider("too late"), ErrPoolStarted)
	assert.Equal(t, "shared", dev.provider)
}
