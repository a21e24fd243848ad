package at24

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/hateeprom"
	"github.com/mklimuk/hateeprom/eeprom"
	"github.com/mklimuk/hateeprom/hatctx"
)

type mockBus struct {
	mock.Mock
}

func (m *mockBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	return m.Called(ctx, address, buffer).Error(0)
}

func (m *mockBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	return m.Called(ctx, address, buffer).Error(0)
}

func (m *mockBus) Release(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// fakeDevice emulates a 24Cxx behind the bus. busyPolls address writes are
// refused after every page write.
type fakeDevice struct {
	mem       []byte
	ptr       int
	busyPolls int
	busy      int
	writes    int
}

func newFakeDevice(size int) *fakeDevice {
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = 0xFF
	}
	return &fakeDevice{mem: mem}
}

func (d *fakeDevice) ReadFromAddr(_ context.Context, _ byte, buffer []byte) error {
	for i := range buffer {
		buffer[i] = d.mem[d.ptr%len(d.mem)]
		d.ptr++
	}
	return nil
}

func (d *fakeDevice) WriteToAddr(_ context.Context, _ byte, buffer []byte) error {
	if d.busy > 0 {
		d.busy--
		return errors.New("nack")
	}
	d.ptr = int(buffer[0])<<8 | int(buffer[1])
	if len(buffer) > 2 {
		d.writes++
		copy(d.mem[d.ptr:], buffer[2:])
		d.busy = d.busyPolls
	}
	return nil
}

func (d *fakeDevice) Release(context.Context) error { return nil }

var _ hateeprom.I2CBus = &mockBus{}
var _ hateeprom.I2CBus = &fakeDevice{}

func TestAT24_ReadChunked(t *testing.T) {
	ctx := context.Background()
	bus := new(mockBus)
	e := New(bus, WithAddress(0x51), WithChunkSize(32))

	for _, at := range [][]byte{{0x00, 0x10}, {0x00, 0x30}, {0x00, 0x50}} {
		bus.On("WriteToAddr", ctx, byte(0x51), at).Return(nil).Once()
	}
	bus.On("ReadFromAddr", ctx, byte(0x51), mock.AnythingOfType("[]uint8")).Run(func(args mock.Arguments) {
		buf := args.Get(2).([]byte)
		for i := range buf {
			buf[i] = byte(len(buf))
		}
	}).Return(nil).Times(3)

	data, err := e.Read(ctx, 0x10, 70)
	require.NoError(t, err)
	require.Len(t, data, 70)
	assert.Equal(t, byte(32), data[0])
	assert.Equal(t, byte(32), data[63])
	assert.Equal(t, byte(6), data[64])
	bus.AssertExpectations(t)
}

// combinedDevice adds repeated-start reads to fakeDevice.
type combinedDevice struct {
	*fakeDevice
	combined int
}

func (d *combinedDevice) WriteReadAddr(ctx context.Context, address byte, w, r []byte) error {
	d.combined++
	err := d.WriteToAddr(ctx, address, w)
	if err != nil {
		return err
	}
	return d.ReadFromAddr(ctx, address, r)
}

func TestAT24_ReadCombined(t *testing.T) {
	ctx := context.Background()
	dev := &combinedDevice{fakeDevice: newFakeDevice(128)}
	copy(dev.mem[40:], "combined")
	e := New(dev, WithSize(128), WithChunkSize(3))

	data, err := e.Read(ctx, 40, 8)
	require.NoError(t, err)
	assert.Equal(t, "combined", string(data))
	assert.Equal(t, 3, dev.combined)
}

func TestAT24_WritePaged(t *testing.T) {
	ctx := context.Background()
	bus := new(mockBus)
	e := New(bus)

	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i)
	}
	pages := []struct {
		addr uint16
		data []byte
	}{
		{30, data[0:2]},
		{32, data[2:34]},
		{64, data[34:40]},
	}
	for _, p := range pages {
		bus.On("WriteToAddr", ctx, byte(0x50), append(pointer(p.addr), p.data...)).Return(nil).Once()
		bus.On("WriteToAddr", ctx, byte(0x50), pointer(p.addr)).Return(nil).Once()
	}

	require.NoError(t, e.Write(ctx, 30, data))
	bus.AssertExpectations(t)
}

func TestAT24_AckPolling(t *testing.T) {
	ctx := context.Background()
	bus := new(mockBus)
	e := New(bus, WithWriteTimeout(time.Second))

	bus.On("WriteToAddr", ctx, byte(0x50), []byte{0x00, 0x00, 0xAA}).Return(nil).Once()
	bus.On("WriteToAddr", ctx, byte(0x50), []byte{0x00, 0x00}).Return(hateeprom.ErrBusBusy).Twice()
	bus.On("Release", ctx).Return(nil).Twice()
	bus.On("WriteToAddr", ctx, byte(0x50), []byte{0x00, 0x00}).Return(nil).Once()

	require.NoError(t, e.Write(ctx, 0, []byte{0xAA}))
	bus.AssertExpectations(t)
}

func TestAT24_WriteTimeout(t *testing.T) {
	ctx := context.Background()
	bus := new(mockBus)
	e := New(bus, WithWriteTimeout(2*time.Millisecond))

	nack := errors.New("nack")
	bus.On("WriteToAddr", ctx, byte(0x50), []byte{0x00, 0x08, 0x01}).Return(nil).Once()
	bus.On("WriteToAddr", ctx, byte(0x50), []byte{0x00, 0x08}).Return(nack)

	err := e.Write(ctx, 8, []byte{0x01})
	assert.ErrorIs(t, err, ErrWriteTimeout)
	assert.ErrorIs(t, err, nack)
	bus.AssertNotCalled(t, "Release", ctx)
}

func TestAT24_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dev := newFakeDevice(64)
	dev.busyPolls = 1000
	e := New(dev, WithSize(64), WithWriteTimeout(time.Minute))
	cancel()
	err := e.Write(ctx, 0, []byte{1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAT24_OutOfRange(t *testing.T) {
	ctx := context.Background()
	e := New(new(mockBus), WithSize(128))

	_, err := e.Read(ctx, 100, 29)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = e.Read(ctx, 0, -1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.ErrorIs(t, e.Write(ctx, 127, []byte{1, 2}), ErrOutOfRange)

	_, err = e.Stream(ctx).Write(make([]byte, 129))
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestStream(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice(256)
	dev.busyPolls = 2
	s := New(dev, WithSize(256), WithPageSize(16), WithChunkSize(20)).Stream(ctx)

	n, err := s.Write([]byte("hello, world"))
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, 1, dev.writes)

	pos, err := s.Seek(10, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)
	n, err = s.Write(make([]byte, 30))
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	// 10..15, 16..31, 32..39
	assert.Equal(t, 4, dev.writes)

	_, err = s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	all, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Len(t, all, 256)
	assert.Equal(t, "hello, wor", string(all[:10]))
	assert.Equal(t, make([]byte, 30), all[10:40])
	assert.Equal(t, byte(0xFF), all[40])

	end, err := s.Seek(-6, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(250), end)
	_, err = s.Seek(-1, io.SeekStart)
	assert.Error(t, err)
}

func TestStream_EEPROMFile(t *testing.T) {
	raw, err := os.ReadFile("../../eeprom/testdata/sample.eep")
	require.NoError(t, err)

	ctx := context.Background()
	dev := newFakeDevice(4096)
	dev.busyPolls = 1
	s := New(dev).Stream(ctx)

	f := eeprom.NewFileFrom(s, eeprom.WithAutoload(false))
	require.NoError(t, f.Load(eeprom.PathSource("../../eeprom/testdata/sample.eep")))
	require.NoError(t, f.Save(eeprom.Source{}, eeprom.Verify()))
	assert.Equal(t, raw, dev.mem[:len(raw)])
	assert.Equal(t, byte(0xFF), dev.mem[len(raw)])

	// autoload reads back only the image, not the whole device
	loaded := eeprom.NewFileFrom(s)
	require.NoError(t, loaded.Session(func(f *eeprom.File) error {
		assert.Equal(t, "Sample Board", f.Product())
		return nil
	}))
	assert.True(t, f.Equal(loaded))
}

func TestAT24_Trace(t *testing.T) {
	var trace bytes.Buffer
	ctx := hatctx.WithTrace(context.Background(), &trace)
	dev := newFakeDevice(64)
	dev.busyPolls = 2
	e := New(dev, WithSize(64))

	require.NoError(t, e.Write(ctx, 0x10, []byte("hat")))
	_, err := e.Read(ctx, 0x10, 3)
	require.NoError(t, err)

	out := trace.String()
	assert.Contains(t, out, "at24 write 0x0010 (3 bytes)")
	assert.Contains(t, out, "at24 write cycle at 0x0010 done after 3 polls")
	assert.Contains(t, out, "at24 read 0x0010 (3 bytes)")
	assert.Contains(t, out, "|hat|")
}
