// Package adapter drives the Microchip MCP2221 USB to I²C bridge, which makes
// an ID EEPROM reachable from a workstation without a Raspberry Pi.
package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/hateeprom"
	"github.com/mklimuk/hateeprom/hatctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

const (
	cmdStatus      = 0x10
	cmdI2CWrite    = 0x90
	cmdI2CRead     = 0x91
	cmdI2CGetData  = 0x40
	statusCancel   = 0x10
	getDataFailed  = 0x41
	reportSize     = 64
	maxTransferLen = 60
)

var (
	ErrCommandFailed  = errors.New("command failed")
	ErrDeviceNotFound = errors.New("MCP2221 device not found")
)

var _ hateeprom.I2CBus = &MCP2221{}

// device is the part of a HID handle used by the bridge.
type device interface {
	io.ReadWriteCloser
}

type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration
	open         func() (device, error)
}

type MCP2221Status struct {
	I2CDataBufferCounter   int
	I2CSpeedDivider        int
	I2CTimeout             int
	CurrentAddress         string
	LastWriteRequestedSize uint16
	LastWriteSentSize      uint16
	ReadPending            int
}

type Option func(*MCP2221)

// WithDeviceIndex selects one of several attached bridges, in enumeration
// order.
func WithDeviceIndex(index int) Option {
	return func(d *MCP2221) {
		d.open = func() (device, error) {
			return openHID(index)
		}
	}
}

// WithResponseWait sets the delay between a request and reading its response.
func WithResponseWait(wait time.Duration) Option {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

func NewMCP2221(opts ...Option) *MCP2221 {
	d := &MCP2221{
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: 50 * time.Millisecond,
		open: func() (device, error) {
			return openHID(-1)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// openHID opens the bridge at index; a negative index requires exactly one
// bridge to be attached.
func openHID(index int) (device, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, ErrDeviceNotFound
	}
	if index < 0 {
		if len(devs) > 1 {
			return nil, fmt.Errorf("ambiguous device identification: %d bridges attached", len(devs))
		}
		index = 0
	}
	if index >= len(devs) {
		return nil, fmt.Errorf("%w: no device with index %d", ErrDeviceNotFound, index)
	}
	dev, err := devs[index].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxTransferLen {
		return fmt.Errorf("write of %d bytes exceeds the %d byte report", len(buffer), maxTransferLen)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdI2CWrite
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	// write could not be performed
	if d.response[1] == 0x01 {
		slog.DebugContext(ctx, "adapter busy", "address", address)
		return hateeprom.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxTransferLen {
		return fmt.Errorf("read of %d bytes exceeds the %d byte report", len(buffer), maxTransferLen)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdI2CRead
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		slog.DebugContext(ctx, "adapter busy", "address", address)
		return hateeprom.ErrBusBusy
	}
	d.resetBuffers()
	d.request[0] = cmdI2CGetData
	err = d.send(ctx)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == getDataFailed {
		return fmt.Errorf("%w: error reading the I2C slave data from the I2C engine", ErrCommandFailed)
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

// Release cancels the current I²C transfer, freeing a bus left busy by a
// device that did not acknowledge.
func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	_, err := d.releaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.releaseBus(ctx)
}

func (d *MCP2221) releaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = statusCancel
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("cancel request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

// send writes the request report and reads the response report.
func (d *MCP2221) send(ctx context.Context) error {
	dev, err := d.open()
	if err != nil {
		return err
	}
	defer func() {
		err := dev.Close()
		if err != nil {
			slog.DebugContext(ctx, "could not close adapter", "error", err)
		}
	}()
	hatctx.Dump(ctx, "mcp2221 request", d.request)
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.responseWait):
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	hatctx.Dump(ctx, "mcp2221 response", d.response)
	if d.response[0] != d.request[0] {
		return fmt.Errorf("%w: response to command %#02x echoes %#02x", ErrCommandFailed, d.request[0], d.response[0])
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
