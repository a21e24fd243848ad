// Package at24 is a driver for 24Cxx I²C EEPROMs with two-byte addressing,
// such as the 24C32 fitted as the HAT ID EEPROM.
//
// Reads set the address pointer and read back in chunks small enough for USB
// bridges. Writes are split on page boundaries and each page write is followed
// by acknowledge polling until the internal write cycle completes.
//
// Example usage:
//
//	bus, _ := i2c.NewGenericBus("/dev/i2c-0")
//	e := at24.New(bus)
//	data, _ := e.Read(ctx, 0x0000, 16)
//	fmt.Printf("first 16 bytes: %x\n", data)
//
//	err := e.Write(ctx, 0x0100, []byte("hat"))
package at24

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/hateeprom"
	"github.com/mklimuk/hateeprom/hatctx"
)

const (
	// 24C32: 32 Kbit, 32 byte pages, 5 ms max write cycle
	defaultSize         = 4096
	defaultPageSize     = 32
	defaultChunkSize    = 32
	defaultWriteTimeout = 10 * time.Millisecond

	pollInterval = 500 * time.Microsecond
)

var (
	ErrOutOfRange   = errors.New("address out of range")
	ErrWriteTimeout = errors.New("timeout waiting for write completion")
)

type Config struct {
	Address      byte
	Size         int
	PageSize     int
	ChunkSize    int
	WriteTimeout time.Duration
}

type ConfigOption func(*Config)

func WithAddress(address byte) ConfigOption {
	return func(c *Config) {
		c.Address = address
	}
}

// WithSize sets the capacity in bytes.
func WithSize(size int) ConfigOption {
	return func(c *Config) {
		c.Size = size
	}
}

func WithPageSize(size int) ConfigOption {
	return func(c *Config) {
		c.PageSize = size
	}
}

// WithChunkSize limits the number of bytes moved by a single bus read.
func WithChunkSize(size int) ConfigOption {
	return func(c *Config) {
		c.ChunkSize = size
	}
}

// WithWriteTimeout bounds acknowledge polling after a page write.
func WithWriteTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.WriteTimeout = timeout
	}
}

type AT24 struct {
	mx  sync.Mutex
	bus hateeprom.I2CBus
	cfg Config
}

func New(bus hateeprom.I2CBus, opts ...ConfigOption) *AT24 {
	cfg := Config{
		Address:      hateeprom.DefaultEEPROMAddress,
		Size:         defaultSize,
		PageSize:     defaultPageSize,
		ChunkSize:    defaultChunkSize,
		WriteTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &AT24{bus: bus, cfg: cfg}
}

// Size returns the capacity in bytes.
func (e *AT24) Size() int {
	return e.cfg.Size
}

// Read returns n bytes starting at addr.
func (e *AT24) Read(ctx context.Context, addr uint16, n int) ([]byte, error) {
	if n < 0 || int(addr)+n > e.cfg.Size {
		return nil, fmt.Errorf("%w: read of %d bytes at %#04x, size %d", ErrOutOfRange, n, addr, e.cfg.Size)
	}
	e.mx.Lock()
	defer e.mx.Unlock()
	res := make([]byte, n)
	for off := 0; off < n; off += e.cfg.ChunkSize {
		chunk := res[off:min(off+e.cfg.ChunkSize, n)]
		err := e.readChunk(ctx, addr+uint16(off), chunk)
		if err != nil {
			return nil, err
		}
		hatctx.Dump(ctx, fmt.Sprintf("at24 read %#04x", addr+uint16(off)), chunk)
	}
	return res, nil
}

func (e *AT24) readChunk(ctx context.Context, at uint16, chunk []byte) error {
	if c, ok := e.bus.(hateeprom.CombinedTxBus); ok {
		err := c.WriteReadAddr(ctx, e.cfg.Address, pointer(at), chunk)
		if err != nil {
			return fmt.Errorf("could not read %d bytes at %#04x: %w", len(chunk), at, err)
		}
		return nil
	}
	err := e.bus.WriteToAddr(ctx, e.cfg.Address, pointer(at))
	if err != nil {
		return fmt.Errorf("could not set address %#04x: %w", at, err)
	}
	err = e.bus.ReadFromAddr(ctx, e.cfg.Address, chunk)
	if err != nil {
		return fmt.Errorf("could not read %d bytes at %#04x: %w", len(chunk), at, err)
	}
	return nil
}

// Write stores data at addr. Data is paged as required by the device and the
// call returns once the last write cycle has completed.
func (e *AT24) Write(ctx context.Context, addr uint16, data []byte) error {
	if int(addr)+len(data) > e.cfg.Size {
		return fmt.Errorf("%w: write of %d bytes at %#04x, size %d", ErrOutOfRange, len(data), addr, e.cfg.Size)
	}
	e.mx.Lock()
	defer e.mx.Unlock()
	offset := 0
	for offset < len(data) {
		space := e.cfg.PageSize - int(addr)%e.cfg.PageSize
		chunk := data[offset:]
		if len(chunk) > space {
			chunk = chunk[:space]
		}
		err := e.pageWrite(ctx, addr, chunk)
		if err != nil {
			return err
		}
		offset += len(chunk)
		addr += uint16(len(chunk))
	}
	return nil
}

func (e *AT24) pageWrite(ctx context.Context, addr uint16, data []byte) error {
	hatctx.Dump(ctx, fmt.Sprintf("at24 write %#04x", addr), data)
	buf := append(pointer(addr), data...)
	err := e.bus.WriteToAddr(ctx, e.cfg.Address, buf)
	if err != nil {
		return fmt.Errorf("could not write page at %#04x: %w", addr, err)
	}
	return e.waitUntilReady(ctx, addr)
}

// waitUntilReady polls the device with an address write. The device does not
// acknowledge while the internal write cycle is running.
func (e *AT24) waitUntilReady(ctx context.Context, addr uint16) error {
	deadline := time.Now().Add(e.cfg.WriteTimeout)
	polls := 0
	for {
		polls++
		err := e.bus.WriteToAddr(ctx, e.cfg.Address, pointer(addr))
		if err == nil {
			hatctx.Tracef(ctx, "at24 write cycle at %#04x done after %d polls", addr, polls)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w at %#04x after %d polls: %w", ErrWriteTimeout, addr, polls, err)
		}
		slog.DebugContext(ctx, "eeprom busy", "addr", addr, "error", err)
		if errors.Is(err, hateeprom.ErrBusBusy) {
			err = e.bus.Release(ctx)
			if err != nil {
				return fmt.Errorf("could not release bus: %w", err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func pointer(addr uint16) []byte {
	return []byte{byte(addr >> 8), byte(addr)}
}
