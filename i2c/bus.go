// Package i2c opens Linux I²C buses through periph.io.
package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/mklimuk/hateeprom"
)

var (
	_ hateeprom.I2CBus        = &GenericBus{}
	_ hateeprom.CombinedTxBus = &GenericBus{}
)

// GenericBus is a kernel I²C bus.
type GenericBus struct {
	name string
	bus  i2c.BusCloser
}

// NewGenericBus opens the named bus, e.g. "/dev/i2c-0" or "0". The HAT ID
// EEPROM sits on i2c-0 (ID_SD/ID_SC), which recent kernels only expose when
// dtparam=i2c_vc=on is set.
func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	for _, failure := range state.Failed {
		slog.Debug("periph driver failed", "driver", failure.D.String(), "error", failure.Err)
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus %q: %w", dev, err)
	}
	return &GenericBus{name: dev, bus: bus}, nil
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	return b.tx(ctx, address, nil, buffer)
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	return b.tx(ctx, address, buffer, nil)
}

// WriteReadAddr writes w and reads r in one transaction with a repeated start.
func (b *GenericBus) WriteReadAddr(ctx context.Context, address byte, w, r []byte) error {
	return b.tx(ctx, address, w, r)
}

func (b *GenericBus) tx(ctx context.Context, address byte, w, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.bus.Tx(uint16(address), w, r)
	if err != nil {
		return fmt.Errorf("i2c transaction with %#02x on %s failed (write %d, read %d): %w", address, b.name, len(w), len(r), err)
	}
	return nil
}

// Release is a no-op, the kernel driver completes every transaction.
func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
