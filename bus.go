// Package hateeprom holds the transport interfaces shared by the HAT ID EEPROM
// tooling. The image codec lives in the atom, dtb and eeprom packages; the
// drivers under memory, adapter and i2c move image bytes to and from hardware.
package hateeprom

import (
	"context"
	"fmt"
)

// DefaultEEPROMAddress is the 7-bit address of the ID EEPROM on the HAT ID bus (ID_SD/ID_SC).
const DefaultEEPROMAddress = 0x50

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is the transport an ID EEPROM driver talks through.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// CombinedTxBus is implemented by buses that can write an address pointer and
// read back in one transaction with a repeated start.
type CombinedTxBus interface {
	WriteReadAddr(ctx context.Context, address byte, w, r []byte) error
}
