package atom

import (
	"fmt"
	"strings"
)

const (
	// PinCount is the number of GPIOs described by the map (GPIO0..GPIO27).
	PinCount = 28
	// GPIOMapSize is the payload size of a GPIO map atom.
	GPIOMapSize = 2 + PinCount
)

// bank byte
const (
	driveMask       = 0x0F
	slewShift       = 4
	slewMask        = 0x03
	hysteresisShift = 6
	hysteresisMask  = 0x03
)

// power byte
const (
	backPowerMask     = 0x03
	powerReservedMask = 0xFC
)

// pin byte
const (
	functionMask    = 0x07
	pinReservedMask = 0x18
	pullShift       = 5
	pullMask        = 0x03
	usedBit         = 0x80
)

// Drive is the bank drive strength. 0 leaves the SoC default, 1..8 select
// 2..16 mA in 2 mA steps.
type Drive uint8

const (
	DriveDefault Drive = iota
	Drive2mA
	Drive4mA
	Drive6mA
	Drive8mA
	Drive10mA
	Drive12mA
	Drive14mA
	Drive16mA
)

var driveNames = []string{"default", "2mA", "4mA", "6mA", "8mA", "10mA", "12mA", "14mA", "16mA"}

func (d Drive) Valid() bool { return int(d) < len(driveNames) }
func (d Drive) String() string { return enumString("drive", driveNames, uint8(d)) }
func (d Drive) MarshalText() ([]byte, error) { return enumText("drive", driveNames, uint8(d)) }
func (d *Drive) UnmarshalText(text []byte) error { return parseEnum("drive", driveNames, text, (*uint8)(d)) }

// Milliamps returns the configured current, 0 for the default.
func (d Drive) Milliamps() int {
	return int(d) * 2
}

type Slew uint8

const (
	SlewDefault Slew = iota
	SlewLimited
	SlewUnlimited
)

var slewNames = []string{"default", "limited", "unlimited"}

func (s Slew) Valid() bool { return int(s) < len(slewNames) }
func (s Slew) String() string { return enumString("slew", slewNames, uint8(s)) }
func (s Slew) MarshalText() ([]byte, error) { return enumText("slew", slewNames, uint8(s)) }
func (s *Slew) UnmarshalText(text []byte) error { return parseEnum("slew", slewNames, text, (*uint8)(s)) }

type Hysteresis uint8

const (
	HysteresisDefault Hysteresis = iota
	HysteresisDisabled
	HysteresisEnabled
)

var hysteresisNames = []string{"default", "disabled", "enabled"}

func (h Hysteresis) Valid() bool { return int(h) < len(hysteresisNames) }
func (h Hysteresis) String() string { return enumString("hysteresis", hysteresisNames, uint8(h)) }
func (h Hysteresis) MarshalText() ([]byte, error) { return enumText("hysteresis", hysteresisNames, uint8(h)) }
func (h *Hysteresis) UnmarshalText(text []byte) error {
	return parseEnum("hysteresis", hysteresisNames, text, (*uint8)(h))
}

// BackPower tells whether the board back-powers the Pi and how much current it
// can supply.
type BackPower uint8

const (
	BackPowerNone BackPower = iota
	BackPower1A3
	BackPower2A
)

var backPowerNames = []string{"none", "1.3A", "2A"}

func (b BackPower) Valid() bool { return int(b) < len(backPowerNames) }
func (b BackPower) String() string { return enumString("back power", backPowerNames, uint8(b)) }
func (b BackPower) MarshalText() ([]byte, error) { return enumText("back power", backPowerNames, uint8(b)) }
func (b *BackPower) UnmarshalText(text []byte) error {
	return parseEnum("back power", backPowerNames, text, (*uint8)(b))
}

// Function is the BCM2835 FSEL value of a pin. The alternate functions are not
// numbered in order, hence the explicit values.
type Function uint8

const (
	FunctionInput  Function = 0
	FunctionOutput Function = 1
	FunctionAlt5   Function = 2
	FunctionAlt4   Function = 3
	FunctionAlt0   Function = 4
	FunctionAlt1   Function = 5
	FunctionAlt2   Function = 6
	FunctionAlt3   Function = 7
)

// indexed by FSEL value
var functionNames = []string{"input", "output", "alt5", "alt4", "alt0", "alt1", "alt2", "alt3"}

func (f Function) Valid() bool { return int(f) < len(functionNames) }
func (f Function) String() string { return enumString("function", functionNames, uint8(f)) }
func (f Function) MarshalText() ([]byte, error) { return enumText("function", functionNames, uint8(f)) }
func (f *Function) UnmarshalText(text []byte) error {
	return parseEnum("function", functionNames, text, (*uint8)(f))
}

type Pull uint8

const (
	PullDefault Pull = iota
	PullUp
	PullDown
	PullNone
)

var pullNames = []string{"default", "up", "down", "none"}

func (p Pull) Valid() bool { return int(p) < len(pullNames) }
func (p Pull) String() string { return enumString("pull", pullNames, uint8(p)) }
func (p Pull) MarshalText() ([]byte, error) { return enumText("pull", pullNames, uint8(p)) }
func (p *Pull) UnmarshalText(text []byte) error { return parseEnum("pull", pullNames, text, (*uint8)(p)) }

func enumString(kind string, names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%s(%d)", strings.ReplaceAll(kind, " ", ""), v)
}

func enumText(kind string, names []string, v uint8) ([]byte, error) {
	if int(v) >= len(names) {
		return nil, fmt.Errorf("invalid %s value %d", kind, v)
	}
	return []byte(names[v]), nil
}

func parseEnum(kind string, names []string, text []byte, dst *uint8) error {
	s := strings.TrimSpace(string(text))
	for i, name := range names {
		if strings.EqualFold(name, s) {
			*dst = uint8(i)
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q, expected one of: %s", kind, s, strings.Join(names, ", "))
}

// Bank holds the bank-wide settings and the power byte. Reserved keeps bits
// 7:2 of the power byte in place.
type Bank struct {
	Drive      Drive      `yaml:"drive"`
	Slew       Slew       `yaml:"slew"`
	Hysteresis Hysteresis `yaml:"hysteresis"`
	BackPower  BackPower  `yaml:"back_power"`
	Reserved   uint8      `yaml:"reserved,omitempty"`
}

// Pin is the configuration of a single GPIO. Reserved keeps bits 4:3 in place.
type Pin struct {
	Used     bool     `yaml:"used"`
	Function Function `yaml:"function"`
	Pull     Pull     `yaml:"pull"`
	Reserved uint8    `yaml:"reserved,omitempty"`
}

func (b Bank) check() error {
	switch {
	case !b.Drive.Valid():
		return outOfRange("drive", -1, uint8(b.Drive))
	case !b.Slew.Valid():
		return outOfRange("slew", -1, uint8(b.Slew))
	case !b.Hysteresis.Valid():
		return outOfRange("hysteresis", -1, uint8(b.Hysteresis))
	case !b.BackPower.Valid():
		return outOfRange("back power", -1, uint8(b.BackPower))
	case b.Reserved&^powerReservedMask != 0:
		return outOfRange("power reserved", -1, b.Reserved)
	}
	return nil
}

func (p Pin) check(i int) error {
	switch {
	case !p.Function.Valid():
		return outOfRange("function", i, uint8(p.Function))
	case !p.Pull.Valid():
		return outOfRange("pull", i, uint8(p.Pull))
	case p.Reserved&^pinReservedMask != 0:
		return outOfRange("reserved", i, p.Reserved)
	}
	return nil
}

// EncodeGPIO packs the bank settings and pins into the 30 byte payload. Fields
// are masked to their bit width.
func EncodeGPIO(bank Bank, pins [PinCount]Pin) []byte {
	buf := make([]byte, GPIOMapSize)
	buf[0] = uint8(bank.Drive)&driveMask |
		(uint8(bank.Slew)&slewMask)<<slewShift |
		(uint8(bank.Hysteresis)&hysteresisMask)<<hysteresisShift
	buf[1] = uint8(bank.BackPower)&backPowerMask | bank.Reserved&powerReservedMask
	for i, p := range pins {
		b := uint8(p.Function)&functionMask |
			p.Reserved&pinReservedMask |
			(uint8(p.Pull)&pullMask)<<pullShift
		if p.Used {
			b |= usedBit
		}
		buf[2+i] = b
	}
	return buf
}

// DecodeGPIO unpacks a GPIO map payload. Reserved bank encodings are reported
// as *FieldError.
func DecodeGPIO(data []byte) (Bank, [PinCount]Pin, error) {
	var pins [PinCount]Pin
	if len(data) != GPIOMapSize {
		return Bank{}, pins, &FieldError{Field: "gpio map", Pin: -1, Value: len(data),
			Reason: fmt.Sprintf("payload is %d bytes, expected %d", len(data), GPIOMapSize)}
	}
	bank := Bank{
		Drive:      Drive(data[0] & driveMask),
		Slew:       Slew((data[0] >> slewShift) & slewMask),
		Hysteresis: Hysteresis((data[0] >> hysteresisShift) & hysteresisMask),
		BackPower:  BackPower(data[1] & backPowerMask),
		Reserved:   data[1] & powerReservedMask,
	}
	if err := bank.check(); err != nil {
		return Bank{}, pins, err
	}
	for i := range pins {
		b := data[2+i]
		pins[i] = Pin{
			Used:     b&usedBit != 0,
			Function: Function(b & functionMask),
			Pull:     Pull((b >> pullShift) & pullMask),
			Reserved: b & pinReservedMask,
		}
	}
	return bank, pins, nil
}

var _ Atom = &GPIOMap{}

// GPIOMap is the GPIO configuration atom.
type GPIOMap struct {
	Bank Bank
	Pins [PinCount]Pin
}

func (g *GPIOMap) Type() Type { return TypeGPIOMap }

// MarshalBinary fails with *FieldError when a field holds a value its bits
// cannot represent.
func (g *GPIOMap) MarshalBinary() ([]byte, error) {
	if err := g.Bank.check(); err != nil {
		return nil, err
	}
	for i, p := range g.Pins {
		if err := p.check(i); err != nil {
			return nil, err
		}
	}
	return EncodeGPIO(g.Bank, g.Pins), nil
}

func (g *GPIOMap) UnmarshalBinary(data []byte) error {
	bank, pins, err := DecodeGPIO(data)
	if err != nil {
		return err
	}
	g.Bank = bank
	g.Pins = pins
	return nil
}
