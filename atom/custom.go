package atom

import (
	"bytes"

	"github.com/mklimuk/hateeprom/dtb"
)

var (
	_ Atom = &Custom{}
	_ Atom = &DeviceTree{}
)

// Custom is an opaque atom. It carries manufacturer data (TypeCustom) or any
// type tag this package does not understand, preserved as-is.
type Custom struct {
	Tag  Type
	Data []byte
}

func (c *Custom) Type() Type { return c.Tag }

func (c *Custom) MarshalBinary() ([]byte, error) {
	return bytes.Clone(c.Data), nil
}

// DeviceTree is the atom carrying a device-tree overlay.
type DeviceTree struct {
	Blob *dtb.Blob
}

func (d *DeviceTree) Type() Type { return TypeDeviceTree }

func (d *DeviceTree) MarshalBinary() ([]byte, error) {
	if d.Blob == nil {
		return nil, nil
	}
	return d.Blob.Bytes()
}
