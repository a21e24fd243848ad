// Package atom implements the record layer of the HAT ID EEPROM format.
//
// Every atom is framed as
//
//	type(2) count(2) dlen(4) data(dlen-2) crc16(2)
//
// with little-endian integers. dlen counts the data plus the CRC trailer and
// the CRC covers everything before it. Known types decode into VendorInfo,
// GPIOMap and DeviceTree; anything else is kept verbatim as Custom.
package atom

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/mklimuk/hateeprom/dtb"
)

// Type is the atom type tag.
type Type uint16

const (
	TypeInvalid    Type = 0x0000
	TypeVendorInfo Type = 0x0001
	TypeGPIOMap    Type = 0x0002
	TypeDeviceTree Type = 0x0003
	TypeCustom     Type = 0x0004
	TypeReserved   Type = 0xFFFF
)

func (t Type) String() string {
	switch t {
	case TypeVendorInfo:
		return "vendor info"
	case TypeGPIOMap:
		return "gpio map"
	case TypeDeviceTree:
		return "device tree"
	case TypeCustom:
		return "custom"
	default:
		return fmt.Sprintf("unknown(%#04x)", uint16(t))
	}
}

const (
	// HeaderSize is the size of the type/count/dlen prefix
	HeaderSize = 8
	// CRCSize is the size of the checksum trailer
	CRCSize = 2
)

// Atom is one decoded record. The concrete type is one of *VendorInfo,
// *GPIOMap, *DeviceTree or *Custom.
type Atom interface {
	Type() Type
	MarshalBinary() ([]byte, error)
}

// Record is an atom as framed on disk, after its CRC has been checked.
type Record struct {
	Type  Type
	Count uint16
	Data  []byte
	CRC   uint16
}

// Size returns the number of bytes the record occupies in an image.
func (r Record) Size() int {
	return HeaderSize + len(r.Data) + CRCSize
}

// Encode frames a with the given atom index, computing dlen and the CRC from
// the current payload.
func Encode(a Atom, index int) ([]byte, error) {
	data, err := a.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("could not encode atom %d (%s): %w", index, a.Type(), err)
	}
	return EncodeRecord(a.Type(), uint16(index), data), nil
}

// EncodeRecord frames a raw payload.
func EncodeRecord(t Type, count uint16, data []byte) []byte {
	buf := make([]byte, HeaderSize+len(data)+CRCSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(t))
	binary.LittleEndian.PutUint16(buf[2:4], count)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(data)+CRCSize))
	copy(buf[HeaderSize:], data)
	end := HeaderSize + len(data)
	binary.LittleEndian.PutUint16(buf[end:], CRC16(buf[:end]))
	return buf
}

// Reader reads consecutive atom records from a stream.
type Reader struct {
	r     io.Reader
	index int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next record. It returns io.EOF when the stream ends exactly
// on a record boundary and io.ErrUnexpectedEOF (wrapped) for a truncated one.
// A checksum disagreement is reported as *CRCError.
func (r *Reader) Next() (Record, error) {
	hdr := make([]byte, HeaderSize)
	_, err := io.ReadFull(r.r, hdr)
	if errors.Is(err, io.EOF) {
		return Record{}, io.EOF
	}
	if err != nil {
		return Record{}, fmt.Errorf("could not read atom %d header: %w", r.index, err)
	}
	rec := Record{
		Type:  Type(binary.LittleEndian.Uint16(hdr[0:2])),
		Count: binary.LittleEndian.Uint16(hdr[2:4]),
	}
	dlen := binary.LittleEndian.Uint32(hdr[4:8])
	if dlen < CRCSize {
		return Record{}, &FieldError{
			Field:  "dlen",
			Pin:    -1,
			Value:  int(dlen),
			Reason: fmt.Sprintf("atom %d data length %d is shorter than its crc", r.index, dlen),
		}
	}
	// grow with the data actually present instead of trusting dlen for the allocation
	var body bytes.Buffer
	_, err = io.CopyN(&body, r.r, int64(dlen))
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return Record{}, fmt.Errorf("could not read atom %d data: %w", r.index, err)
	}
	raw := body.Bytes()
	rec.Data = raw[:len(raw)-CRCSize]
	rec.CRC = binary.LittleEndian.Uint16(raw[len(raw)-CRCSize:])
	computed := updateCRC16(CRC16(hdr), rec.Data)
	if computed != rec.CRC {
		return Record{}, &CRCError{Index: r.index, Type: rec.Type, Stored: rec.CRC, Computed: computed}
	}
	r.index++
	return rec, nil
}

// Decode turns a record into its typed atom. Device-tree payloads are wrapped
// with codec (nil selects the default FDT codec). Unknown type tags are
// preserved as *Custom.
func Decode(rec Record, codec dtb.Codec) (Atom, error) {
	switch rec.Type {
	case TypeVendorInfo:
		v := &VendorInfo{}
		if err := v.UnmarshalBinary(rec.Data); err != nil {
			return nil, err
		}
		return v, nil
	case TypeGPIOMap:
		g := &GPIOMap{}
		if err := g.UnmarshalBinary(rec.Data); err != nil {
			return nil, err
		}
		return g, nil
	case TypeDeviceTree:
		blob, err := dtb.Wrap(codec, rec.Data)
		if err != nil {
			return nil, err
		}
		return &DeviceTree{Blob: blob}, nil
	default:
		return &Custom{Tag: rec.Type, Data: bytes.Clone(rec.Data)}, nil
	}
}
