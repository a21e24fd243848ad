package eeprom

import (
	"encoding/binary"
	"fmt"
)

const (
	// Signature opens every HAT EEPROM image.
	Signature = "R-Pi"
	// FormatVersion is the only header version understood.
	FormatVersion = 0x01
	// HeaderSize is the size of the image header.
	HeaderSize = 12
)

// Header is the fixed image header.
type Header struct {
	Version  uint8
	Reserved uint8
	NumAtoms uint16
	Length   uint32
}

// ParseHeader decodes and checks the header at the start of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrHeaderInvalid, len(data))
	}
	if string(data[0:4]) != Signature {
		return Header{}, fmt.Errorf("%w: bad signature % x", ErrHeaderInvalid, data[0:4])
	}
	h := Header{
		Version:  data[4],
		Reserved: data[5],
		NumAtoms: binary.LittleEndian.Uint16(data[6:8]),
		Length:   binary.LittleEndian.Uint32(data[8:12]),
	}
	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("%w: unsupported version %#02x", ErrHeaderInvalid, h.Version)
	}
	if h.Length < HeaderSize {
		return Header{}, fmt.Errorf("%w: declared length %d is shorter than the header", ErrHeaderInvalid, h.Length)
	}
	return h, nil
}

func (h Header) put(buf []byte) {
	copy(buf[0:4], Signature)
	buf[4] = h.Version
	buf[5] = h.Reserved
	binary.LittleEndian.PutUint16(buf[6:8], h.NumAtoms)
	binary.LittleEndian.PutUint32(buf[8:12], h.Length)
}
