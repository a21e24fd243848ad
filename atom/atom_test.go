package atom

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/hateeprom/dtb"
)

// atoms of the spidev fixture, header stripped
const spidevAtoms = "010000002c000000d0c5c2b0f361b6a11e4bc73cf5e1219cedfe01000b0954686520466163746f7279535049205468696e67ebe4" +
	"0200010020000000000000000000000000008484848400000000000000000000000000000000902a" +
	"040002000e00000073657269616c3d303034320aebff"

func spidev(t *testing.T) []byte {
	t.Helper()
	raw, err := hex.DecodeString(spidevAtoms)
	require.NoError(t, err)
	return raw
}

func TestReader_Spidev(t *testing.T) {
	r := NewReader(bytes.NewReader(spidev(t)))

	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, TypeVendorInfo, rec.Type)
	assert.Equal(t, uint16(0), rec.Count)
	assert.Equal(t, uint16(0xE4EB), rec.CRC)
	assert.Equal(t, 52, rec.Size())

	a, err := Decode(rec, nil)
	require.NoError(t, err)
	vendor, ok := a.(*VendorInfo)
	require.True(t, ok)
	assert.Equal(t, uuid.Must(uuid.FromString("9c21e1f5-3cc7-4b1e-a1b6-61f3b0c2c5d0")), vendor.UUID)
	assert.Equal(t, uint16(0xFEED), vendor.ProductID)
	assert.Equal(t, uint16(1), vendor.ProductVersion)
	assert.Equal(t, "The Factory", vendor.Vendor)
	assert.Equal(t, "SPI Thing", vendor.Product)

	rec, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, TypeGPIOMap, rec.Type)
	a, err = Decode(rec, nil)
	require.NoError(t, err)
	gpio := a.(*GPIOMap)
	for i := 8; i <= 11; i++ {
		assert.Equal(t, Pin{Used: true, Function: FunctionAlt0}, gpio.Pins[i])
	}

	rec, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, TypeCustom, rec.Type)
	assert.Equal(t, uint16(2), rec.Count)
	a, err = Decode(rec, nil)
	require.NoError(t, err)
	assert.Equal(t, &Custom{Tag: TypeCustom, Data: []byte("serial=0042\n")}, a)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestEncode_RoundTrip(t *testing.T) {
	raw := spidev(t)
	r := NewReader(bytes.NewReader(raw))
	var out []byte
	for i := 0; ; i++ {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		a, err := Decode(rec, nil)
		require.NoError(t, err)
		encoded, err := Encode(a, i)
		require.NoError(t, err)
		out = append(out, encoded...)
	}
	assert.Equal(t, raw, out)
}

func TestReader_CRCBitFlip(t *testing.T) {
	raw := spidev(t)
	// every bit of the first atom, trailer included
	for i := range 52 * 8 {
		corrupt := bytes.Clone(raw)
		corrupt[i/8] ^= 1 << (i % 8)
		_, err := NewReader(bytes.NewReader(corrupt)).Next()
		require.Error(t, err, "bit %d", i)
		if i/8 >= 4 && i/8 < 8 {
			// dlen changes shift the frame, any error will do
			continue
		}
		require.ErrorIs(t, err, ErrCRCMismatch, "bit %d", i)
		var crcErr *CRCError
		require.ErrorAs(t, err, &crcErr)
		assert.Equal(t, 0, crcErr.Index)
	}
}

func TestReader_Truncated(t *testing.T) {
	raw := spidev(t)
	tests := []struct {
		name string
		size int
	}{
		{"inside header", 5},
		{"inside data", 30},
		{"missing crc", 51},
		{"second atom header", 55},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := NewReader(bytes.NewReader(raw[:test.size]))
			var err error
			for err == nil {
				_, err = r.Next()
			}
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		})
	}
}

func TestReader_ShortLength(t *testing.T) {
	raw := []byte{0x04, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0xAA}
	_, err := NewReader(bytes.NewReader(raw)).Next()
	require.ErrorIs(t, err, ErrMalformedField)
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "dlen", fe.Field)
}

func TestDecode_UnknownTypePreserved(t *testing.T) {
	for _, tag := range []Type{TypeInvalid, 0x0005, 0x1234, TypeReserved} {
		t.Run(tag.String(), func(t *testing.T) {
			framed := EncodeRecord(tag, 7, []byte{1, 2, 3})
			rec, err := NewReader(bytes.NewReader(framed)).Next()
			require.NoError(t, err)
			a, err := Decode(rec, nil)
			require.NoError(t, err)
			assert.Equal(t, tag, a.Type())
			out, err := Encode(a, 7)
			require.NoError(t, err)
			assert.Equal(t, framed, out)
		})
	}
}

func TestDecode_CorruptDeviceTree(t *testing.T) {
	_, err := Decode(Record{Type: TypeDeviceTree, Data: []byte("not a blob")}, nil)
	assert.ErrorIs(t, err, dtb.ErrCorruptBlob)
}

func TestVendorInfo(t *testing.T) {
	id := uuid.Must(uuid.FromString("00112233-4455-6677-8899-aabbccddeeff"))
	v := &VendorInfo{UUID: id, ProductID: 0x0102, ProductVersion: 0x0304, Vendor: "ab", Product: "xyz"}
	data, err := v.MarshalBinary()
	require.NoError(t, err)
	expected, _ := hex.DecodeString("ffeeddccbbaa99887766554433221100" + "0201" + "0403" + "02" + "03" + "6162" + "78797a")
	assert.Equal(t, expected, data)

	decoded := &VendorInfo{}
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, v, decoded)

	assert.ErrorIs(t, decoded.UnmarshalBinary(data[:10]), ErrMalformedField)
	assert.ErrorIs(t, decoded.UnmarshalBinary(data[:len(data)-1]), ErrMalformedField)
	assert.ErrorIs(t, decoded.UnmarshalBinary(append(bytes.Clone(data), 0)), ErrMalformedField)

	v.Product = strings.Repeat("p", 256)
	_, err = v.MarshalBinary()
	require.ErrorIs(t, err, ErrMalformedField)
	_, err = Encode(v, 0)
	assert.ErrorIs(t, err, ErrMalformedField)

	v.Product = strings.Repeat("p", 255)
	_, err = v.MarshalBinary()
	assert.NoError(t, err)
}
