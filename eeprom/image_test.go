package eeprom

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/hateeprom/atom"
	"github.com/mklimuk/hateeprom/dtb"
)

const (
	sampleFile = "testdata/sample.eep"
	spidevFile = "testdata/spidev.eep"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	raw, err := os.ReadFile(name)
	require.NoError(t, err)
	return raw
}

// rawImage frames records behind a valid header.
func rawImage(records ...[]byte) []byte {
	buf := make([]byte, HeaderSize)
	for _, r := range records {
		buf = append(buf, r...)
	}
	Header{Version: FormatVersion, NumAtoms: uint16(len(records)), Length: uint32(len(buf))}.put(buf)
	return buf
}

func vendorRecord(t *testing.T, index uint16) []byte {
	t.Helper()
	data, err := (&atom.VendorInfo{Vendor: "v", Product: "p"}).MarshalBinary()
	require.NoError(t, err)
	return atom.EncodeRecord(atom.TypeVendorInfo, index, data)
}

func gpioRecord(index uint16) []byte {
	return atom.EncodeRecord(atom.TypeGPIOMap, index, make([]byte, atom.GPIOMapSize))
}

func TestParse_RoundTrip(t *testing.T) {
	for _, name := range []string{sampleFile, spidevFile} {
		t.Run(name, func(t *testing.T) {
			raw := fixture(t, name)
			img, err := Parse(raw)
			require.NoError(t, err)
			out, err := img.Bytes()
			require.NoError(t, err)
			assert.Equal(t, raw, out)

			again, err := Parse(out)
			require.NoError(t, err)
			assert.True(t, img.Equal(again))
		})
	}
}

func TestParse_Sample(t *testing.T) {
	img, err := Parse(fixture(t, sampleFile))
	require.NoError(t, err)

	types := make([]atom.Type, 0, 3)
	for _, a := range img.Atoms() {
		types = append(types, a.Type())
	}
	assert.Equal(t, []atom.Type{atom.TypeVendorInfo, atom.TypeGPIOMap, atom.TypeDeviceTree}, types)

	v := img.Vendor()
	assert.Equal(t, uuid.Must(uuid.FromString("23872014-7f74-46f9-b521-02456d9c8261")), v.UUID)
	assert.Equal(t, uint16(0xcafe), v.ProductID)
	assert.Equal(t, uint16(7), v.ProductVersion)
	assert.Equal(t, "The Factory", v.Vendor)
	assert.Equal(t, "Sample Board", v.Product)

	blob := img.DeviceTree()
	require.NotNil(t, blob)
	prop, err := blob.Property("status", "fragment@0/__overlay__")
	require.NoError(t, err)
	assert.Equal(t, "okay", prop.String())
	assert.Empty(t, img.Customs())
}

func TestParse_Header(t *testing.T) {
	valid := fixture(t, spidevFile)
	patch := func(fn func(b []byte)) []byte {
		b := bytes.Clone(valid)
		fn(b)
		return b
	}
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", valid[:HeaderSize-1]},
		{"signature", patch(func(b []byte) { b[0] = 'r' })},
		{"version", patch(func(b []byte) { b[4] = 2 })},
		{"length too long", patch(func(b []byte) { binary.LittleEndian.PutUint32(b[8:], uint32(len(b)+1)) })},
		{"length too short", patch(func(b []byte) { binary.LittleEndian.PutUint32(b[8:], uint32(len(b)-1)) })},
		{"length below header", patch(func(b []byte) { binary.LittleEndian.PutUint32(b[8:], 4) })},
		{"too many atoms", patch(func(b []byte) { binary.LittleEndian.PutUint16(b[6:], 4) })},
		{"trailing atom", patch(func(b []byte) { binary.LittleEndian.PutUint16(b[6:], 2) })},
		{"truncated image", valid[:len(valid)-4]},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(test.data)
			assert.ErrorIs(t, err, ErrHeaderInvalid)
		})
	}
}

func TestParse_ReservedHeaderByte(t *testing.T) {
	raw := fixture(t, spidevFile)
	raw[5] = 0x5a
	img, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x5a), img.Reserved)
	out, err := img.Bytes()
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestParse_CRCBitFlip(t *testing.T) {
	for _, name := range []string{sampleFile, spidevFile} {
		t.Run(name, func(t *testing.T) {
			raw := fixture(t, name)
			// any bit outside the header still breaks the image
			for i := HeaderSize * 8; i < len(raw)*8; i++ {
				corrupt := bytes.Clone(raw)
				corrupt[i/8] ^= 1 << (i % 8)
				_, err := Parse(corrupt)
				require.Error(t, err, "bit %d", i)
			}

			// payload bits always surface as a crc mismatch
			for _, r := range payloadRanges(t, raw) {
				for i := r[0] * 8; i < r[1]*8; i++ {
					corrupt := bytes.Clone(raw)
					corrupt[i/8] ^= 1 << (i % 8)
					_, err := Parse(corrupt)
					require.ErrorIs(t, err, ErrImageCorrupt, "bit %d", i)
					require.ErrorIs(t, err, atom.ErrCRCMismatch, "bit %d", i)
				}
			}
		})
	}
}

// payloadRanges returns the [start, end) offsets of every atom payload in raw.
func payloadRanges(t *testing.T, raw []byte) [][2]int {
	t.Helper()
	var ranges [][2]int
	off := HeaderSize
	for off < len(raw) {
		require.LessOrEqual(t, off+atom.HeaderSize, len(raw))
		dlen := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		start := off + atom.HeaderSize
		end := start + dlen - atom.CRCSize
		ranges = append(ranges, [2]int{start, end})
		off = end + atom.CRCSize
	}
	require.Equal(t, len(raw), off)
	return ranges
}

func TestParse_MandatoryAtoms(t *testing.T) {
	custom := atom.EncodeRecord(atom.TypeCustom, 0, []byte("x"))
	dt := atom.EncodeRecord(atom.TypeDeviceTree, 2, fixture(t, "../dtb/testdata/overlay.dtbo"))
	tests := []struct {
		name    string
		data    []byte
		corrupt bool
	}{
		{"no atoms", rawImage(), true},
		{"vendor only", rawImage(vendorRecord(t, 0)), true},
		{"gpio only", rawImage(gpioRecord(0)), true},
		{"custom only", rawImage(custom), true},
		{"two vendors", rawImage(vendorRecord(t, 0), vendorRecord(t, 1), gpioRecord(2)), true},
		{"two gpio maps", rawImage(vendorRecord(t, 0), gpioRecord(1), gpioRecord(2)), true},
		{"two device trees", rawImage(vendorRecord(t, 0), gpioRecord(1), dt, dt), true},
		{"minimal", rawImage(vendorRecord(t, 0), gpioRecord(1)), false},
		{"gpio first", rawImage(gpioRecord(0), vendorRecord(t, 1)), false},
		{"custom before dt", rawImage(vendorRecord(t, 0), gpioRecord(1), atom.EncodeRecord(atom.TypeCustom, 2, []byte("x")),
			atom.EncodeRecord(atom.TypeDeviceTree, 3, fixture(t, "../dtb/testdata/overlay.dtbo"))), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			img, err := Parse(test.data)
			if test.corrupt {
				assert.ErrorIs(t, err, ErrImageCorrupt)
				return
			}
			require.NoError(t, err)
			out, err := img.Bytes()
			require.NoError(t, err)
			assert.Equal(t, test.data, out)
		})
	}
}

func TestParse_UnknownAtomsPreserved(t *testing.T) {
	raw := rawImage(
		vendorRecord(t, 0),
		atom.EncodeRecord(0x0042, 1, []byte{0xde, 0xad}),
		gpioRecord(2),
		atom.EncodeRecord(atom.TypeReserved, 3, nil),
	)
	img, err := Parse(raw)
	require.NoError(t, err)
	customs := img.Customs()
	require.Len(t, customs, 2)
	assert.Equal(t, atom.Type(0x0042), customs[0].Tag)
	assert.Equal(t, []byte{0xde, 0xad}, customs[0].Data)
	assert.Equal(t, atom.TypeReserved, customs[1].Tag)

	out, err := img.Bytes()
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestParse_RecountsAtoms(t *testing.T) {
	// counts are recomputed on serialize
	raw := rawImage(vendorRecord(t, 9), gpioRecord(9))
	img, err := Parse(raw)
	require.NoError(t, err)
	out, err := img.Bytes()
	require.NoError(t, err)
	assert.Equal(t, rawImage(vendorRecord(t, 0), gpioRecord(1)), out)
}

func TestReadImage(t *testing.T) {
	raw := fixture(t, sampleFile)

	// a device larger than the image
	padded := append(bytes.Clone(raw), bytes.Repeat([]byte{0xff}, 4096-len(raw))...)
	r := bytes.NewReader(padded)
	img, err := ReadImage(r)
	require.NoError(t, err)
	assert.Equal(t, 4096-len(raw), r.Len())
	out, err := img.Bytes()
	require.NoError(t, err)
	assert.Equal(t, raw, out)

	_, err = ReadImage(bytes.NewReader(raw[:len(raw)-1]))
	assert.ErrorIs(t, err, ErrHeaderInvalid)
	_, err = ReadImage(bytes.NewReader(raw[:6]))
	assert.ErrorIs(t, err, ErrHeaderInvalid)
	_, err = ReadImage(bytes.NewReader(bytes.Repeat([]byte{0xff}, 64)))
	assert.ErrorIs(t, err, ErrHeaderInvalid)
}

func TestParse_Codec(t *testing.T) {
	var parsed [][]byte
	codec := codecFunc(func(raw []byte) (dtb.Tree, error) {
		parsed = append(parsed, raw)
		return dtb.FDT{}.Parse(raw)
	})
	_, err := Parse(fixture(t, sampleFile), DecodeWith(codec))
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Len(t, parsed[0], 262)
}

type codecFunc func(raw []byte) (dtb.Tree, error)

func (f codecFunc) Parse(raw []byte) (dtb.Tree, error) { return f(raw) }

func TestImage_NewImage(t *testing.T) {
	img := NewImage()
	out, err := img.Bytes()
	require.NoError(t, err)
	assert.Len(t, out, HeaderSize+(atom.HeaderSize+22+atom.CRCSize)+(atom.HeaderSize+atom.GPIOMapSize+atom.CRCSize))
	parsed, err := Parse(out)
	require.NoError(t, err)
	assert.True(t, img.Equal(parsed))
	assert.Equal(t, uuid.Nil, parsed.Vendor().UUID)
}

func TestImage_DeviceTreePlacement(t *testing.T) {
	img, err := Parse(fixture(t, spidevFile))
	require.NoError(t, err)
	require.Nil(t, img.DeviceTree())

	blob, err := dtb.Wrap(nil, fixture(t, "../dtb/testdata/overlay.dtbo"))
	require.NoError(t, err)
	img.SetDeviceTree(blob)
	types := func() []atom.Type {
		var res []atom.Type
		for _, a := range img.Atoms() {
			res = append(res, a.Type())
		}
		return res
	}
	assert.Equal(t, []atom.Type{atom.TypeVendorInfo, atom.TypeGPIOMap, atom.TypeDeviceTree, atom.TypeCustom}, types())

	// replaced in place
	img.SetDeviceTree(blob)
	assert.Len(t, types(), 4)
	assert.Same(t, blob, img.DeviceTree())

	img.AddCustom(atom.TypeCustom, []byte("more"))
	img.RemoveDeviceTree()
	assert.Equal(t, []atom.Type{atom.TypeVendorInfo, atom.TypeGPIOMap, atom.TypeCustom, atom.TypeCustom}, types())
	img.SetDeviceTree(nil)
	assert.Nil(t, img.DeviceTree())
}

func TestImage_Clone(t *testing.T) {
	img, err := Parse(fixture(t, sampleFile))
	require.NoError(t, err)
	img.AddCustom(atom.TypeCustom, []byte("abc"))

	clone, err := img.Clone()
	require.NoError(t, err)
	assert.True(t, img.Equal(clone))

	clone.Vendor().Product = "Other"
	clone.GPIO().Pins[0].Used = true
	clone.Customs()[0].Data[0] = 'x'
	require.NoError(t, clone.DeviceTree().SetProperty("status", "fragment@0/__overlay__", []byte("disabled\x00")))

	assert.Equal(t, "Sample Board", img.Vendor().Product)
	assert.False(t, img.GPIO().Pins[0].Used)
	assert.Equal(t, []byte("abc"), img.Customs()[0].Data)
	prop, err := img.DeviceTree().Property("status", "fragment@0/__overlay__")
	require.NoError(t, err)
	assert.Equal(t, "okay", prop.String())
	assert.False(t, img.Equal(clone))
}

func TestImage_CloneEmptyDeviceTree(t *testing.T) {
	img := NewImage()
	img.atoms = append(img.atoms, &atom.DeviceTree{})

	clone, err := img.Clone()
	require.NoError(t, err)
	require.Len(t, clone.Atoms(), 3)
	assert.Nil(t, clone.DeviceTree())
	assert.True(t, img.Equal(clone))
}
