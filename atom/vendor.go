package atom

import (
	"encoding/binary"
	"fmt"

	"github.com/gofrs/uuid"
)

// vendorFixedSize covers uuid(16) pid(2) pver(2) vslen(1) pslen(1)
const vendorFixedSize = 22

// maxStringLength is the largest string a one-byte length prefix can describe.
const maxStringLength = 0xFF

var _ Atom = &VendorInfo{}

// VendorInfo is the board identity atom. A nil UUID means the board has not
// been assigned one yet.
type VendorInfo struct {
	UUID           uuid.UUID
	ProductID      uint16
	ProductVersion uint16
	Vendor         string
	Product        string
}

func (v *VendorInfo) Type() Type { return TypeVendorInfo }

// MarshalBinary fails only when a string does not fit its length prefix.
func (v *VendorInfo) MarshalBinary() ([]byte, error) {
	if len(v.Vendor) > maxStringLength {
		return nil, &FieldError{Field: "vendor", Pin: -1, Value: len(v.Vendor),
			Reason: fmt.Sprintf("%d bytes do not fit a %d byte limit", len(v.Vendor), maxStringLength)}
	}
	if len(v.Product) > maxStringLength {
		return nil, &FieldError{Field: "product", Pin: -1, Value: len(v.Product),
			Reason: fmt.Sprintf("%d bytes do not fit a %d byte limit", len(v.Product), maxStringLength)}
	}
	buf := make([]byte, vendorFixedSize, vendorFixedSize+len(v.Vendor)+len(v.Product))
	putUUID(buf[0:16], v.UUID)
	binary.LittleEndian.PutUint16(buf[16:18], v.ProductID)
	binary.LittleEndian.PutUint16(buf[18:20], v.ProductVersion)
	buf[20] = byte(len(v.Vendor))
	buf[21] = byte(len(v.Product))
	buf = append(buf, v.Vendor...)
	buf = append(buf, v.Product...)
	return buf, nil
}

func (v *VendorInfo) UnmarshalBinary(data []byte) error {
	if len(data) < vendorFixedSize {
		return &FieldError{Field: "vendor info", Pin: -1, Value: len(data),
			Reason: fmt.Sprintf("payload is %d bytes, need at least %d", len(data), vendorFixedSize)}
	}
	vslen := int(data[20])
	pslen := int(data[21])
	if expected := vendorFixedSize + vslen + pslen; len(data) != expected {
		return &FieldError{Field: "vendor info", Pin: -1, Value: len(data),
			Reason: fmt.Sprintf("payload is %d bytes, string lengths require %d", len(data), expected)}
	}
	v.UUID = getUUID(data[0:16])
	v.ProductID = binary.LittleEndian.Uint16(data[16:18])
	v.ProductVersion = binary.LittleEndian.Uint16(data[18:20])
	v.Vendor = string(data[vendorFixedSize : vendorFixedSize+vslen])
	v.Product = string(data[vendorFixedSize+vslen:])
	return nil
}

// The UUID is stored as a little-endian 128-bit integer, i.e. the reverse of
// its RFC 4122 byte order.
func putUUID(dst []byte, u uuid.UUID) {
	for i := range uuid.Size {
		dst[i] = u[uuid.Size-1-i]
	}
}

func getUUID(src []byte) uuid.UUID {
	var u uuid.UUID
	for i := range uuid.Size {
		u[i] = src[uuid.Size-1-i]
	}
	return u
}
