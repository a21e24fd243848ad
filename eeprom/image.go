// Package eeprom assembles HAT ID EEPROM images from atoms and manages an
// image bound to a file or stream.
package eeprom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/mklimuk/hateeprom/atom"
	"github.com/mklimuk/hateeprom/dtb"
)

// ParseOption configures Parse and ReadImage.
type ParseOption func(*parseConfig)

type parseConfig struct {
	codec dtb.Codec
}

// DecodeWith selects the codec used for the device-tree atom.
func DecodeWith(codec dtb.Codec) ParseOption {
	return func(c *parseConfig) {
		c.codec = codec
	}
}

// Image is an ordered list of atoms plus the header fields that are not
// derived from them.
type Image struct {
	Version  uint8
	Reserved uint8
	atoms    []atom.Atom
}

// NewImage returns an empty image in canonical layout: a blank vendor atom
// followed by a blank GPIO map.
func NewImage() *Image {
	return &Image{
		Version: FormatVersion,
		atoms:   []atom.Atom{&atom.VendorInfo{}, &atom.GPIOMap{}},
	}
}

// Parse decodes a complete image. The data must be exactly as long as the
// header declares.
func Parse(data []byte, opts ...ParseOption) (*Image, error) {
	cfg := parseConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if int(h.Length) != len(data) {
		return nil, fmt.Errorf("%w: declared length %d, image is %d bytes", ErrHeaderInvalid, h.Length, len(data))
	}
	img := &Image{Version: h.Version, Reserved: h.Reserved, atoms: make([]atom.Atom, 0, h.NumAtoms)}
	body := bytes.NewReader(data[HeaderSize:])
	r := atom.NewReader(body)
	for i := range int(h.NumAtoms) {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: header declares %d atoms, found %d", ErrHeaderInvalid, h.NumAtoms, i)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrImageCorrupt, err)
		}
		a, err := atom.Decode(rec, cfg.codec)
		if err != nil {
			return nil, fmt.Errorf("%w: atom %d: %w", ErrImageCorrupt, i, err)
		}
		img.atoms = append(img.atoms, a)
	}
	if body.Len() > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d atoms", ErrHeaderInvalid, body.Len(), h.NumAtoms)
	}
	if err := img.validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// ReadImage reads one image from r. Only the bytes declared by the header are
// consumed, so r may be a device larger than the image.
func ReadImage(r io.Reader, opts ...ParseOption) (*Image, error) {
	hdr := make([]byte, HeaderSize)
	_, err := io.ReadFull(r, hdr)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %w", ErrHeaderInvalid, err)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read eeprom header: %w", err)
	}
	h, err := ParseHeader(hdr)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(hdr)
	n, err := io.CopyN(&buf, r, int64(h.Length)-HeaderSize)
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: declared length %d, read %d bytes", ErrHeaderInvalid, h.Length, HeaderSize+n)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read eeprom image: %w", err)
	}
	return Parse(buf.Bytes(), opts...)
}

func (img *Image) validate() error {
	counts := map[atom.Type]int{}
	for _, a := range img.atoms {
		counts[a.Type()]++
	}
	switch {
	case counts[atom.TypeVendorInfo] != 1:
		return fmt.Errorf("%w: expected one vendor info atom, found %d", ErrImageCorrupt, counts[atom.TypeVendorInfo])
	case counts[atom.TypeGPIOMap] != 1:
		return fmt.Errorf("%w: expected one gpio map atom, found %d", ErrImageCorrupt, counts[atom.TypeGPIOMap])
	case counts[atom.TypeDeviceTree] > 1:
		return fmt.Errorf("%w: found %d device tree atoms", ErrImageCorrupt, counts[atom.TypeDeviceTree])
	}
	return nil
}

// Bytes serializes the image in stored order. Atom indexes, lengths, CRCs and
// the header are recomputed.
func (img *Image) Bytes() ([]byte, error) {
	buf := make([]byte, HeaderSize, 256)
	for i, a := range img.atoms {
		encoded, err := atom.Encode(a, i)
		if err != nil {
			return nil, err
		}
		buf = append(buf, encoded...)
	}
	Header{
		Version:  img.Version,
		Reserved: img.Reserved,
		NumAtoms: uint16(len(img.atoms)),
		Length:   uint32(len(buf)),
	}.put(buf)
	return buf, nil
}

// Atoms returns the atoms in stored order. The slice is a copy, the atoms are
// not.
func (img *Image) Atoms() []atom.Atom {
	return slices.Clone(img.atoms)
}

// Vendor returns the vendor atom, adding a blank one at the front when the
// image has none.
func (img *Image) Vendor() *atom.VendorInfo {
	for _, a := range img.atoms {
		if v, ok := a.(*atom.VendorInfo); ok {
			return v
		}
	}
	v := &atom.VendorInfo{}
	img.atoms = slices.Insert(img.atoms, 0, atom.Atom(v))
	return v
}

// GPIO returns the GPIO map atom, adding a blank one after the vendor atom
// when the image has none.
func (img *Image) GPIO() *atom.GPIOMap {
	for _, a := range img.atoms {
		if g, ok := a.(*atom.GPIOMap); ok {
			return g
		}
	}
	g := &atom.GPIOMap{}
	img.atoms = slices.Insert(img.atoms, img.indexOf(atom.TypeVendorInfo)+1, atom.Atom(g))
	return g
}

// DeviceTree returns the device-tree blob or nil.
func (img *Image) DeviceTree() *dtb.Blob {
	for _, a := range img.atoms {
		if d, ok := a.(*atom.DeviceTree); ok {
			return d.Blob
		}
	}
	return nil
}

// SetDeviceTree replaces the blob in place or inserts a new device-tree atom
// right after the GPIO map. A nil blob removes it.
func (img *Image) SetDeviceTree(blob *dtb.Blob) {
	if blob == nil {
		img.RemoveDeviceTree()
		return
	}
	if i := img.indexOf(atom.TypeDeviceTree); i >= 0 {
		img.atoms[i] = &atom.DeviceTree{Blob: blob}
		return
	}
	img.GPIO()
	at := img.indexOf(atom.TypeGPIOMap) + 1
	img.atoms = slices.Insert(img.atoms, at, atom.Atom(&atom.DeviceTree{Blob: blob}))
}

func (img *Image) RemoveDeviceTree() {
	img.atoms = slices.DeleteFunc(img.atoms, func(a atom.Atom) bool {
		return a.Type() == atom.TypeDeviceTree
	})
}

// Customs returns every opaque atom, including unknown types, in stored order.
func (img *Image) Customs() []*atom.Custom {
	var res []*atom.Custom
	for _, a := range img.atoms {
		if c, ok := a.(*atom.Custom); ok {
			res = append(res, c)
		}
	}
	return res
}

// AddCustom appends an opaque atom.
func (img *Image) AddCustom(tag atom.Type, data []byte) {
	img.atoms = append(img.atoms, &atom.Custom{Tag: tag, Data: bytes.Clone(data)})
}

// Clone returns a deep copy.
func (img *Image) Clone() (*Image, error) {
	c := &Image{Version: img.Version, Reserved: img.Reserved, atoms: make([]atom.Atom, 0, len(img.atoms))}
	for _, a := range img.atoms {
		switch v := a.(type) {
		case *atom.VendorInfo:
			cp := *v
			c.atoms = append(c.atoms, &cp)
		case *atom.GPIOMap:
			cp := *v
			c.atoms = append(c.atoms, &cp)
		case *atom.DeviceTree:
			if v.Blob == nil {
				c.atoms = append(c.atoms, &atom.DeviceTree{})
				continue
			}
			blob, err := v.Blob.Clone()
			if err != nil {
				return nil, fmt.Errorf("could not clone device tree: %w", err)
			}
			c.atoms = append(c.atoms, &atom.DeviceTree{Blob: blob})
		case *atom.Custom:
			c.atoms = append(c.atoms, &atom.Custom{Tag: v.Tag, Data: bytes.Clone(v.Data)})
		default:
			return nil, fmt.Errorf("could not clone atom of type %s", a.Type())
		}
	}
	return c, nil
}

// Equal reports whether both images serialize to the same bytes. Images that
// cannot be serialized are never equal.
func (img *Image) Equal(other *Image) bool {
	if img == nil || other == nil {
		return img == other
	}
	a, err := img.Bytes()
	if err != nil {
		return false
	}
	b, err := other.Bytes()
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func (img *Image) indexOf(t atom.Type) int {
	return slices.IndexFunc(img.atoms, func(a atom.Atom) bool {
		return a.Type() == t
	})
}
