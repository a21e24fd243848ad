// Package dtb wraps the device-tree overlay carried in a HAT EEPROM image.
//
// The blob is kept as raw bytes. Property lookups and edits are delegated to a
// Codec (FDT by default); the blob is only re-serialized after it was edited,
// so an untouched overlay round-trips byte for byte.
package dtb

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrCorruptBlob      = errors.New("corrupt device tree blob")
	ErrPropertyNotFound = errors.New("device tree property not found")
)

// Tree is a parsed device tree as exposed by a Codec.
type Tree interface {
	// Property returns the property called name on the node at path. The path is
	// relative to the root node, e.g. "fragment@0/__overlay__".
	Property(name, path string) (Property, error)
	SetProperty(name, path string, value []byte) error
	Serialize() ([]byte, error)
}

// Codec parses raw blob bytes into a Tree.
type Codec interface {
	Parse(raw []byte) (Tree, error)
}

// Blob is a handle on a device-tree blob.
type Blob struct {
	codec   Codec
	raw     []byte
	tree    Tree
	mutated bool
}

// Wrap parses raw with codec and returns a handle holding a copy of raw.
// A nil codec selects FDT.
func Wrap(codec Codec, raw []byte) (*Blob, error) {
	if codec == nil {
		codec = FDT{}
	}
	tree, err := codec.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptBlob, err)
	}
	return &Blob{codec: codec, raw: bytes.Clone(raw), tree: tree}, nil
}

func (b *Blob) Property(name, path string) (Property, error) {
	return b.tree.Property(name, path)
}

// SetProperty edits the tree. The next call to Bytes re-serializes the blob.
func (b *Blob) SetProperty(name, path string, value []byte) error {
	err := b.tree.SetProperty(name, path, value)
	if err != nil {
		return err
	}
	b.mutated = true
	return nil
}

// Mutated reports whether the tree was edited since the last serialization.
func (b *Blob) Mutated() bool {
	return b.mutated
}

// Bytes returns the current serialization of the blob.
func (b *Blob) Bytes() ([]byte, error) {
	if b.mutated {
		out, err := b.tree.Serialize()
		if err != nil {
			return nil, fmt.Errorf("could not serialize device tree: %w", err)
		}
		b.raw = out
		b.mutated = false
	}
	return bytes.Clone(b.raw), nil
}

// Clone returns an independent handle over the current serialization.
func (b *Blob) Clone() (*Blob, error) {
	raw, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	return Wrap(b.codec, raw)
}

// Property is a single device-tree property.
type Property struct {
	Name  string
	Value []byte
}

// String returns the first NUL-terminated string of the value.
func (p Property) String() string {
	if i := bytes.IndexByte(p.Value, 0); i >= 0 {
		return string(p.Value[:i])
	}
	return string(p.Value)
}

// Strings splits a string-list value.
func (p Property) Strings() []string {
	v := bytes.TrimSuffix(p.Value, []byte{0})
	if len(v) == 0 {
		return nil
	}
	parts := bytes.Split(v, []byte{0})
	res := make([]string, len(parts))
	for i, part := range parts {
		res[i] = string(part)
	}
	return res
}
