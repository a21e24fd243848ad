package dtb

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/u-root/u-root/pkg/dt"
)

var _ Codec = FDT{}

// FDT parses flattened device tree blobs (.dtb/.dtbo).
type FDT struct{}

func (FDT) Parse(raw []byte) (Tree, error) {
	fdt, err := dt.ReadFDT(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("could not read fdt: %w", err)
	}
	if fdt.RootNode == nil {
		return nil, fmt.Errorf("fdt has no root node")
	}
	return &fdtTree{fdt: fdt}, nil
}

type fdtTree struct {
	fdt *dt.FDT
}

func (t *fdtTree) node(path string) (*dt.Node, error) {
	n := t.fdt.RootNode
	for _, name := range strings.Split(strings.Trim(path, "/"), "/") {
		if name == "" {
			continue
		}
		var next *dt.Node
		for _, child := range n.Children {
			if child.Name == name {
				next = child
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("%w: no node %q in %q", ErrPropertyNotFound, name, path)
		}
		n = next
	}
	return n, nil
}

func (t *fdtTree) Property(name, path string) (Property, error) {
	n, err := t.node(path)
	if err != nil {
		return Property{}, err
	}
	for _, p := range n.Properties {
		if p.Name == name {
			return Property{Name: p.Name, Value: bytes.Clone(p.Value)}, nil
		}
	}
	return Property{}, fmt.Errorf("%w: %s in /%s", ErrPropertyNotFound, name, strings.Trim(path, "/"))
}

func (t *fdtTree) SetProperty(name, path string, value []byte) error {
	n, err := t.node(path)
	if err != nil {
		return err
	}
	for i := range n.Properties {
		if n.Properties[i].Name == name {
			n.Properties[i].Value = bytes.Clone(value)
			return nil
		}
	}
	n.Properties = append(n.Properties, dt.Property{Name: name, Value: bytes.Clone(value)})
	return nil
}

func (t *fdtTree) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	_, err := t.fdt.Write(&buf)
	if err != nil {
		return nil, fmt.Errorf("could not write fdt: %w", err)
	}
	return buf.Bytes(), nil
}
