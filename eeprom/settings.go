package eeprom

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/gofrs/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/hateeprom/atom"
	"github.com/mklimuk/hateeprom/dtb"
)

// Settings is the human editable form of an image.
//
//	vendor:
//	  uuid: 23872014-7f74-46f9-b521-02456d9c8261
//	  product_id: 0xcafe
//	  product_version: 7
//	  vendor: The Factory
//	  product: Sample Board
//	bank:
//	  drive: 14mA
//	  slew: limited
//	  hysteresis: default
//	  back_power: 2A
//	pins:
//	  - gpio: 2
//	    used: true
//	    function: input
//	    pull: default
//	dt_file: overlay.dtbo
//	custom:
//	  - data: c2VyaWFsPTAwNDIK
//
// dt_file is resolved relative to the settings file by ReadSettingsFile and
// takes precedence over an inline base64 dt_blob.
type Settings struct {
	Vendor         VendorSettings   `yaml:"vendor"`
	Bank           atom.Bank        `yaml:"bank"`
	Pins           []PinSettings    `yaml:"pins,omitempty"`
	DeviceTree     Binary           `yaml:"dt_blob,omitempty"`
	DeviceTreeFile string           `yaml:"dt_file,omitempty"`
	Custom         []CustomSettings `yaml:"custom,omitempty"`
}

type VendorSettings struct {
	UUID           uuid.UUID `yaml:"uuid"`
	ProductID      uint16    `yaml:"product_id"`
	ProductVersion uint16    `yaml:"product_version"`
	Vendor         string    `yaml:"vendor"`
	Product        string    `yaml:"product"`
}

type PinSettings struct {
	GPIO     int `yaml:"gpio"`
	atom.Pin `yaml:",inline"`
}

type CustomSettings struct {
	// Type defaults to the manufacturer custom type.
	Type atom.Type `yaml:"type,omitempty"`
	Data Binary    `yaml:"data"`
}

// Binary is a byte slice written as base64 text.
type Binary []byte

func (b Binary) MarshalText() ([]byte, error) {
	return []byte(base64.StdEncoding.EncodeToString(b)), nil
}

func (b *Binary) UnmarshalText(text []byte) error {
	raw, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("could not decode base64: %w", err)
	}
	*b = raw
	return nil
}

// ExportSettings converts an image to settings. Pins left at their zero value
// are omitted.
func ExportSettings(img *Image) (*Settings, error) {
	v := img.Vendor()
	g := img.GPIO()
	s := &Settings{
		Vendor: VendorSettings{
			UUID:           v.UUID,
			ProductID:      v.ProductID,
			ProductVersion: v.ProductVersion,
			Vendor:         v.Vendor,
			Product:        v.Product,
		},
		Bank: g.Bank,
	}
	for i, pin := range g.Pins {
		if pin != (atom.Pin{}) {
			s.Pins = append(s.Pins, PinSettings{GPIO: i, Pin: pin})
		}
	}
	if blob := img.DeviceTree(); blob != nil {
		raw, err := blob.Bytes()
		if err != nil {
			return nil, err
		}
		s.DeviceTree = raw
	}
	for _, c := range img.Customs() {
		s.Custom = append(s.Custom, CustomSettings{Type: c.Tag, Data: slices.Clone(c.Data)})
	}
	return s, nil
}

// Image builds an image in canonical order. codec may be nil.
func (s *Settings) Image(codec dtb.Codec) (*Image, error) {
	img := NewImage()
	v := img.Vendor()
	v.UUID = s.Vendor.UUID
	v.ProductID = s.Vendor.ProductID
	v.ProductVersion = s.Vendor.ProductVersion
	v.Vendor = s.Vendor.Vendor
	v.Product = s.Vendor.Product

	if !s.Bank.Drive.Valid() || !s.Bank.Slew.Valid() || !s.Bank.Hysteresis.Valid() || !s.Bank.BackPower.Valid() {
		return nil, fmt.Errorf("invalid bank settings %+v", s.Bank)
	}
	g := img.GPIO()
	g.Bank = s.Bank
	seen := map[int]bool{}
	for _, p := range s.Pins {
		if p.GPIO < 0 || p.GPIO >= atom.PinCount {
			return nil, fmt.Errorf("gpio %d out of range 0..%d", p.GPIO, atom.PinCount-1)
		}
		if seen[p.GPIO] {
			return nil, fmt.Errorf("gpio %d configured twice", p.GPIO)
		}
		seen[p.GPIO] = true
		g.Pins[p.GPIO] = p.Pin
	}

	if len(s.DeviceTree) > 0 {
		blob, err := dtb.Wrap(codec, s.DeviceTree)
		if err != nil {
			return nil, err
		}
		img.SetDeviceTree(blob)
	}
	for _, c := range s.Custom {
		tag := c.Type
		if tag == atom.TypeInvalid {
			tag = atom.TypeCustom
		}
		img.AddCustom(tag, c.Data)
	}
	return img, nil
}

func ReadSettings(r io.Reader) (*Settings, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	s := &Settings{}
	err := dec.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("could not decode settings: %w", err)
	}
	return s, nil
}

// ReadSettingsFile reads settings from path and loads dt_file, if set.
func ReadSettingsFile(path string) (*Settings, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open settings: %w", err)
	}
	defer fh.Close()
	s, err := ReadSettings(fh)
	if err != nil {
		return nil, err
	}
	if s.DeviceTreeFile != "" {
		dtPath := s.DeviceTreeFile
		if !filepath.IsAbs(dtPath) {
			dtPath = filepath.Join(filepath.Dir(path), dtPath)
		}
		raw, err := os.ReadFile(dtPath)
		if err != nil {
			return nil, fmt.Errorf("could not read device tree: %w", err)
		}
		s.DeviceTree = raw
	}
	return s, nil
}

func (s *Settings) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	err := enc.Encode(s)
	if err != nil {
		return fmt.Errorf("could not encode settings: %w", err)
	}
	return enc.Close()
}
