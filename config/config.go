// Package config holds build information and the hateeprom CLI configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/hateeprom"
	"github.com/mklimuk/hateeprom/eeprom"
)

// Set at build time with -ldflags -X.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const (
	BusLinux   = "linux"
	BusMCP2221 = "mcp2221"
)

// Config is the optional YAML configuration of the CLI. Command-line flags
// take precedence over it.
type Config struct {
	Policy   eeprom.Policy `yaml:"policy"`
	Hardware Hardware      `yaml:"hardware"`
}

// Hardware selects how the ID EEPROM is reached.
type Hardware struct {
	// Bus is either "linux" or "mcp2221".
	Bus string `yaml:"bus"`
	// Device is the Linux bus name, or the bridge index for mcp2221.
	Device  string `yaml:"device"`
	Address uint8  `yaml:"address"`
	Size    int    `yaml:"size"`
}

func Default() Config {
	return Config{
		Policy: eeprom.DefaultPolicy(),
		Hardware: Hardware{
			Bus:     BusLinux,
			Device:  "/dev/i2c-0",
			Address: hateeprom.DefaultEEPROMAddress,
			Size:    4096,
		},
	}
}

// Load reads path over the defaults. A missing file at the default location
// is not an error when optional is set.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	fh, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) && optional {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("could not open config: %w", err)
	}
	defer fh.Close()
	return Read(fh)
}

func Read(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("could not decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Hardware.Bus {
	case BusLinux, BusMCP2221:
	default:
		return fmt.Errorf("unknown bus %q, expected %s or %s", c.Hardware.Bus, BusLinux, BusMCP2221)
	}
	if c.Hardware.Address > 0x7F {
		return fmt.Errorf("i2c address %#02x is not a 7-bit address", c.Hardware.Address)
	}
	if c.Hardware.Size <= eeprom.HeaderSize {
		return fmt.Errorf("eeprom size %d is too small", c.Hardware.Size)
	}
	return nil
}

// BuildInfo formats the injected build variables for --version.
func BuildInfo() string {
	return fmt.Sprintf("%s-%s-%s", Version, Date, Commit)
}
