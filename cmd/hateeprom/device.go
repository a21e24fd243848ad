package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/hateeprom"
	"github.com/mklimuk/hateeprom/adapter"
	"github.com/mklimuk/hateeprom/cmd/hateeprom/console"
	"github.com/mklimuk/hateeprom/config"
	"github.com/mklimuk/hateeprom/eeprom"
	"github.com/mklimuk/hateeprom/i2c"
	"github.com/mklimuk/hateeprom/memory/at24"
)

var hardwareFlags = []cli.Flag{
	&cli.StringFlag{Name: "bus", Usage: "bus kind: linux or mcp2221"},
	&cli.StringFlag{Name: "device", Usage: "linux bus name or mcp2221 bridge index"},
	&cli.UintFlag{Name: "address", Usage: "eeprom i2c address"},
	&cli.IntFlag{Name: "size", Usage: "eeprom size in bytes"},
}

var readCmd = cli.Command{
	Name:  "read",
	Usage: "read the image from the attached ID EEPROM",
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "image file", Required: true},
	}, hardwareFlags...),
	Action: func(c *cli.Context) error {
		hw, err := hardware(c)
		if err != nil {
			return err
		}
		dev, closer, err := openDevice(hw)
		if err != nil {
			return console.ExitErr(err, "could not open %s bus", hw.Bus)
		}
		defer closer.Close()

		f := eeprom.NewFileFrom(dev.Stream(c.Context), eeprom.WithPolicy(appConfig(c).Policy))
		err = f.Load()
		if err != nil {
			return console.ExitErr(err, "could not read eeprom")
		}
		out := c.String("output")
		err = f.Save(eeprom.PathSource(out))
		if err != nil {
			return console.ExitErr(err, "could not write %s", out)
		}
		console.PInfof(console.PictoFinish, "eeprom at %#02x saved to %s", hw.Address, console.Green(out))
		return nil
	},
}

var writeCmd = cli.Command{
	Name:      "write",
	Usage:     "program the attached ID EEPROM with an image",
	ArgsUsage: "<image.eep>",
	Flags: append([]cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	}, hardwareFlags...),
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(2, "expected exactly one image file")
		}
		hw, err := hardware(c)
		if err != nil {
			return err
		}
		path := c.Args().First()
		if !c.Bool("yes") {
			ok, err := console.Confirm(fmt.Sprintf("overwrite eeprom at %#02x on %s with %s?", hw.Address, hw.Device, path))
			if err != nil {
				return console.ExitErr(err, "prompt error")
			}
			if !ok {
				console.PInfof(console.PictoStop, "aborted")
				return nil
			}
		}
		dev, closer, err := openDevice(hw)
		if err != nil {
			return console.ExitErr(err, "could not open %s bus", hw.Bus)
		}
		defer closer.Close()

		f := eeprom.NewFileFrom(dev.Stream(c.Context), eeprom.WithPolicy(appConfig(c).Policy))
		err = f.Load(eeprom.PathSource(path))
		if err != nil {
			return console.ExitErr(err, "could not load %s", path)
		}
		if size := imageSize(f); size > hw.Size {
			return console.Exit(1, "%s is %d bytes, the eeprom holds %d", path, size, hw.Size)
		}
		err = f.Save(eeprom.Source{}, eeprom.Verify())
		if err != nil {
			return console.ExitErr(err, "could not program eeprom")
		}
		console.PInfof(console.PictoFinish, "eeprom at %#02x programmed and verified", hw.Address)
		return nil
	},
}

func imageSize(f *eeprom.File) int {
	img, err := f.Image()
	if err != nil {
		return 0
	}
	raw, err := img.Bytes()
	if err != nil {
		return 0
	}
	return len(raw)
}

// hardware merges the hardware flags over the configuration.
func hardware(c *cli.Context) (config.Hardware, error) {
	cfg := appConfig(c)
	if c.IsSet("bus") {
		cfg.Hardware.Bus = c.String("bus")
	}
	if c.IsSet("device") {
		cfg.Hardware.Device = c.String("device")
	}
	if c.IsSet("address") {
		address := c.Uint("address")
		if address > 0x7F {
			return config.Hardware{}, console.Exit(2, "i2c address %#x is not a 7-bit address", address)
		}
		cfg.Hardware.Address = uint8(address)
	}
	if c.IsSet("size") {
		cfg.Hardware.Size = c.Int("size")
	}
	err := cfg.Validate()
	if err != nil {
		return config.Hardware{}, console.ExitErr(err, "invalid hardware settings")
	}
	return cfg.Hardware, nil
}

func openDevice(hw config.Hardware) (*at24.AT24, io.Closer, error) {
	var bus hateeprom.I2CBus
	var closer io.Closer
	switch hw.Bus {
	case config.BusMCP2221:
		index := -1
		if hw.Device != "" {
			i, err := strconv.Atoi(hw.Device)
			if err != nil {
				return nil, nil, fmt.Errorf("bridge index %q: %w", hw.Device, err)
			}
			index = i
		}
		bus = adapter.NewMCP2221(adapter.WithDeviceIndex(index))
		closer = closerFunc(func() error { return nil })
	default:
		b, err := i2c.NewGenericBus(hw.Device)
		if err != nil {
			return nil, nil, err
		}
		bus, closer = b, b
	}
	dev := at24.New(bus, at24.WithAddress(hw.Address), at24.WithSize(hw.Size))
	return dev, closer, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
