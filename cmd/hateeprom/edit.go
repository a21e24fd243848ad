package main

import (
	"encoding"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"unicode"

	"github.com/gofrs/uuid"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/hateeprom/atom"
	"github.com/mklimuk/hateeprom/cmd/hateeprom/console"
	"github.com/mklimuk/hateeprom/eeprom"
)

var verifyFlag = &cli.BoolFlag{Name: "verify", Usage: "read the image back after saving and compare"}

var setCmd = cli.Command{
	Name:      "set",
	Usage:     "edit the vendor info of an image, creating the image when missing",
	ArgsUsage: "<image.eep>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "uuid", Usage: "product UUID"},
		&cli.BoolFlag{Name: "new-uuid", Usage: "generate a random product UUID"},
		&cli.StringFlag{Name: "pid", Usage: "product ID, e.g. 0xcafe"},
		&cli.StringFlag{Name: "pver", Usage: "product version"},
		&cli.StringFlag{Name: "vendor", Usage: "vendor name"},
		&cli.StringFlag{Name: "product", Usage: "product name"},
		verifyFlag,
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(2, "expected exactly one image file")
		}
		edits, err := vendorEdits(c)
		if err != nil {
			return err
		}
		path := c.Args().First()
		f := openImageFile(c, path, eeprom.WithAutoload(true), eeprom.WithAutosave(!c.Bool("verify")))
		err = f.Session(func(f *eeprom.File) error {
			for _, edit := range edits {
				edit(f)
			}
			if c.Bool("verify") {
				return f.Save(eeprom.Source{}, saveOptions(c)...)
			}
			return nil
		})
		if err != nil {
			return console.ExitErr(err, "could not update %s", path)
		}
		return nil
	},
}

// vendorEdits validates the vendor flags before anything is opened, so that a
// bad flag never leaves a half edited image behind.
func vendorEdits(c *cli.Context) ([]func(*eeprom.File), error) {
	var edits []func(*eeprom.File)
	if c.IsSet("uuid") && c.Bool("new-uuid") {
		return nil, console.Exit(2, "--uuid and --new-uuid are mutually exclusive")
	}
	if c.IsSet("uuid") {
		id, err := uuid.FromString(c.String("uuid"))
		if err != nil {
			return nil, console.ExitErr(err, "invalid uuid")
		}
		edits = append(edits, func(f *eeprom.File) { f.SetUUID(id) })
	}
	if c.Bool("new-uuid") {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, console.ExitErr(err, "could not generate uuid")
		}
		edits = append(edits, func(f *eeprom.File) { f.SetUUID(id) })
	}
	if c.IsSet("pid") {
		pid, err := strconv.ParseUint(c.String("pid"), 0, 16)
		if err != nil {
			return nil, console.ExitErr(err, "invalid product id")
		}
		edits = append(edits, func(f *eeprom.File) { f.SetProductID(uint16(pid)) })
	}
	if c.IsSet("pver") {
		pver, err := strconv.ParseUint(c.String("pver"), 0, 16)
		if err != nil {
			return nil, console.ExitErr(err, "invalid product version")
		}
		edits = append(edits, func(f *eeprom.File) { f.SetProductVersion(uint16(pver)) })
	}
	for _, name := range []string{"vendor", "product"} {
		if !c.IsSet(name) {
			continue
		}
		value := c.String(name)
		if len(value) > 255 {
			return nil, console.Exit(2, "%s is %d bytes long, at most 255 fit", name, len(value))
		}
		if name == "vendor" {
			edits = append(edits, func(f *eeprom.File) { f.SetVendor(value) })
		} else {
			edits = append(edits, func(f *eeprom.File) { f.SetProduct(value) })
		}
	}
	if len(edits) == 0 {
		return nil, console.Exit(2, "nothing to set")
	}
	return edits, nil
}

var gpioCmd = cli.Command{
	Name:      "gpio",
	Usage:     "print or edit the GPIO map of an image",
	ArgsUsage: "<image.eep>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "pin", Usage: "GPIO number to edit", Value: -1},
		&cli.BoolFlag{Name: "used", Usage: "mark the pin as used by the board"},
		&cli.StringFlag{Name: "function", Usage: "pin function: input, output, alt0..alt5"},
		&cli.StringFlag{Name: "pull", Usage: "pin pull: default, up, down, none"},
		&cli.StringFlag{Name: "drive", Usage: "bank drive strength: default, 2mA..16mA"},
		&cli.StringFlag{Name: "slew", Usage: "bank slew rate: default, limited, unlimited"},
		&cli.StringFlag{Name: "hysteresis", Usage: "bank hysteresis: default, disabled, enabled"},
		&cli.StringFlag{Name: "back-power", Usage: "back power: none, 1.3A, 2A"},
		verifyFlag,
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(2, "expected exactly one image file")
		}
		path := c.Args().First()
		edit, err := gpioEdit(c)
		if err != nil {
			return err
		}
		if edit == nil {
			f, err := loadImageFile(c, path)
			if err != nil {
				return err
			}
			printPins(c, f)
			return nil
		}
		f := openImageFile(c, path, eeprom.WithAutoload(true), eeprom.WithAutosave(!c.Bool("verify")))
		err = f.Session(func(f *eeprom.File) error {
			err := edit(f)
			if err != nil {
				return err
			}
			if c.Bool("verify") {
				return f.Save(eeprom.Source{}, saveOptions(c)...)
			}
			return nil
		})
		if err != nil {
			return console.ExitErr(err, "could not update %s", path)
		}
		return nil
	},
}

// gpioEdit parses the GPIO flags. It returns nil when no edit was requested.
func gpioEdit(c *cli.Context) (func(*eeprom.File) error, error) {
	var bankEdits []func(*atom.Bank) error
	for _, flag := range []struct {
		name string
		dst  func(*atom.Bank) encoding.TextUnmarshaler
	}{
		{"drive", func(b *atom.Bank) encoding.TextUnmarshaler { return &b.Drive }},
		{"slew", func(b *atom.Bank) encoding.TextUnmarshaler { return &b.Slew }},
		{"hysteresis", func(b *atom.Bank) encoding.TextUnmarshaler { return &b.Hysteresis }},
		{"back-power", func(b *atom.Bank) encoding.TextUnmarshaler { return &b.BackPower }},
	} {
		if !c.IsSet(flag.name) {
			continue
		}
		value := []byte(c.String(flag.name))
		// parse once up front so a typo fails before the image is touched
		var probe atom.Bank
		err := flag.dst(&probe).UnmarshalText(value)
		if err != nil {
			return nil, console.ExitErr(err, "invalid --%s", flag.name)
		}
		bankEdits = append(bankEdits, func(b *atom.Bank) error {
			return flag.dst(b).UnmarshalText(value)
		})
	}

	pinSet := c.IsSet("used") || c.IsSet("function") || c.IsSet("pull")
	pin := c.Int("pin")
	if pinSet && (pin < 0 || pin >= atom.PinCount) {
		return nil, console.Exit(2, "--pin must be between 0 and %d", atom.PinCount-1)
	}
	var function atom.Function
	if c.IsSet("function") {
		err := function.UnmarshalText([]byte(c.String("function")))
		if err != nil {
			return nil, console.ExitErr(err, "invalid --function")
		}
	}
	var pull atom.Pull
	if c.IsSet("pull") {
		err := pull.UnmarshalText([]byte(c.String("pull")))
		if err != nil {
			return nil, console.ExitErr(err, "invalid --pull")
		}
	}
	if len(bankEdits) == 0 && !pinSet {
		return nil, nil
	}
	return func(f *eeprom.File) error {
		if len(bankEdits) > 0 {
			bank := f.Bank()
			for _, edit := range bankEdits {
				err := edit(&bank)
				if err != nil {
					return err
				}
			}
			f.SetBank(bank)
		}
		if !pinSet {
			return nil
		}
		p, err := f.Pin(pin)
		if err != nil {
			return err
		}
		if c.IsSet("used") {
			p.Used = c.Bool("used")
		}
		if c.IsSet("function") {
			p.Function = function
		}
		if c.IsSet("pull") {
			p.Pull = pull
		}
		return f.SetPin(pin, p)
	}, nil
}

func printPins(c *cli.Context, f *eeprom.File) {
	bank := f.Bank()
	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "drive %s, slew %s, hysteresis %s, back power %s\n\n", bank.Drive, bank.Slew, bank.Hysteresis, bank.BackPower)
	_, _ = fmt.Fprintf(w, "GPIO\tUSED\tFUNCTION\tPULL\n")
	for i, pin := range f.Pins() {
		_, _ = fmt.Fprintf(w, "%d\t%t\t%s\t%s\n", i, pin.Used, pin.Function, pin.Pull)
	}
	_ = w.Flush()
}

var fdtCmd = cli.Command{
	Name:      "fdt",
	Usage:     "print or set a property of the device-tree overlay",
	ArgsUsage: "<image.eep> <node path> <property>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "set", Usage: "set the property to this string"},
		&cli.BoolFlag{Name: "hex", Usage: "print the raw property value"},
		verifyFlag,
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 3 {
			return console.Exit(2, "expected an image file, a node path and a property name")
		}
		path, node, name := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)
		if !c.IsSet("set") {
			f, err := loadImageFile(c, path)
			if err != nil {
				return err
			}
			blob := f.DeviceTree()
			if blob == nil {
				return console.Exit(1, "%s has no device tree", path)
			}
			prop, err := blob.Property(name, node)
			if err != nil {
				return console.ExitErr(err, "could not read property")
			}
			if c.Bool("hex") || !printable(prop.Strings()) {
				_, _ = fmt.Fprintln(c.App.Writer, hex.EncodeToString(prop.Value))
				return nil
			}
			_, _ = fmt.Fprintln(c.App.Writer, strings.Join(prop.Strings(), ", "))
			return nil
		}
		value := append([]byte(c.String("set")), 0)
		f := openImageFile(c, path, eeprom.WithAutoload(true), eeprom.WithAutosave(!c.Bool("verify")))
		err := f.Session(func(f *eeprom.File) error {
			blob := f.DeviceTree()
			if blob == nil {
				return fmt.Errorf("%w: image has no device tree", eeprom.ErrUsage)
			}
			err := blob.SetProperty(name, node, value)
			if err != nil {
				return err
			}
			f.SetDeviceTree(blob)
			if c.Bool("verify") {
				return f.Save(eeprom.Source{}, saveOptions(c)...)
			}
			return nil
		})
		if err != nil {
			return console.ExitErr(err, "could not update %s", path)
		}
		return nil
	},
}

func printable(values []string) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if v == "" {
			return false
		}
		for _, r := range v {
			if !unicode.IsPrint(r) {
				return false
			}
		}
	}
	return true
}
