package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/hateeprom"
	"github.com/mklimuk/hateeprom/adapter"
	"github.com/mklimuk/hateeprom/eeprom"
	"github.com/mklimuk/hateeprom/memory/at24"
)

var usbCmd = cli.Command{
	Name:  "usb",
	Usage: "find USB bridges usable as an I2C bus",
	Subcommands: cli.Commands{
		&usbLsCmd,
		&usbProbeCmd,
	},
}

var usbLsCmd = cli.Command{
	Name:  "ls",
	Usage: "list attached MCP2221 bridges with the index accepted by --device",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "list every HID device"},
	},
	Action: func(c *cli.Context) error {
		w := tabwriter.NewWriter(c.App.Writer, 8, 0, 1, ' ', 0)
		defer w.Flush()
		if c.Bool("all") {
			_, _ = fmt.Fprintf(w, "VENDOR\tPRODUCT\tMANUFACTURER\tNAME\tPATH\n")
			for _, dev := range hid.Enumerate(0, 0) {
				_, _ = fmt.Fprintf(w, "%#x\t%#x\t%s\t%s\t%s\n",
					dev.VendorID, dev.ProductID, dev.Manufacturer, dev.Product, dev.Path)
			}
			return nil
		}
		_, _ = fmt.Fprintf(w, "INDEX\tSERIAL\tPATH\n")
		for i, dev := range hid.Enumerate(adapter.VendorID, adapter.ProductID) {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", i, dev.Serial, dev.Path)
		}
		return nil
	},
}

var usbProbeCmd = cli.Command{
	Name:  "probe",
	Usage: "check every MCP2221 bridge for a HAT EEPROM",
	Flags: []cli.Flag{
		&cli.UintFlag{Name: "address", Usage: "7-bit EEPROM address", Value: hateeprom.DefaultEEPROMAddress},
	},
	Action: func(c *cli.Context) error {
		address := c.Uint("address")
		if address > 0x7F {
			return fmt.Errorf("i2c address %#x is not a 7-bit address", address)
		}
		w := tabwriter.NewWriter(c.App.Writer, 8, 0, 1, ' ', 0)
		defer w.Flush()
		_, _ = fmt.Fprintf(w, "INDEX\tSERIAL\tEEPROM\n")
		for i, dev := range hid.Enumerate(adapter.VendorID, adapter.ProductID) {
			bridge := adapter.NewMCP2221(adapter.WithDeviceIndex(i))
			mem := at24.New(bridge, at24.WithAddress(uint8(address)))
			sig, err := mem.Read(c.Context, 0, len(eeprom.Signature))
			var state string
			switch {
			case err != nil:
				state = fmt.Sprintf("no answer at %#02x", address)
			case string(sig) == eeprom.Signature:
				state = "hat image"
			default:
				state = "blank or foreign"
			}
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", i, dev.Serial, state)
		}
		return nil
	},
}
