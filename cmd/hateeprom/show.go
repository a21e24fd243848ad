package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/hateeprom/atom"
	"github.com/mklimuk/hateeprom/cmd/hateeprom/console"
	"github.com/mklimuk/hateeprom/eeprom"
)

var showCmd = cli.Command{
	Name:      "show",
	Usage:     "print the content of an image",
	ArgsUsage: "<image.eep>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yaml", Usage: "print the image as editable settings"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(2, "expected exactly one image file")
		}
		f, err := loadImageFile(c, c.Args().First())
		if err != nil {
			return err
		}
		img, err := f.Image()
		if err != nil {
			return console.ExitErr(err, "could not copy image")
		}
		if c.Bool("yaml") {
			s, err := eeprom.ExportSettings(img)
			if err != nil {
				return console.ExitErr(err, "could not export settings")
			}
			err = s.Write(c.App.Writer)
			if err != nil {
				return console.ExitErr(err, "encoding error")
			}
			return nil
		}
		printImage(c.App.Writer, img)
		return nil
	},
}

func printImage(out io.Writer, img *eeprom.Image) {
	v := img.Vendor()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "UUID:\t%s\n", v.UUID)
	_, _ = fmt.Fprintf(w, "Product ID:\t%#04x\n", v.ProductID)
	_, _ = fmt.Fprintf(w, "Product version:\t%d\n", v.ProductVersion)
	_, _ = fmt.Fprintf(w, "Vendor:\t%s\n", v.Vendor)
	_, _ = fmt.Fprintf(w, "Product:\t%s\n", v.Product)
	bank := img.GPIO().Bank
	_, _ = fmt.Fprintf(w, "Bank:\tdrive %s, slew %s, hysteresis %s\n", bank.Drive, bank.Slew, bank.Hysteresis)
	_, _ = fmt.Fprintf(w, "Back power:\t%s\n", bank.BackPower)
	if blob := img.DeviceTree(); blob != nil {
		raw, err := blob.Bytes()
		if err != nil {
			_, _ = fmt.Fprintf(w, "Device tree:\t%s\n", console.Red(err))
		} else {
			_, _ = fmt.Fprintf(w, "Device tree:\t%d bytes\n", len(raw))
		}
	} else {
		_, _ = fmt.Fprintf(w, "Device tree:\tnone\n")
	}
	_ = w.Flush()

	used := 0
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "\nGPIO\tFUNCTION\tPULL\n")
	for i, pin := range img.GPIO().Pins {
		if !pin.Used {
			continue
		}
		used++
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", i, pin.Function, pin.Pull)
	}
	if used > 0 {
		_ = w.Flush()
	}

	customs := img.Customs()
	if len(customs) == 0 {
		return
	}
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "\nCUSTOM\tTYPE\tSIZE\n")
	for i, c := range customs {
		_, _ = fmt.Fprintf(w, "%d\t%#04x\t%d\n", i, uint16(c.Tag), len(c.Data))
	}
	_ = w.Flush()
}

var dumpCmd = cli.Command{
	Name:      "dump",
	Usage:     "print the raw atoms of an image",
	ArgsUsage: "<image.eep>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(2, "expected exactly one image file")
		}
		raw, err := os.ReadFile(c.Args().First())
		if err != nil {
			return console.ExitErr(err, "could not read image")
		}
		return dumpImage(c.App.Writer, raw)
	},
}

// dumpImage prints every record up to the first framing error, which is
// reported as the exit error.
func dumpImage(out io.Writer, raw []byte) error {
	h, err := eeprom.ParseHeader(raw)
	if err != nil {
		return console.ExitErr(err, "could not parse header")
	}
	_, _ = fmt.Fprintf(out, "header: version %d, %d atoms, %d bytes\n", h.Version, h.NumAtoms, h.Length)
	if len(raw) > int(h.Length) {
		console.Warnf("%d bytes past the declared length ignored", len(raw)-int(h.Length))
	}
	end := min(int(h.Length), len(raw))
	r := atom.NewReader(bytes.NewReader(raw[eeprom.HeaderSize:end]))
	for i := 0; ; i++ {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return console.ExitErr(err, "atom %d", i)
		}
		_, _ = fmt.Fprintf(out, "\natom %d: %s, count %d, %d bytes, crc %#04x\n", i, rec.Type, rec.Count, len(rec.Data), rec.CRC)
		_, _ = fmt.Fprint(out, hex.Dump(rec.Data))
	}
	return nil
}
