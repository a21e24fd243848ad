package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/hateeprom/cmd/hateeprom/console"
	"github.com/mklimuk/hateeprom/eeprom"
)

var exportCmd = cli.Command{
	Name:      "export",
	Usage:     "write the settings of an image as YAML",
	ArgsUsage: "<image.eep>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "settings file, stdout when empty"},
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
		s, err := eeprom.ExportSettings(img)
		if err != nil {
			return console.ExitErr(err, "could not export settings")
		}
		out := c.String("output")
		if out == "" {
			err = s.Write(c.App.Writer)
			if err != nil {
				return console.ExitErr(err, "encoding error")
			}
			return nil
		}
		fh, err := os.Create(out)
		if err != nil {
			return console.ExitErr(err, "could not create %s", out)
		}
		err = s.Write(fh)
		if err != nil {
			_ = fh.Close()
			return console.ExitErr(err, "encoding error")
		}
		err = fh.Close()
		if err != nil {
			return console.ExitErr(err, "could not write %s", out)
		}
		return nil
	},
}

var buildCmd = cli.Command{
	Name:      "build",
	Usage:     "build an image from a YAML settings file",
	ArgsUsage: "<settings.yaml> <image.eep>",
	Flags: []cli.Flag{
		verifyFlag,
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(2, "expected a settings file and an output image")
		}
		in, out := c.Args().Get(0), c.Args().Get(1)
		s, err := eeprom.ReadSettingsFile(in)
		if err != nil {
			return console.ExitErr(err, "could not read %s", in)
		}
		img, err := s.Image(nil)
		if err != nil {
			return console.ExitErr(err, "invalid settings")
		}
		f := eeprom.NewFile(eeprom.WithPolicy(appConfig(c).Policy))
		f.SetImage(img)
		err = f.Save(eeprom.PathSource(out), saveOptions(c)...)
		if err != nil {
			return console.ExitErr(err, "could not build %s", out)
		}
		console.PInfof(console.PictoFinish, "built %s", console.Green(out))
		return nil
	},
}
