package main

import (
	"context"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/hateeprom/adapter"
	"github.com/mklimuk/hateeprom/cmd/hateeprom/console"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "inspect the MCP2221 USB-I2C bridge",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "index", Usage: "bridge index as listed by usb ls", Value: -1},
	},
	Subcommands: cli.Commands{
		{
			Name:   "status",
			Usage:  "print the I2C engine status",
			Action: bridgeAction((*adapter.MCP2221).Status),
		},
		{
			Name:   "release",
			Usage:  "cancel the current I2C transfer and free the bus",
			Action: bridgeAction((*adapter.MCP2221).ReleaseBus),
		},
	},
}

// bridgeAction runs op on the selected bridge and prints the resulting
// engine status as YAML.
func bridgeAction(op func(*adapter.MCP2221, context.Context) (*adapter.MCP2221Status, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		bridge := adapter.NewMCP2221(adapter.WithDeviceIndex(c.Int("index")))
		status, err := op(bridge, c.Context)
		if err != nil {
			return console.ExitErr(err, "bridge %d did not answer", c.Int("index"))
		}
		err = yaml.NewEncoder(c.App.Writer).Encode(status)
		if err != nil {
			return console.ExitErr(err, "could not print status")
		}
		return nil
	}
}
