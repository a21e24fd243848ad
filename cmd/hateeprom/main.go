package main

import (
	"errors"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/hateeprom/cmd/hateeprom/console"
	"github.com/mklimuk/hateeprom/config"
	"github.com/mklimuk/hateeprom/eeprom"
	"github.com/mklimuk/hateeprom/hatctx"
)

const defaultConfigPath = "hateeprom.yaml"

const metaConfig = "config"

func main() {
	os.Exit(run())
}

func run() int {
	err := newApp().Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		return 1
	}
	return 0
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "hateeprom"
	app.EnableBashCompletion = true
	app.Version = config.BuildInfo()
	app.Usage = "inspect, edit and program Raspberry Pi HAT ID EEPROM images"
	app.Metadata = map[string]any{}
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable debug logging and dump bus transfers",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "configuration file",
			Value: defaultConfigPath,
		},
		&cli.BoolFlag{
			Name:  "autouuid",
			Usage: "write a random UUID into saved images that have none",
		},
	}
	app.Before = func(c *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if c.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))

		cfg, err := config.Load(c.String("config"), !c.IsSet("config"))
		if err != nil {
			return console.ExitErr(err, "could not load configuration")
		}
		if c.Bool("autouuid") {
			cfg.Policy.Autouuid = true
		}
		c.App.Metadata[metaConfig] = cfg
		if c.Bool("verbose") {
			c.Context = hatctx.WithTrace(c.Context, c.App.ErrWriter)
		}
		return nil
	}
	app.Commands = cli.Commands{
		&showCmd,
		&dumpCmd,
		&setCmd,
		&gpioCmd,
		&fdtCmd,
		&exportCmd,
		&buildCmd,
		&readCmd,
		&writeCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	return app
}

func appConfig(c *cli.Context) config.Config {
	cfg, ok := c.App.Metadata[metaConfig].(config.Config)
	if !ok {
		return config.Default()
	}
	return cfg
}

// openImageFile binds an image file with the configured policy.
func openImageFile(c *cli.Context, path string, opts ...eeprom.Option) *eeprom.File {
	opts = append([]eeprom.Option{eeprom.WithPolicy(appConfig(c).Policy)}, opts...)
	return eeprom.NewFileAt(path, opts...)
}

// loadImageFile reads an image file, wrapping failures as exit errors.
func loadImageFile(c *cli.Context, path string) (*eeprom.File, error) {
	f := openImageFile(c, path)
	err := f.Load()
	if err != nil {
		return nil, console.ExitErr(err, "could not load %s", path)
	}
	return f, nil
}

func saveOptions(c *cli.Context) []eeprom.SaveOption {
	if c.Bool("verify") {
		return []eeprom.SaveOption{eeprom.Verify()}
	}
	return nil
}
