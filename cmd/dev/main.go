package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/mklimuk/hateeprom/cmd/dev/cmd"
)

func main() {
	err := rootCmd().Execute()
	if err != nil {
		slog.Error("dev command failed", "error", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var debug bool
	root := &cobra.Command{
		Use:          "dev",
		Short:        "build and test tool for the hateeprom project",
		SilenceUsage: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			level := log.InfoLevel
			if debug {
				level = log.DebugLevel
			}
			charm := log.NewWithOptions(os.Stderr, log.Options{
				ReportTimestamp: true,
				TimeFormat:      time.TimeOnly,
				Prefix:          "hat",
				Level:           level,
			})
			charm.SetColorProfile(termenv.TrueColor)
			slog.SetDefault(slog.New(charm))
			// package paths and dist/ are relative to the module root
			_, err := os.Stat("go.mod")
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("dev must be run from the module root")
			}
			return err
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.AddCommand(cmd.BuildCmd(), cmd.ChangelogCmd())
	root.AddCommand(cmd.QualityCmds()...)
	return root
}
