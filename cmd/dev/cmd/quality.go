package cmd

import (
	"fmt"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

// QualityCmds returns the test, lint and integration-test commands.
func QualityCmds() []*cobra.Command {
	return []*cobra.Command{
		qualityCmd("test", "run unit tests", test.Test),
		qualityCmd("lint", "run linters", test.Lint),
		qualityCmd("integration-test", "run tests against an attached eeprom named by HATEEPROM_DEVICE", test.Integ),
	}
}

func qualityCmd(use, short string, run func() error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run()
			if err != nil {
				return fmt.Errorf("%s failed: %w", use, err)
			}
			return nil
		},
	}
}
