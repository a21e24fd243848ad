package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// ChangelogCmd regenerates CHANGELOG.md from conventional commits with
// git-chglog.
func ChangelogCmd() *cobra.Command {
	var next, output, tag string
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "generate CHANGELOG.md from git history",
		Example: `  dev changelog
  dev changelog --next v0.2.0
  dev changelog --tag v0.1.0 --output CHANGES.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := exec.LookPath("git-chglog")
			if err != nil {
				slog.Error("git-chglog not found, install it with: go install github.com/git-chglog/git-chglog/cmd/git-chglog@latest")
				return fmt.Errorf("git-chglog not installed: %w", err)
			}
			chglogArgs := []string{"--output", output}
			if next != "" {
				chglogArgs = append(chglogArgs, "--next-tag", next)
			}
			if tag != "" {
				chglogArgs = append(chglogArgs, tag)
			}
			slog.Info("running git-chglog", "args", chglogArgs)
			gitChglog := exec.CommandContext(cmd.Context(), "git-chglog", chglogArgs...)
			gitChglog.Stdout = os.Stdout
			gitChglog.Stderr = os.Stderr
			err = gitChglog.Run()
			if err != nil {
				return fmt.Errorf("could not generate changelog: %w", err)
			}
			slog.Info("changelog generated", "output", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&next, "next", "", "next version tag, e.g. v0.2.0")
	cmd.Flags().StringVar(&output, "output", "CHANGELOG.md", "output file")
	cmd.Flags().StringVar(&tag, "tag", "", "only this tag")
	return cmd
}
