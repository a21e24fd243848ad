package cmd

import (
	"fmt"
	"path"
	"runtime"

	"github.com/gophertribe/devtool/build"
	"github.com/spf13/cobra"
)

const (
	binary        = "hateeprom"
	mainPackage   = "./cmd/hateeprom"
	configPackage = "github.com/mklimuk/hateeprom/config"
	builderImage  = "gophertribe/gobuild:1.25-bookworm"
)

// BuildCmd builds the CLI natively or, for a foreign platform, inside the
// builder image. The MCP2221 bridge goes through hidapi, so cgo stays on.
func BuildCmd() *cobra.Command {
	var opts struct {
		version string
		goos    string
		goarch  string
		noCache bool
	}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "build the hateeprom cli into dist/",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := path.Join("dist", binary)
			if opts.goos == runtime.GOOS && opts.goarch == runtime.GOARCH {
				return build.GoBuild(out, mainPackage, build.GoBuildOpts{
					Version:       opts.version,
					InjectVersion: true,
					ConfigPackage: configPackage,
					EnableCgo:     true,
					Arch:          opts.goarch,
					OS:            opts.goos,
				})
			}
			// the builder image runs this tool again, natively
			dir := fmt.Sprintf("./dev-%s-%s", opts.goos, opts.goarch)
			return build.Docker(cmd.Context(), dir, []string{"build", "--version", opts.version}, build.DockerBuildOpts{
				NoCache: opts.noCache,
				Image:   builderImage,
			})
		},
	}
	cmd.Flags().StringVar(&opts.version, "version", "latest", "version injected into the binary")
	cmd.Flags().StringVar(&opts.goos, "os", runtime.GOOS, "target os")
	cmd.Flags().StringVar(&opts.goarch, "arch", runtime.GOARCH, "target arch, e.g. arm64 for a Raspberry Pi")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "do not use the docker build cache")
	return cmd
}
