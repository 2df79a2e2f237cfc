package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gophertribe/devtool/build"
)

const distBinary = "dist/imu"

// BuildCmd builds the cli natively or inside the cross-compilation image.
func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the imu cli",
		RunE: func(cmd *cobra.Command, args []string) error {
			os := cmd.Flag("os").Value.String()
			arch := cmd.Flag("arch").Value.String()
			version := cmd.Flag("version").Value.String()
			crossOs := cmd.Flag("cross-os").Value.String()
			crossArch := cmd.Flag("cross-arch").Value.String()

			// if this is a native build, use go build
			if os == runtime.GOOS && arch == runtime.GOARCH {
				if crossOs != "" && crossArch != "" {
					os = crossOs
					arch = crossArch
				}
				err := build.GoBuild(distBinary, "./cmd/imu", build.GoBuildOpts{
					Version:       version,
					InjectVersion: true,
					ConfigPackage: "main",
					// gousb and the hid bindings need cgo
					EnableCgo: true,
					Arch:      arch, // if cross-arch is not set, it will use runtime.GOARCH
					OS:        os,   // if cross-os is not set, it will use runtime.GOOS
				})
				if err != nil {
					return err
				}
				verify, err := cmd.Flags().GetBool("verify")
				if err != nil {
					return fmt.Errorf("could not get verify flag: %w", err)
				}
				// a cross-compiled binary cannot run here
				if !verify || os != runtime.GOOS || arch != runtime.GOARCH {
					return nil
				}
				return runCLI(cmd.Context(), []string{distBinary}, "sim", [][]string{{"read"}, {"fifo", "collect", "100"}})
			}

			noCache, err := cmd.Flags().GetBool("no-cache")
			if err != nil {
				return fmt.Errorf("could not get no-cache flag: %w", err)
			}
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", os, arch), []string{"build", "--version", version, "--cross-os", crossOs, "--cross-arch", crossArch}, build.DockerBuildOpts{
				NoCache: noCache,
				Image:   "gophertribe/gobuild:1.25-bookworm",
			})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use cache when building the app")
	cmd.Flags().Bool("verify", false, "run the native binary against the simulated sensor after building")
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().String("os", runtime.GOOS, "os to build for")
	cmd.Flags().String("arch", runtime.GOARCH, "arch to build for")
	cmd.Flags().String("cross-os", "", "os to cross-compile for")
	cmd.Flags().String("cross-arch", "", "arch to cross-compile for")

	return cmd
}
