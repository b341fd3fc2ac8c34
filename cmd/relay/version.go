package main

import (
	"fmt"
	"runtime"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/telemetry/health"

	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "0.1.0"
	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"
	// BuildDate is the build timestamp (set by build flags)
	BuildDate = "unknown"
)

var versionFlags struct {
	output string
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print detailed version information including Git commit and build date.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseOutputFormat(versionFlags.output)
		if err != nil {
			return err
		}
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), buildInfo())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFlags.output, "output", "o", "text", "output format (text, json)")
}

// versionInfo is printed by the version command.
type versionInfo struct {
	health.VersionInfo
	Platform string `json:"platform"`
}

func (v versionInfo) RenderText() string {
	return fmt.Sprintf("Relay %s\nGit Commit: %s\nBuild Date: %s\nGo Version: %s\nOS/Arch: %s",
		v.Version, v.Commit, v.BuildTime, v.GoVersion, v.Platform)
}

func buildInfo() versionInfo {
	return versionInfo{
		VersionInfo: health.VersionInfo{
			Version:   Version,
			Commit:    GitCommit,
			BuildTime: BuildDate,
			GoVersion: runtime.Version(),
		},
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}
