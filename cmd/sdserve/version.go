package main

import (
	"fmt"
	"runtime/debug"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sdserve %s (%s)\n", version, revision())
		},
	}
}

// revision returns the VCS revision embedded by the Go toolchain.
func revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	setting := lo.FindOrElse(info.Settings, debug.BuildSetting{Value: "unknown"}, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.revision"
	})
	return setting.Value
}
