package main

import (
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=...". Unset fields fall back to the
// build info embedded by the go command.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print heapctl and heapkit build information",
	Long: `The version command prints the heapctl release, the heapkit module
it was built from, the VCS revision and the Go toolchain.

Example:
  heapctl version
  heapctl version --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

type buildInfo struct {
	Version string `json:"version"`
	Module  string `json:"module,omitempty"`
	Commit  string `json:"commit"`
	Built   string `json:"built"`
	Go      string `json:"go"`
}

func readBuildInfo() buildInfo {
	bi := buildInfo{Version: version, Commit: commit, Built: date, Go: runtime.Version()}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return bi
	}
	bi.Module = info.Main.Path
	if info.GoVersion != "" {
		bi.Go = info.GoVersion
	}
	if bi.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		bi.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if bi.Commit == "none" {
				bi.Commit = s.Value
			}
		case "vcs.time":
			if bi.Built == "unknown" {
				bi.Built = s.Value
			}
		}
	}
	return bi
}

func runVersion() error {
	bi := readBuildInfo()
	if jsonOut {
		return printJSON(bi)
	}
	printInfo("heapctl %s\n", bi.Version)
	if bi.Module != "" {
		printInfo("  module: %s\n", bi.Module)
	}
	printInfo("  commit: %s\n", bi.Commit)
	printInfo("  built: %s\n", bi.Built)
	printInfo("  go: %s\n", bi.Go)
	return nil
}
