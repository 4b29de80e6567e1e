package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/musher-dev/tether/internal/config"
	"github.com/musher-dev/tether/internal/output"
	"github.com/musher-dev/tether/internal/paths"
)

// PathsInfo holds all resolved paths for JSON output.
type PathsInfo struct {
	ConfigRoot    string `json:"config_root"`
	StateRoot     string `json:"state_root"`
	ConfigFile    string `json:"config_file"`
	ThemesDir     string `json:"themes_dir"`
	LogFile       string `json:"log_file"`
	RecordingsDir string `json:"recordings_dir"`
	ServerAddr    string `json:"server_addr"`
}

func newPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show where tether stores files",
		Long: `Display all file and directory paths used by tether.

Useful for debugging, scripting, and understanding where configuration,
themes, logs and recordings are stored on this system.`,
		Example: `  tether paths
  tether paths --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			info := resolvePathsInfo(config.Load())

			if out.JSON {
				return out.PrintJSON(info)
			}

			out.Print("Config root:    %s\n", info.ConfigRoot)
			out.Print("State root:     %s\n", info.StateRoot)
			out.Print("\n")
			out.Print("Config file:    %s\n", info.ConfigFile)
			out.Print("Themes dir:     %s\n", info.ThemesDir)
			out.Print("Log file:       %s\n", info.LogFile)
			out.Print("Recordings:     %s\n", info.RecordingsDir)
			out.Print("\n")
			out.Print("Server addr:    %s\n", info.ServerAddr)

			return nil
		},
	}
}

func resolvePathsInfo(cfg *config.Config) PathsInfo {
	info := PathsInfo{
		ConfigRoot:    resolveOrError(paths.ConfigRoot),
		StateRoot:     resolveOrError(paths.StateRoot),
		ConfigFile:    resolveOrError(paths.ConfigFile),
		ThemesDir:     resolveOrError(paths.ThemesDir),
		LogFile:       resolveOrError(paths.DefaultLogFile),
		RecordingsDir: resolveOrError(paths.RecordingsDir),
		ServerAddr:    cfg.ServerAddr(),
	}

	if dir := cfg.RecordingDir(); dir != "" {
		info.RecordingsDir = dir
	}

	return info
}

func resolveOrError(fn func() (string, error)) string {
	val, err := fn()
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}

	return val
}
