package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	selfupdate "github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/musher-dev/tether/internal/buildinfo"
	"github.com/musher-dev/tether/internal/observability"
	"github.com/musher-dev/tether/internal/output"
	"github.com/musher-dev/tether/internal/update"
)

func newUpdateCmd() *cobra.Command {
	var (
		targetVersion string
		force         bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update tether to the latest release",
		Long: `Update tether from GitHub Releases.

The new binary is checksum-verified before it replaces the running one.
When the install directory is not writable, sudo is requested.

Set TETHER_UPDATE_DISABLED=1 to turn off update checks.`,
		Example: `  tether update
  tether update --version 1.4.0
  tether update --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.Context(), output.FromContext(cmd.Context()), targetVersion, force)
		},
	}

	cmd.Flags().StringVar(&targetVersion, "version", "", "Install a specific version (e.g. 1.2.3)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Reinstall even when already up to date")

	return cmd
}

func runUpdate(ctx context.Context, out *output.Writer, targetVersion string, force bool) error {
	if update.IsDisabled() {
		out.Warning("Updates are disabled (TETHER_UPDATE_DISABLED is set)")
		return nil
	}

	current := buildinfo.Version
	if current == "dev" && targetVersion == "" {
		out.Warning("Development build, current version unknown")
		out.Info("Install a release build: %s", update.ReleasesURL)

		return nil
	}

	updater, err := update.NewUpdater(update.DefaultOptions())
	if err != nil {
		return fmt.Errorf("initialize updater: %w", err)
	}

	if targetVersion != "" {
		return installVersion(ctx, out, updater, targetVersion)
	}

	spin := out.Spinner("Checking for updates")
	if !out.JSON {
		spin.Start()
	}

	info, err := updater.CheckLatest(ctx, current)
	if err != nil {
		if !out.JSON {
			spin.StopWithFailure("Update check failed")
		}

		if strings.Contains(err.Error(), "403") {
			out.Info("Set GITHUB_TOKEN to avoid rate limits")
		}

		return fmt.Errorf("update check failed: %w", err)
	}

	_ = update.Record(info)

	if out.JSON {
		return out.PrintJSON(info)
	}

	if !info.UpdateAvailable && !force {
		spin.StopWithSuccess(fmt.Sprintf("Already up to date (v%s)", current))
		return nil
	}

	if !info.Installable() {
		spin.StopWithFailure("No release found for this platform")
		return fmt.Errorf("no release found for this platform")
	}

	if info.UpdateAvailable {
		spin.StopWithSuccess(fmt.Sprintf("Update available: v%s -> v%s", current, info.LatestVersion))
	} else {
		spin.StopWithSuccess(fmt.Sprintf("Reinstalling v%s", info.LatestVersion))
	}

	if elevated, err := elevateIfNeeded(); elevated || err != nil {
		return err
	}

	spin = out.Spinner(fmt.Sprintf("Downloading v%s", info.LatestVersion))
	spin.Start()

	if err := updater.Apply(ctx, info); err != nil {
		spin.StopWithFailure("Update failed")
		return fmt.Errorf("update failed: %w", err)
	}

	spin.StopWithSuccess(fmt.Sprintf("Updated to v%s", info.LatestVersion))

	if info.ReleaseURL != "" {
		out.Muted("Release notes: %s", info.ReleaseURL)
	}

	return nil
}

func installVersion(ctx context.Context, out *output.Writer, updater *update.Updater, version string) error {
	if elevated, err := elevateIfNeeded(); elevated || err != nil {
		return err
	}

	version = strings.TrimPrefix(version, "v")

	spin := out.Spinner(fmt.Sprintf("Installing v%s", version))
	if !out.JSON {
		spin.Start()
	}

	info, err := updater.ApplyVersion(ctx, version)
	if err != nil {
		if !out.JSON {
			spin.StopWithFailure(fmt.Sprintf("Failed to install v%s", version))
		}

		if strings.Contains(err.Error(), "not found") {
			out.Info("Available versions: %s", update.ReleasesURL)
		}

		return fmt.Errorf("install failed: %w", err)
	}

	if out.JSON {
		return out.PrintJSON(info)
	}

	spin.StopWithSuccess(fmt.Sprintf("Installed v%s", info.LatestVersion))

	return nil
}

// elevateIfNeeded re-executes under sudo when the binary's directory is not
// writable. It only returns true when that hand-off failed to happen.
func elevateIfNeeded() (bool, error) {
	execPath, err := selfupdate.ExecutablePath()
	if err != nil || !update.NeedsElevation(execPath) {
		return false, nil //nolint:nilerr // apply reports a missing executable itself
	}

	if err := update.ReExecWithSudo(); err != nil {
		return true, fmt.Errorf("re-exec updater with sudo: %w", err)
	}

	return true, nil
}

// updateWg tracks the background check so the notice reads finished state.
var updateWg sync.WaitGroup

// skipUpdateCommands never trigger checks or notices. Session commands own
// the terminal until they exit.
var skipUpdateCommands = map[string]bool{
	"update":     true,
	"version":    true,
	"completion": true,
	"help":       true,
}

func shouldCheckForUpdates(cmd *cobra.Command, ver string, quiet, jsonOut bool) bool {
	if ver == "dev" || quiet || jsonOut || update.IsDisabled() {
		return false
	}

	return !skipUpdateCommands[cmd.Name()] && !isInteractiveCommand(cmd.CommandPath())
}

func backgroundUpdateCheck(ctx context.Context, current string) {
	state, err := update.LoadState()
	if err != nil || !state.ShouldCheck() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	updater, err := update.NewUpdater(update.DefaultOptions())
	if err != nil {
		return
	}

	info, err := updater.CheckLatest(ctx, current)
	if err != nil {
		observability.FromContext(ctx).Debug("background update check failed", slog.String("error", err.Error()))
		return
	}

	_ = update.Record(info)
}

func showUpdateNotice(out *output.Writer, current string) {
	state, err := update.LoadState()
	if err != nil || !state.HasUpdate(current) {
		return
	}

	out.Println()
	out.Info("A new release of tether is available: v%s -> v%s", current, state.LatestVersion)
	out.Muted("Run 'tether update' to install it")
}
