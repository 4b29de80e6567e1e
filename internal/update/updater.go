// Package update checks GitHub Releases for newer tether builds and
// replaces the running binary, verifying checksums.
package update

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
	selfupdate "github.com/creativeprojects/go-selfupdate"
)

const repoSlug = "musher-dev/tether"

// ReleasesURL is where users can browse published builds.
const ReleasesURL = "https://github.com/" + repoSlug + "/releases"

// IsDisabled reports whether TETHER_UPDATE_DISABLED turns update checks off.
func IsDisabled() bool {
	v := strings.TrimSpace(os.Getenv("TETHER_UPDATE_DISABLED"))
	return v == "1" || strings.EqualFold(v, "true")
}

// Info holds the result of a version check.
type Info struct {
	CurrentVersion  string `json:"currentVersion"`
	LatestVersion   string `json:"latestVersion"`
	UpdateAvailable bool   `json:"updateAvailable"`
	ReleaseURL      string `json:"releaseURL,omitempty"`

	release *selfupdate.Release
}

// Installable reports whether a release asset exists for this platform.
func (i *Info) Installable() bool {
	return i != nil && i.release != nil
}

// Options configures where releases come from.
type Options struct {
	// APIToken raises GitHub rate limits. Empty means $GITHUB_TOKEN.
	APIToken string
	// BaseURL points at a GitHub Enterprise or test API. Empty means
	// github.com.
	BaseURL string
	// Checksums names the release asset holding SHA-256 sums. Empty
	// disables verification.
	Checksums string
}

// DefaultOptions verifies downloads against checksums.txt.
func DefaultOptions() Options {
	return Options{Checksums: "checksums.txt"}
}

// Updater checks for and applies releases.
type Updater struct {
	updater *selfupdate.Updater
}

// NewUpdater creates an updater for this platform.
func NewUpdater(opts Options) (*Updater, error) {
	token := opts.APIToken
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{
		APIToken:          token,
		EnterpriseBaseURL: opts.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create github source: %w", err)
	}

	cfg := selfupdate.Config{
		Source: source,
		OS:     runtime.GOOS,
		Arch:   runtime.GOARCH,
	}
	if opts.Checksums != "" {
		cfg.Validator = &selfupdate.ChecksumValidator{UniqueFilename: opts.Checksums}
	}

	updater, err := selfupdate.NewUpdater(cfg)
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}

	return &Updater{updater: updater}, nil
}

// CheckLatest compares currentVersion with the newest release for this
// platform. A current version that is not semver, such as "dev", always
// reports an update.
func (u *Updater) CheckLatest(ctx context.Context, currentVersion string) (*Info, error) {
	latest, found, err := u.updater.DetectLatest(ctx, selfupdate.ParseSlug(repoSlug))
	if err != nil {
		return nil, fmt.Errorf("detect latest release: %w", err)
	}

	info := &Info{CurrentVersion: currentVersion, LatestVersion: currentVersion}
	if !found {
		return info, nil
	}

	info.LatestVersion = latest.Version()
	info.ReleaseURL = latest.URL
	info.release = latest

	if _, err := semver.NewVersion(currentVersion); err != nil {
		info.UpdateAvailable = true
		return info, nil
	}

	info.UpdateAvailable = newer(info.LatestVersion, currentVersion)

	return info, nil
}

// Apply installs the release found by CheckLatest over the running binary.
func (u *Updater) Apply(ctx context.Context, info *Info) error {
	if !info.Installable() {
		return fmt.Errorf("no release found for %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	execPath, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("find executable path: %w", err)
	}

	if err := u.updater.UpdateTo(ctx, info.release, execPath); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}

	return nil
}

// ApplyVersion installs a specific version. A leading "v" is ignored.
func (u *Updater) ApplyVersion(ctx context.Context, version string) (*Info, error) {
	version = strings.TrimPrefix(version, "v")

	release, found, err := u.updater.DetectVersion(ctx, selfupdate.ParseSlug(repoSlug), version)
	if err != nil {
		return nil, fmt.Errorf("detect version %s: %w", version, err)
	}

	if !found {
		return nil, fmt.Errorf("version %s not found", version)
	}

	info := &Info{LatestVersion: release.Version(), ReleaseURL: release.URL, release: release}
	if err := u.Apply(ctx, info); err != nil {
		return nil, err
	}

	return info, nil
}

// newer reports whether a is a greater semver than b. Unparseable input is
// never newer.
func newer(a, b string) bool {
	va, err := semver.NewVersion(a)
	if err != nil {
		return false
	}

	vb, err := semver.NewVersion(b)
	if err != nil {
		return false
	}

	return va.GreaterThan(vb)
}
