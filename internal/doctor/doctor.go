// Package doctor provides diagnostic checks for tether's runtime
// environment.
//
// The checks cover what a terminal session depends on: an interactive
// terminal, a terminfo entry for the accelerated renderer, PTY support,
// configuration, themes and the recordings store.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/creack/pty"
	"github.com/gdamore/tcell/v2"

	"github.com/musher-dev/tether/internal/buildinfo"
	"github.com/musher-dev/tether/internal/config"
	"github.com/musher-dev/tether/internal/recording"
	"github.com/musher-dev/tether/internal/renderer"
	"github.com/musher-dev/tether/internal/terminal"
	"github.com/musher-dev/tether/internal/update"
)

// Status represents the result of a diagnostic check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical failure.
	StatusFail
)

// Result holds the outcome of a single check.
type Result struct {
	Name    string
	Status  Status
	Message string
	Detail  string // Optional additional detail
}

// Check is a diagnostic check function.
type Check func(ctx context.Context) Result

// Runner executes diagnostic checks.
type Runner struct {
	checks []namedCheck
}

type namedCheck struct {
	name  string
	check Check
}

// Environment is what the default checks inspect. Tests replace parts of it.
type Environment struct {
	Term           string
	Terminal       *terminal.Info
	Config         *config.Config
	LookupTerminfo func(name string) error
	OpenPTY        func() (ptmx, tty *os.File, err error)
}

// DefaultEnvironment inspects the current process.
func DefaultEnvironment() Environment {
	return Environment{
		Term:           os.Getenv("TERM"),
		Terminal:       terminal.Detect(),
		Config:         config.Load(),
		LookupTerminfo: lookupTerminfo,
		OpenPTY:        pty.Open,
	}
}

func lookupTerminfo(name string) error {
	_, err := tcell.LookupTerminfo(name)
	return err
}

// New creates a runner with the default checks over env.
func New(env Environment) *Runner {
	r := &Runner{}

	r.AddCheck("Terminal", env.checkTerminal)
	r.AddCheck("Terminfo", env.checkTerminfo)
	r.AddCheck("Renderer", env.checkRenderer)
	r.AddCheck("Theme", env.checkTheme)
	r.AddCheck("PTY", env.checkPTY)
	r.AddCheck("Recordings", env.checkRecordings)
	r.AddCheck("CLI Version", checkCLIVersion)

	return r
}

// AddCheck registers a diagnostic check.
func (r *Runner) AddCheck(name string, check Check) {
	r.checks = append(r.checks, namedCheck{name: name, check: check})
}

// Run executes all registered checks and returns the results.
func (r *Runner) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(r.checks))

	for _, nc := range r.checks {
		result := nc.check(ctx)
		result.Name = nc.name
		results = append(results, result)
	}

	return results
}

// Summary returns counts of passed, failed, and warning checks.
func Summary(results []Result) (passed, failed, warnings int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusWarn:
			warnings++
		}
	}

	return passed, failed, warnings
}

func (e Environment) checkTerminal(context.Context) Result {
	if e.Terminal == nil || !e.Terminal.IsTTY {
		return Result{
			Status:  StatusWarn,
			Message: "stdout is not a terminal",
			Detail:  "Session commands need an interactive terminal",
		}
	}

	return Result{
		Status:  StatusPass,
		Message: fmt.Sprintf("%dx%d", e.Terminal.Width, e.Terminal.Height),
	}
}

func (e Environment) checkTerminfo(context.Context) Result {
	term := strings.TrimSpace(e.Term)
	if term == "" || term == "dumb" {
		return Result{
			Status:  StatusWarn,
			Message: fmt.Sprintf("TERM=%q", term),
			Detail:  "The accelerated renderer is unavailable; sessions fall back to canvas or default",
		}
	}

	if err := e.LookupTerminfo(term); err != nil {
		return Result{
			Status:  StatusWarn,
			Message: fmt.Sprintf("No terminfo entry for %s", term),
			Detail:  err.Error(),
		}
	}

	return Result{
		Status:  StatusPass,
		Message: term,
	}
}

func (e Environment) checkRenderer(context.Context) Result {
	name := e.Config.Renderer()

	kind, err := renderer.ParseKind(name)
	if err != nil {
		return Result{
			Status:  StatusFail,
			Message: fmt.Sprintf("terminal.renderer=%q", name),
			Detail:  err.Error(),
		}
	}

	return Result{
		Status:  StatusPass,
		Message: fmt.Sprintf("starts at %s", kind),
	}
}

func (e Environment) checkTheme(context.Context) Result {
	path := e.Config.ThemeFile()
	if path == "" {
		return Result{
			Status:  StatusPass,
			Message: "built-in default",
		}
	}

	theme, err := renderer.LoadTheme(path)
	if err != nil {
		return Result{
			Status:  StatusFail,
			Message: path,
			Detail:  err.Error(),
		}
	}

	name := theme.Name
	if name == "" {
		name = "unnamed"
	}

	return Result{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s from %s", name, path),
	}
}

func (e Environment) checkPTY(context.Context) Result {
	ptmx, tty, err := e.OpenPTY()
	if err != nil {
		if errors.Is(err, pty.ErrUnsupported) {
			return Result{
				Status:  StatusWarn,
				Message: "Not supported on this platform",
				Detail:  "tether shell and tether serve are unavailable; connect and play still work",
			}
		}

		return Result{
			Status:  StatusFail,
			Message: "Cannot allocate a pseudo-terminal",
			Detail:  err.Error(),
		}
	}

	name := tty.Name()
	_ = tty.Close()
	_ = ptmx.Close()

	return Result{
		Status:  StatusPass,
		Message: name,
	}
}

func (e Environment) checkRecordings(context.Context) Result {
	dir := e.Config.RecordingDir()
	if dir == "" {
		var err error

		dir, err = recording.DefaultDir()
		if err != nil {
			return Result{
				Status:  StatusFail,
				Message: "Cannot resolve recordings directory",
				Detail:  err.Error(),
			}
		}
	}

	sessions, err := recording.ListSessions(dir)
	if err != nil {
		return Result{
			Status:  StatusWarn,
			Message: dir,
			Detail:  err.Error(),
		}
	}

	state := "off"
	if e.Config.RecordingEnabled() {
		state = "on"
	}

	return Result{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d stored in %s (recording %s)", len(sessions), dir, state),
	}
}

func checkCLIVersion(context.Context) Result {
	if buildinfo.Version == "dev" {
		return Result{
			Status:  StatusWarn,
			Message: "Development build",
		}
	}

	// Cached result only; doctor stays offline.
	if state, err := update.LoadState(); err == nil && !update.IsDisabled() && state.HasUpdate(buildinfo.Version) {
		return Result{
			Status:  StatusWarn,
			Message: fmt.Sprintf("v%s (v%s available)", buildinfo.Version, state.LatestVersion),
			Detail:  "Run 'tether update' to install it",
		}
	}

	return Result{
		Status:  StatusPass,
		Message: fmt.Sprintf("v%s (%s)", buildinfo.Version, buildinfo.Commit),
	}
}

// RenderResults formats diagnostic results to the given output writer.
func RenderResults(results []Result, printFn, successFn, warningFn, failureFn, mutedFn func(format string, args ...any)) {
	maxNameLen := 0
	for _, r := range results {
		maxNameLen = max(maxNameLen, len(r.Name))
	}

	for _, r := range results {
		width := maxNameLen + 4

		switch r.Status {
		case StatusPass:
			successFn("%-*s%s", width, r.Name, r.Message)
		case StatusWarn:
			warningFn("%-*s%s", width, r.Name, r.Message)
		case StatusFail:
			failureFn("%-*s%s", width, r.Name, r.Message)
		default:
			printFn("%s %-*s%s\n", r.Status.Symbol(), width, r.Name, r.Message)
		}

		if r.Detail != "" {
			mutedFn("    %s", r.Detail)
		}
	}
}

// Symbol returns the status symbol for display.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	default:
		return "?"
	}
}
