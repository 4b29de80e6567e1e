package main

import (
	"github.com/spf13/cobra"

	"github.com/musher-dev/tether/internal/doctor"
	"github.com/musher-dev/tether/internal/output"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose common issues",
		Long: `Run diagnostic checks on everything a terminal session depends on.

Checks performed:
  - Interactive terminal and its size
  - Terminfo entry for the accelerated renderer
  - Configured renderer and theme
  - Pseudo-terminal support
  - Recordings directory`,
		Example: `  tether doctor`,
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			results := doctor.New(doctor.DefaultEnvironment()).Run(cmd.Context())
			renderDoctor(out, results)

			return nil
		},
	}
}

func renderDoctor(out *output.Writer, results []doctor.Result) {
	out.Println("Tether Doctor")
	out.Println("=============")
	out.Println()

	doctor.RenderResults(results, out.Print, out.Success, out.Warning, out.Failure, out.Muted)

	passed, failed, warnings := doctor.Summary(results)

	out.Println()
	out.Print("%d passed", passed)

	if failed > 0 {
		out.Print(", %d failed", failed)
	}

	if warnings > 0 {
		out.Print(", %d warning(s)", warnings)
	}

	out.Println()
}
