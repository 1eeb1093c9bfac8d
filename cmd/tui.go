package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/tidalhook/shelfctl/internal/engine"
	"github.com/tidalhook/shelfctl/internal/shared"
	"github.com/tidalhook/shelfctl/internal/ui"
)

// TUI launches the interactive terminal UI for a reconciliation run.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if r.source == nil {
		return fmt.Errorf("%w: shelf source not initialized", shared.ErrShelfUnavailable)
	}

	policy, err := r.policyFromFlags(cmd)
	if err != nil {
		return err
	}

	actuator := r.actuator
	if policy.DryRun {
		actuator = noopActuator{}
	} else if actuator, err = r.resolveActuator(ctx); err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/shelfctl-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	rec := engine.NewReconciler(r.source, actuator, policy, r.logger)

	model := ui.NewModel(ctx, rec)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Run a reconciliation interactively with live progress",
		Flags:  runFlags(),
		Action: r.TUI,
	}
}
