package visibility

import (
	"regent/internal/sim/step"
)

// CommandSource turns a country's view into its orders for the next tick.
// The engine never depends on a concrete policy: rule-based bots, learned
// models and remote bridges all enter through this interface. Returning
// nil is an explicit pass.
type CommandSource interface {
	ProduceCommands(v *View) []step.Command
}

// Pass never issues anything. It is the degenerate source used for
// unattended slots.
type Pass struct{}

func (Pass) ProduceCommands(*View) []step.Command { return nil }

// SourceFunc adapts a plain function to CommandSource.
type SourceFunc func(v *View) []step.Command

func (f SourceFunc) ProduceCommands(v *View) []step.Command { return f(v) }
