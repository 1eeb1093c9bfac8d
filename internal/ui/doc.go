// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI wraps one reconciliation run in a live view:
//  1. [RunView] : Monitor page cycles, batch outcomes, and cumulative stats
//  2. [ResultView] : Display the final summary and failed items
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the Reconciler, providing non-blocking status reporting during the run.
//
// The keyboard is the host environment's control surface for the run
// controller: p pauses between batches, r resumes, q stops cooperatively at
// the next suspension point. Contextual help is displayed via charmbracelet/bubbles/help.
package ui
