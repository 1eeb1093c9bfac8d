// Package catalog defines the remote shelf data model and the two adapter
// boundaries the reconciliation engine consumes.
//
// The package contains three categories of types:
//
// 1. Data model: [Item] and [Category] describe a toggleable entry as observed
// on the shelf. Items are recreated on every page read; the only value that
// survives pagination is the dedup key.
//
// 2. Adapter interfaces: [Source] yields the currently rendered items and the
// pagination state; [Actuator] performs a state change for one item. An
// actuator that also implements [Observer] exposes an observable indicator the
// engine polls to verify each actuation.
//
// 3. HTTP implementations: [ShelfSource], [StateActuator] and
// [ToggleActuator] speak to the shelf's HTTP surface, replaying captured
// browser session headers. [ProbeActuator] selects an actuation style from the
// shelf's advertised capabilities once per run.
//
// Actuation outcomes are reported as errors: nil means the change was taken,
// [ErrAlreadyDesired] means the item was found already in the requested state,
// [TransientError] marks a retryable condition and [PermanentError] a
// definitive rejection.
package catalog
