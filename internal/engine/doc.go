// Package engine owns the model cache and the generation service. It is
// structured into small files by concern:
//
//   - engine.go: core Engine type, Config, constructor.
//   - types.go: internal state types (State, Instance) and policy constants.
//   - errors.go: error types and predicates (IsUnsupportedModel, IsTooBusy, ...).
//   - acquire.go: Acquire/ReleaseAll/Describe cache lifecycle.
//   - admission.go: per-instance queueing and generation admission.
//   - generate.go: Generate entry point, prompt truncation, echo stripping.
//   - tokens.go: approximate token budget accounting.
//   - status.go: Status reporting.
//
// The engine is an explicit registry object: it owns the name-to-instance
// mapping and is passed by reference to the HTTP layer, so separate engines
// (per test, per process) never share hidden state. Concurrent loads of the
// same model are serialized one-loader-per-key; late arrivals wait for the
// first loader instead of duplicating the work.
package engine
