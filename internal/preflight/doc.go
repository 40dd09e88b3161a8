// Package preflight provides readiness checks for the dataset, output
// location and chat APIs that a batch run depends on.
//
// These checks run in two contexts:
//   - The "chatbatch check" command prints every result as a table.
//   - The run command calls RunAll with --preflight before loading the
//     dataset and refuses to start if any check fails.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
