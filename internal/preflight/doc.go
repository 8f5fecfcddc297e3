// Package preflight provides readiness checks run before a conversion.
//
// These checks run in two contexts:
//   - The convert commands call RunAll before starting the pipeline unless
//     --skip-preflight is given, so a doomed run fails before uploading.
//   - The CLI "sdconvert check" command prints every Result as a table.
//
// A failed check never aborts the remaining checks.
package preflight
