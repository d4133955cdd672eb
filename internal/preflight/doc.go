// Package preflight provides readiness checks for the filesystem paths a
// stream session depends on.
//
// These checks run in two contexts:
//   - The stream command calls RunAll before starting a session. If any check
//     fails it refuses to start instead of failing halfway through pipe setup.
//   - The check command prints every Result next to the encoder status.
package preflight
