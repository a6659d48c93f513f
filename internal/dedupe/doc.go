// Package dedupe remembers recently settled request ids for a configurable
// window so late or repeated responses can be told apart from unknown ones.
package dedupe
