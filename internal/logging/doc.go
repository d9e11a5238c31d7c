// Package logging provides opt-in file-based logging with rotation for
// EdgeVec's bench CLI. When --debug is set, comprehensive logs are
// written to ~/.edgevec/logs/ for debugging and troubleshooting.
//
// By default (without --debug), logging is minimal and goes to stderr
// only.
package logging
