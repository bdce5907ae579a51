// Package cli constructs the pdsmigrate command-line interface, wiring the
// Cobra command hierarchy, configuration loader, and structured logging
// primitives around the migrate command.
package cli
