// Package migrate wires the migrate command: it collects credentials on the
// terminal or reads a migration snapshot from standard input, drives the
// migration engine, and reports the outcome.
package migrate
