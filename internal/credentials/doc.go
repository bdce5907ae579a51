// Package credentials models the inputs of an account migration and gates them
// through URL, handle, and email validation before a migration may start.
package credentials
