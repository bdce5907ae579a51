// Package xrpc is a small HTTP client for the XRPC endpoints an account
// migration needs: sessions, repository and blob transfer, preferences,
// identity operations, and account status.
package xrpc
