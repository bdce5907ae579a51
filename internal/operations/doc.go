// Package operations implements the network side of an account migration on
// top of XRPC agents: authentication, account creation, repository, blob and
// preference transfer, identity migration, status checks, and finalization.
package operations
