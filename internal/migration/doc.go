// Package migration implements the resumable state machine that moves an
// account from one data server to another.
//
// A Migration advances through Ready, Initialized, CreatedNewAccount,
// MigratedData, RequestedPlcOperation, MigratedIdentity, CheckedAccountStatus
// and Finalized. It pauses at RequestedPlcOperation until a confirmation
// token delivered out of band is supplied. Every state can be serialized and
// resumed later; sessions are re-established on resume and never persisted.
package migration
