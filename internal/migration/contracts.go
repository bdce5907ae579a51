package migration

import (
	"context"

	"github.com/temirov/pdsmigrate/internal/credentials"
)

// Session is an authenticated handle on one endpoint.
type Session interface {
	Login(executionContext context.Context, identifier string, password string) error
	Logout(executionContext context.Context) error
}

// SessionPair binds the sessions on both endpoints to the migrated account.
type SessionPair struct {
	Old        Session
	New        Session
	AccountDID string
}

// Operations performs the network side of every migration step.
//
// The engine calls each method at most once per transition and never
// concurrently. Implementations must not retry on their own.
type Operations interface {
	// Authenticate logs into the old endpoint and prepares an unauthenticated
	// session on the new one. It fails when no account identifier is returned.
	Authenticate(executionContext context.Context, migrationCredentials credentials.Credentials) (SessionPair, error)
	// CreateAccount creates the account on the new endpoint using a service
	// token from the old endpoint, then logs into it.
	CreateAccount(executionContext context.Context, sessions SessionPair, migrationCredentials credentials.Credentials) error
	// MigrateData copies the repository, then blobs, then preferences.
	MigrateData(executionContext context.Context, sessions SessionPair) error
	// RequestIdentityChange asks the old endpoint to send a confirmation token out of band.
	RequestIdentityChange(executionContext context.Context, sessions SessionPair) error
	// MigrateIdentity signs and submits the identity operation, returning the
	// hex-encoded private recovery key that now controls the identity.
	MigrateIdentity(executionContext context.Context, sessions SessionPair, confirmationToken string) (string, error)
	// CheckStatus snapshots the account status on both endpoints.
	CheckStatus(executionContext context.Context, sessions SessionPair) (AccountStatuses, error)
	// Finalize activates the new account, deactivates the old one, and applies
	// the final handle when it differs from the migration handle.
	Finalize(executionContext context.Context, sessions SessionPair, migrationCredentials credentials.Credentials) error
}

// AccountStatus captures the state of the account on one endpoint.
type AccountStatus struct {
	Activated          bool   `json:"activated"`
	ValidDID           bool   `json:"validDid"`
	RepoCommit         string `json:"repoCommit"`
	RepoRev            string `json:"repoRev"`
	RepoBlocks         int64  `json:"repoBlocks"`
	IndexedRecords     int64  `json:"indexedRecords"`
	PrivateStateValues int64  `json:"privateStateValues"`
	ExpectedBlobs      int64  `json:"expectedBlobs"`
	ImportedBlobs      int64  `json:"importedBlobs"`
}

// AccountStatuses pairs the status snapshots of both endpoints.
type AccountStatuses struct {
	Old AccountStatus `json:"old"`
	New AccountStatus `json:"new"`
}

// Data accumulates the values produced while the migration advances.
// Empty strings and nil pointers mean the value is not set yet.
type Data struct {
	Credentials       credentials.Credentials
	ConfirmationToken string
	NewPrivateKey     string
	AccountStatuses   *AccountStatuses
}
