// Package testsupport provides in-memory migration collaborators for command tests.
package testsupport

import (
	"context"
	"sync"

	"github.com/temirov/pdsmigrate/internal/credentials"
	"github.com/temirov/pdsmigrate/internal/migration"
)

// Operation names recorded by StubOperations.
const (
	OperationAuthenticate          = "authenticate"
	OperationCreateAccount         = "create_account"
	OperationMigrateData           = "migrate_data"
	OperationRequestIdentityChange = "request_identity_change"
	OperationMigrateIdentity       = "migrate_identity"
	OperationCheckStatus           = "check_status"
	OperationFinalize              = "finalize"
	OperationLogin                 = "login"
	OperationLogout                = "logout"
)

const (
	// DefaultAccountDID is returned by Authenticate unless overridden.
	DefaultAccountDID = "did:plc:testaccount"
	// DefaultPrivateKey is returned by MigrateIdentity unless overridden.
	DefaultPrivateKey = "0f1e2d3c4b5a69788796a5b4c3d2e1f00f1e2d3c4b5a69788796a5b4c3d2e1f0"
)

// StubSession records logins and logouts.
type StubSession struct {
	recorder *callRecorder
}

// Login records the call.
func (session *StubSession) Login(executionContext context.Context, identifier string, password string) error {
	return session.recorder.record(OperationLogin)
}

// Logout records the call.
func (session *StubSession) Logout(executionContext context.Context) error {
	return session.recorder.record(OperationLogout)
}

// StubOperations implements migration.Operations without any network access.
// Failures maps operation names to the error they return.
type StubOperations struct {
	AccountDID      string
	PrivateKey      string
	AccountStatuses *migration.AccountStatuses
	Failures        map[string]error

	recorder     *callRecorder
	recorderOnce sync.Once
}

var _ migration.Operations = (*StubOperations)(nil)

// Calls lists every recorded operation in invocation order.
func (operations *StubOperations) Calls() []string {
	return operations.calls().snapshot()
}

// ConfirmationTokens lists the tokens MigrateIdentity received.
func (operations *StubOperations) ConfirmationTokens() []string {
	return operations.calls().tokens()
}

// Authenticate returns a session pair bound to AccountDID.
func (operations *StubOperations) Authenticate(executionContext context.Context, migrationCredentials credentials.Credentials) (migration.SessionPair, error) {
	if recordError := operations.calls().record(OperationAuthenticate); recordError != nil {
		return migration.SessionPair{}, recordError
	}
	accountDID := operations.AccountDID
	if len(accountDID) == 0 {
		accountDID = DefaultAccountDID
	}
	return migration.SessionPair{
		Old:        &StubSession{recorder: operations.calls()},
		New:        &StubSession{recorder: operations.calls()},
		AccountDID: accountDID,
	}, nil
}

// CreateAccount records the call.
func (operations *StubOperations) CreateAccount(executionContext context.Context, sessions migration.SessionPair, migrationCredentials credentials.Credentials) error {
	return operations.calls().record(OperationCreateAccount)
}

// MigrateData records the call.
func (operations *StubOperations) MigrateData(executionContext context.Context, sessions migration.SessionPair) error {
	return operations.calls().record(OperationMigrateData)
}

// RequestIdentityChange records the call.
func (operations *StubOperations) RequestIdentityChange(executionContext context.Context, sessions migration.SessionPair) error {
	return operations.calls().record(OperationRequestIdentityChange)
}

// MigrateIdentity records the token and returns PrivateKey.
func (operations *StubOperations) MigrateIdentity(executionContext context.Context, sessions migration.SessionPair, confirmationToken string) (string, error) {
	operations.calls().rememberToken(confirmationToken)
	if recordError := operations.calls().record(OperationMigrateIdentity); recordError != nil {
		return "", recordError
	}
	if len(operations.PrivateKey) == 0 {
		return DefaultPrivateKey, nil
	}
	return operations.PrivateKey, nil
}

// CheckStatus returns AccountStatuses, or DefaultAccountStatuses when unset.
func (operations *StubOperations) CheckStatus(executionContext context.Context, sessions migration.SessionPair) (migration.AccountStatuses, error) {
	if recordError := operations.calls().record(OperationCheckStatus); recordError != nil {
		return migration.AccountStatuses{}, recordError
	}
	if operations.AccountStatuses == nil {
		return DefaultAccountStatuses(), nil
	}
	return *operations.AccountStatuses, nil
}

// DefaultAccountStatuses describes a healthy migration awaiting activation.
func DefaultAccountStatuses() migration.AccountStatuses {
	return migration.AccountStatuses{
		Old: migration.AccountStatus{Activated: true, ValidDID: false},
		New: migration.AccountStatus{Activated: false, ValidDID: true},
	}
}

// Finalize records the call.
func (operations *StubOperations) Finalize(executionContext context.Context, sessions migration.SessionPair, migrationCredentials credentials.Credentials) error {
	return operations.calls().record(OperationFinalize)
}

func (operations *StubOperations) calls() *callRecorder {
	operations.recorderOnce.Do(func() {
		operations.recorder = &callRecorder{failures: operations.Failures}
	})
	return operations.recorder
}

type callRecorder struct {
	mutex              sync.Mutex
	recorded           []string
	confirmationTokens []string
	failures           map[string]error
}

func (recorder *callRecorder) record(operation string) error {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.recorded = append(recorder.recorded, operation)
	return recorder.failures[operation]
}

func (recorder *callRecorder) rememberToken(token string) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.confirmationTokens = append(recorder.confirmationTokens, token)
}

func (recorder *callRecorder) snapshot() []string {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return append([]string(nil), recorder.recorded...)
}

func (recorder *callRecorder) tokens() []string {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return append([]string(nil), recorder.confirmationTokens...)
}
