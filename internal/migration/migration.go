package migration

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/pdsmigrate/internal/credentials"
)

const (
	invalidCredentialsTemplateConstant   = "invalid migration credentials: %w"
	oldSessionLogoutTemplateConstant     = "old session logout failed: %w"
	newSessionLogoutTemplateConstant     = "new session logout failed: %w"
	logMessageTransitionStartedConstant  = "Migration transition started"
	logMessageTransitionFinishedConstant = "Migration transition completed"
	logMessageTransitionFailedConstant   = "Migration transition failed"
	logMessageMigrationPausedConstant    = "Migration waiting for confirmation token"
	logMessageTeardownConstant           = "Migration sessions released"
	logMessageTeardownFailedConstant     = "Migration session logout failed"
	logFieldStateConstant                = "state"
	logFieldNextStateConstant            = "next_state"
	logFieldAccountDIDConstant           = "account_did"
	logFieldErrorsConstant               = "errors"
)

// StepOutcome distinguishes real progress from waiting at the pause point and
// from a failed transition.
type StepOutcome int

// Step outcomes returned by Advance.
const (
	StepAdvanced StepOutcome = iota
	StepWaiting
	StepFailed
)

// StateObserver receives every state the driver passes through.
type StateObserver func(state State)

// Dependencies configures the collaborators of a Migration.
type Dependencies struct {
	Operations Operations
	Logger     *zap.Logger
}

// Migration drives an account migration through its states.
//
// A Migration exclusively owns its session pair. It is not safe for
// concurrent use, and two processes must never resume the same snapshot.
type Migration struct {
	state      State
	data       Data
	sessions   *SessionPair
	operations Operations
	logger     *zap.Logger
	teardownMu sync.Mutex
}

// New creates a migration in the Ready state from validated credentials.
func New(migrationCredentials credentials.Credentials, dependencies Dependencies) (*Migration, error) {
	if validationError := credentials.Validate(migrationCredentials); validationError != nil {
		return nil, fmt.Errorf(invalidCredentialsTemplateConstant, validationError)
	}
	return newMigration(StateReady, Data{Credentials: migrationCredentials}, nil, dependencies)
}

func newMigration(state State, data Data, sessions *SessionPair, dependencies Dependencies) (*Migration, error) {
	if dependencies.Operations == nil {
		return nil, errOperationsMissing
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migration{
		state:      state,
		data:       data,
		sessions:   sessions,
		operations: dependencies.Operations,
		logger:     logger,
	}, nil
}

// State returns the last state reached.
func (migration *Migration) State() State {
	return migration.state
}

// Credentials returns the credentials the migration runs with.
func (migration *Migration) Credentials() credentials.Credentials {
	return migration.data.Credentials
}

// ConfirmationToken returns the token, or an empty string when none is set.
func (migration *Migration) ConfirmationToken() string {
	return migration.data.ConfirmationToken
}

// NewPrivateKey returns the derived recovery key, or an empty string before identity migration.
func (migration *Migration) NewPrivateKey() string {
	return migration.data.NewPrivateKey
}

// AccountStatuses returns a copy of the status snapshot, or nil when none was taken.
func (migration *Migration) AccountStatuses() *AccountStatuses {
	if migration.data.AccountStatuses == nil {
		return nil
	}
	statuses := *migration.data.AccountStatuses
	return &statuses
}

// AccountDID returns the account identifier once sessions exist.
func (migration *Migration) AccountDID() string {
	if migration.sessions == nil {
		return ""
	}
	return migration.sessions.AccountDID
}

// Paused reports whether the migration waits for a confirmation token.
func (migration *Migration) Paused() bool {
	return migration.state == StateRequestedPlcOperation && len(migration.data.ConfirmationToken) == 0
}

// SetConfirmationToken stores the out-of-band token. It may be set exactly once.
func (migration *Migration) SetConfirmationToken(token string) error {
	if len(token) == 0 {
		return ErrConfirmationTokenEmpty
	}
	if len(migration.data.ConfirmationToken) > 0 {
		return ErrConfirmationTokenAlreadySet
	}
	migration.data.ConfirmationToken = token
	return nil
}

// Advance executes the transition out of the current state.
//
// On failure the outcome is StepFailed, the state is left unchanged and the
// error is a TransitionError naming that state.
func (migration *Migration) Advance(executionContext context.Context) (StepOutcome, error) {
	currentState := migration.state
	transition, lookupError := lookupTransition(currentState)
	if lookupError != nil {
		return StepFailed, TransitionError{State: currentState, Cause: lookupError}
	}

	migration.logger.Debug(
		logMessageTransitionStartedConstant,
		zap.Stringer(logFieldStateConstant, currentState),
		zap.String(logFieldAccountDIDConstant, migration.AccountDID()),
	)

	result, transitionError := transition(executionContext, migration.operations, migration.data, migration.sessions)
	if transitionError == nil {
		transitionError = migration.mergeDelta(result.delta)
	}
	if transitionError != nil {
		failure := TransitionError{State: currentState, Cause: transitionError}
		migration.logger.Error(
			logMessageTransitionFailedConstant,
			zap.Stringer(logFieldStateConstant, currentState),
			zap.String(logFieldAccountDIDConstant, migration.AccountDID()),
			zap.Error(transitionError),
		)
		return StepFailed, failure
	}

	if result.outcome == outcomeWaiting {
		migration.logger.Info(logMessageMigrationPausedConstant, zap.Stringer(logFieldStateConstant, currentState))
		return StepWaiting, nil
	}

	if result.sessions != nil {
		migration.sessions = result.sessions
	}
	migration.applyDelta(result.delta)
	migration.state = result.nextState

	migration.logger.Info(
		logMessageTransitionFinishedConstant,
		zap.Stringer(logFieldStateConstant, currentState),
		zap.Stringer(logFieldNextStateConstant, result.nextState),
		zap.String(logFieldAccountDIDConstant, migration.AccountDID()),
	)
	return StepAdvanced, nil
}

// Run drives the migration until it finalizes or pauses and returns the state reached.
func (migration *Migration) Run(executionContext context.Context) (State, error) {
	return migration.RunWithObserver(executionContext, nil)
}

// RunWithObserver drives the migration like Run and reports every state it
// passes through, starting with the current one. When the migration
// finalizes the observer receives Finalized after teardown.
func (migration *Migration) RunWithObserver(executionContext context.Context, observer StateObserver) (State, error) {
	notify := func(state State) {
		if observer != nil {
			observer(state)
		}
	}

	for migration.state != StateFinalized {
		notify(migration.state)
		if migration.Paused() {
			migration.logger.Info(logMessageMigrationPausedConstant, zap.Stringer(logFieldStateConstant, migration.state))
			return migration.state, nil
		}

		outcome, advanceError := migration.Advance(executionContext)
		if advanceError != nil {
			return migration.state, advanceError
		}
		if outcome == StepWaiting {
			return migration.state, nil
		}
	}

	migration.Teardown(executionContext)
	notify(migration.state)
	return migration.state, nil
}

// Teardown marks the migration Finalized and releases its sessions. Repeated
// calls are no-ops. Logout failures are logged and never returned.
//
// Calling Teardown before the migration reached CheckedAccountStatus leaves a
// Finalized state without the confirmation token, recovery key or account
// statuses. Serialize still reports it, but Deserialize rejects that snapshot,
// so an early teardown cannot be resumed.
func (migration *Migration) Teardown(executionContext context.Context) {
	migration.teardownMu.Lock()
	migration.state = StateFinalized
	sessions := migration.sessions
	migration.sessions = nil
	migration.teardownMu.Unlock()

	if sessions == nil {
		return
	}
	migration.releaseSessions(executionContext, *sessions)
}

func (migration *Migration) releaseSessions(executionContext context.Context, sessions SessionPair) {
	releaseContext := context.WithoutCancel(executionContext)

	var oldLogoutError, newLogoutError error
	var logoutGroup errgroup.Group
	logoutGroup.Go(func() error {
		oldLogoutError = logoutSession(releaseContext, sessions.Old, oldSessionLogoutTemplateConstant)
		return nil
	})
	logoutGroup.Go(func() error {
		newLogoutError = logoutSession(releaseContext, sessions.New, newSessionLogoutTemplateConstant)
		return nil
	})
	_ = logoutGroup.Wait()

	if combinedError := multierr.Combine(oldLogoutError, newLogoutError); combinedError != nil {
		migration.logger.Warn(
			logMessageTeardownFailedConstant,
			zap.String(logFieldAccountDIDConstant, sessions.AccountDID),
			zap.Errors(logFieldErrorsConstant, multierr.Errors(combinedError)),
		)
		return
	}
	migration.logger.Debug(logMessageTeardownConstant, zap.String(logFieldAccountDIDConstant, sessions.AccountDID))
}

func logoutSession(executionContext context.Context, session Session, template string) error {
	if session == nil {
		return nil
	}
	if logoutError := session.Logout(executionContext); logoutError != nil {
		return fmt.Errorf(template, logoutError)
	}
	return nil
}

func (migration *Migration) mergeDelta(delta dataDelta) error {
	if len(delta.newPrivateKey) > 0 && len(migration.data.NewPrivateKey) > 0 {
		return ErrNewPrivateKeyAlreadySet
	}
	return nil
}

func (migration *Migration) applyDelta(delta dataDelta) {
	if len(delta.confirmationToken) > 0 {
		migration.data.ConfirmationToken = delta.confirmationToken
	}
	if len(delta.newPrivateKey) > 0 {
		migration.data.NewPrivateKey = delta.newPrivateKey
	}
	if delta.accountStatuses != nil {
		statuses := *delta.accountStatuses
		migration.data.AccountStatuses = &statuses
	}
}
