package migration

import (
	"errors"
	"fmt"
)

const (
	transitionFailedTemplateConstant          = "migration failed during state %q"
	transitionFailedWithCauseTemplateConstant = "migration failed during state %q: %v"
	postconditionTemplateConstant             = "post-condition violated: %s"
	handleUpdateFailedTemplateConstant        = "the new account is active under the temporary handle %q; update it to %q manually: %v"
	transitionFromFinalizedMessageConstant    = "cannot transition from Finalized state"
	confirmationTokenSetMessageConstant       = "confirmation token already set"
	confirmationTokenEmptyMessageConstant     = "confirmation token must be non-empty"
	newPrivateKeySetMessageConstant           = "new private key already set"
	sessionsMissingMessageConstant            = "session pair not established"
	operationsMissingMessageConstant          = "migration operations not configured"
)

var (
	// ErrTransitionFromFinalized is raised when a finalized migration is asked to advance.
	ErrTransitionFromFinalized = errors.New(transitionFromFinalizedMessageConstant)
	// ErrConfirmationTokenAlreadySet is raised by a second SetConfirmationToken call.
	ErrConfirmationTokenAlreadySet = errors.New(confirmationTokenSetMessageConstant)
	// ErrConfirmationTokenEmpty is raised when an empty token is supplied.
	ErrConfirmationTokenEmpty = errors.New(confirmationTokenEmptyMessageConstant)
	// ErrNewPrivateKeyAlreadySet signals a second derivation of the recovery key.
	ErrNewPrivateKeyAlreadySet = errors.New(newPrivateKeySetMessageConstant)
	// ErrSessionsMissing signals a transition that needs sessions running without them.
	ErrSessionsMissing = errors.New(sessionsMissingMessageConstant)

	errOperationsMissing = errors.New(operationsMissingMessageConstant)
)

// TransitionError wraps a failure raised while leaving State.
type TransitionError struct {
	State State
	Cause error
}

// Error describes the failed transition.
func (transitionError TransitionError) Error() string {
	if transitionError.Cause == nil {
		return fmt.Sprintf(transitionFailedTemplateConstant, transitionError.State)
	}
	return fmt.Sprintf(transitionFailedWithCauseTemplateConstant, transitionError.State, transitionError.Cause)
}

// Unwrap exposes the underlying cause.
func (transitionError TransitionError) Unwrap() error {
	return transitionError.Cause
}

// PostconditionError reports an endpoint state that indicates a corrupted migration.
type PostconditionError struct {
	Message string
}

// Error describes the violated post-condition.
func (postconditionError PostconditionError) Error() string {
	return fmt.Sprintf(postconditionTemplateConstant, postconditionError.Message)
}

// HandleUpdateError reports that the account was migrated but still carries its temporary handle.
type HandleUpdateError struct {
	TemporaryHandle string
	FinalHandle     string
	Cause           error
}

// Error names the handle that remains active.
func (handleUpdateError HandleUpdateError) Error() string {
	return fmt.Sprintf(handleUpdateFailedTemplateConstant, handleUpdateError.TemporaryHandle, handleUpdateError.FinalHandle, handleUpdateError.Cause)
}

// Unwrap exposes the underlying cause.
func (handleUpdateError HandleUpdateError) Unwrap() error {
	return handleUpdateError.Cause
}
