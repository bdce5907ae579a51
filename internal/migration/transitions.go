package migration

import (
	"context"
	"fmt"
)

const (
	newAccountActivatedMessageConstant  = "new account is already activated"
	newAccountInvalidDIDMessageConstant = "new account has an invalid DID"
	unexpectedStateTemplateConstant     = "no transition defined for state %s"
)

type transitionOutcome int

const (
	outcomeAdvanced transitionOutcome = iota
	outcomeWaiting
)

// dataDelta carries the values a transition adds to Data.
type dataDelta struct {
	confirmationToken string
	newPrivateKey     string
	accountStatuses   *AccountStatuses
}

type transitionResult struct {
	outcome   transitionOutcome
	nextState State
	delta     dataDelta
	sessions  *SessionPair
}

type transitionFunc func(executionContext context.Context, operations Operations, data Data, sessions *SessionPair) (transitionResult, error)

// transitions is indexed by the state being left.
var transitions = [...]transitionFunc{
	StateReady:                 transitionFromReady,
	StateInitialized:           transitionFromInitialized,
	StateCreatedNewAccount:     transitionFromCreatedNewAccount,
	StateMigratedData:          transitionFromMigratedData,
	StateRequestedPlcOperation: transitionFromRequestedPlcOperation,
	StateMigratedIdentity:      transitionFromMigratedIdentity,
	StateCheckedAccountStatus:  transitionFromCheckedAccountStatus,
	StateFinalized:             transitionFromFinalized,
}

func lookupTransition(state State) (transitionFunc, error) {
	if !state.IsValid() || int(state) >= len(transitions) || transitions[state] == nil {
		return nil, fmt.Errorf(unexpectedStateTemplateConstant, state)
	}
	return transitions[state], nil
}

func advanceTo(nextState State) transitionResult {
	return transitionResult{outcome: outcomeAdvanced, nextState: nextState}
}

func transitionFromReady(executionContext context.Context, operations Operations, data Data, _ *SessionPair) (transitionResult, error) {
	sessions, authenticateError := operations.Authenticate(executionContext, data.Credentials)
	if authenticateError != nil {
		return transitionResult{}, authenticateError
	}
	result := advanceTo(StateInitialized)
	result.sessions = &sessions
	return result, nil
}

func transitionFromInitialized(executionContext context.Context, operations Operations, data Data, sessions *SessionPair) (transitionResult, error) {
	if sessions == nil {
		return transitionResult{}, ErrSessionsMissing
	}
	if createError := operations.CreateAccount(executionContext, *sessions, data.Credentials); createError != nil {
		return transitionResult{}, createError
	}
	return advanceTo(StateCreatedNewAccount), nil
}

func transitionFromCreatedNewAccount(executionContext context.Context, operations Operations, _ Data, sessions *SessionPair) (transitionResult, error) {
	if sessions == nil {
		return transitionResult{}, ErrSessionsMissing
	}
	if migrateError := operations.MigrateData(executionContext, *sessions); migrateError != nil {
		return transitionResult{}, migrateError
	}
	return advanceTo(StateMigratedData), nil
}

func transitionFromMigratedData(executionContext context.Context, operations Operations, _ Data, sessions *SessionPair) (transitionResult, error) {
	if sessions == nil {
		return transitionResult{}, ErrSessionsMissing
	}
	if requestError := operations.RequestIdentityChange(executionContext, *sessions); requestError != nil {
		return transitionResult{}, requestError
	}
	return advanceTo(StateRequestedPlcOperation), nil
}

func transitionFromRequestedPlcOperation(executionContext context.Context, operations Operations, data Data, sessions *SessionPair) (transitionResult, error) {
	if len(data.ConfirmationToken) == 0 {
		return transitionResult{outcome: outcomeWaiting, nextState: StateRequestedPlcOperation}, nil
	}
	if sessions == nil {
		return transitionResult{}, ErrSessionsMissing
	}
	privateKey, identityError := operations.MigrateIdentity(executionContext, *sessions, data.ConfirmationToken)
	if identityError != nil {
		return transitionResult{}, identityError
	}
	result := advanceTo(StateMigratedIdentity)
	result.delta = dataDelta{confirmationToken: data.ConfirmationToken, newPrivateKey: privateKey}
	return result, nil
}

func transitionFromMigratedIdentity(executionContext context.Context, operations Operations, _ Data, sessions *SessionPair) (transitionResult, error) {
	if sessions == nil {
		return transitionResult{}, ErrSessionsMissing
	}
	statuses, statusError := operations.CheckStatus(executionContext, *sessions)
	if statusError != nil {
		return transitionResult{}, statusError
	}
	if statuses.New.Activated {
		return transitionResult{}, PostconditionError{Message: newAccountActivatedMessageConstant}
	}
	if !statuses.New.ValidDID {
		return transitionResult{}, PostconditionError{Message: newAccountInvalidDIDMessageConstant}
	}
	result := advanceTo(StateCheckedAccountStatus)
	result.delta = dataDelta{accountStatuses: &statuses}
	return result, nil
}

func transitionFromCheckedAccountStatus(executionContext context.Context, operations Operations, data Data, sessions *SessionPair) (transitionResult, error) {
	if sessions == nil {
		return transitionResult{}, ErrSessionsMissing
	}
	if finalizeError := operations.Finalize(executionContext, *sessions, data.Credentials); finalizeError != nil {
		return transitionResult{}, finalizeError
	}
	return advanceTo(StateFinalized), nil
}

func transitionFromFinalized(context.Context, Operations, Data, *SessionPair) (transitionResult, error) {
	return transitionResult{}, ErrTransitionFromFinalized
}
