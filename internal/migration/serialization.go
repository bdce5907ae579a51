package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/temirov/pdsmigrate/internal/credentials"
)

const (
	invalidSnapshotMessageConstant         = "invalid migration data"
	snapshotDetailTemplateConstant         = "%w: %s"
	snapshotCauseTemplateConstant          = "%w: %s: %w"
	snapshotNotObjectMessageConstant       = "must be a JSON object"
	snapshotFieldMissingTemplateConstant   = "missing %q"
	snapshotParseMessageConstant           = "failed to parse"
	snapshotFieldRequiredTemplateConstant  = "state %s requires %q"
	snapshotFieldForbiddenTemplateConstant = "state %s must not carry %q"
	snapshotCredentialsMessageConstant     = "invalid credentials"
	snapshotAuthenticationTemplateConstant = "unable to restore sessions for state %s: %w"
	snapshotNewLoginTemplateConstant       = "unable to log into the new account for state %s: %w"
	snapshotStatusRefreshTemplateConstant  = "unable to refresh account statuses for state %s: %w"
	stateFieldNameConstant                 = "state"
	credentialsFieldNameConstant           = "credentials"
	confirmationTokenFieldNameConstant     = "confirmationToken"
	newPrivateKeyFieldNameConstant         = "newPrivateKey"
	accountStatusesFieldNameConstant       = "accountStatuses"
)

// ErrInvalidSnapshot marks every rejection of a serialized migration.
var ErrInvalidSnapshot = errors.New(invalidSnapshotMessageConstant)

// SerializedMigration is the external projection of a Migration.
//
// WARNING: it carries passwords and, once identity migration ran, the
// recovery private key in plaintext.
type SerializedMigration struct {
	State             State                   `json:"state"`
	Credentials       credentials.Credentials `json:"credentials"`
	ConfirmationToken string                  `json:"confirmationToken,omitempty"`
	NewPrivateKey     string                  `json:"newPrivateKey,omitempty"`
	AccountStatuses   *AccountStatuses        `json:"accountStatuses,omitempty"`
}

type fieldRule int

const (
	fieldOptional fieldRule = iota
	fieldRequired
	fieldForbidden
)

type snapshotFieldRules struct {
	confirmationToken fieldRule
	newPrivateKey     fieldRule
	accountStatuses   fieldRule
}

func fieldRulesFor(state State) snapshotFieldRules {
	switch {
	case state.AtLeast(StateCheckedAccountStatus):
		return snapshotFieldRules{confirmationToken: fieldRequired, newPrivateKey: fieldRequired, accountStatuses: fieldRequired}
	case state == StateMigratedIdentity:
		return snapshotFieldRules{confirmationToken: fieldRequired, newPrivateKey: fieldRequired, accountStatuses: fieldForbidden}
	default:
		return snapshotFieldRules{confirmationToken: fieldOptional, newPrivateKey: fieldForbidden, accountStatuses: fieldForbidden}
	}
}

// Serialize projects the current state and accumulated data.
func (migration *Migration) Serialize() SerializedMigration {
	return SerializedMigration{
		State:             migration.state,
		Credentials:       migration.data.Credentials,
		ConfirmationToken: migration.data.ConfirmationToken,
		NewPrivateKey:     migration.data.NewPrivateKey,
		AccountStatuses:   migration.AccountStatuses(),
	}
}

// ParseSerializedMigration decodes and validates a serialized migration.
func ParseSerializedMigration(payload []byte) (SerializedMigration, error) {
	var fields map[string]json.RawMessage
	if decodeError := json.Unmarshal(payload, &fields); decodeError != nil || fields == nil {
		return SerializedMigration{}, fmt.Errorf(snapshotDetailTemplateConstant, ErrInvalidSnapshot, snapshotNotObjectMessageConstant)
	}
	for _, requiredField := range []string{stateFieldNameConstant, credentialsFieldNameConstant} {
		if _, present := fields[requiredField]; !present {
			return SerializedMigration{}, fmt.Errorf(snapshotDetailTemplateConstant, ErrInvalidSnapshot, fmt.Sprintf(snapshotFieldMissingTemplateConstant, requiredField))
		}
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	var serialized SerializedMigration
	if decodeError := decoder.Decode(&serialized); decodeError != nil {
		return SerializedMigration{}, fmt.Errorf(snapshotCauseTemplateConstant, ErrInvalidSnapshot, snapshotParseMessageConstant, decodeError)
	}

	if validationError := serialized.Validate(); validationError != nil {
		return SerializedMigration{}, validationError
	}
	return serialized, nil
}

// Validate checks that the snapshot carries exactly the fields its state requires.
func (serialized SerializedMigration) Validate() error {
	if !serialized.State.IsValid() {
		return fmt.Errorf(snapshotDetailTemplateConstant, ErrInvalidSnapshot, fmt.Sprintf(unknownStateTemplateConstant, serialized.State))
	}

	rules := fieldRulesFor(serialized.State)
	checks := []struct {
		name    string
		present bool
		rule    fieldRule
	}{
		{name: confirmationTokenFieldNameConstant, present: len(serialized.ConfirmationToken) > 0, rule: rules.confirmationToken},
		{name: newPrivateKeyFieldNameConstant, present: len(serialized.NewPrivateKey) > 0, rule: rules.newPrivateKey},
		{name: accountStatusesFieldNameConstant, present: serialized.AccountStatuses != nil, rule: rules.accountStatuses},
	}
	for _, check := range checks {
		switch {
		case check.rule == fieldRequired && !check.present:
			return fmt.Errorf(snapshotDetailTemplateConstant, ErrInvalidSnapshot, fmt.Sprintf(snapshotFieldRequiredTemplateConstant, serialized.State, check.name))
		case check.rule == fieldForbidden && check.present:
			return fmt.Errorf(snapshotDetailTemplateConstant, ErrInvalidSnapshot, fmt.Sprintf(snapshotFieldForbiddenTemplateConstant, serialized.State, check.name))
		}
	}

	if credentialsError := credentials.Validate(serialized.Credentials); credentialsError != nil {
		return fmt.Errorf(snapshotCauseTemplateConstant, ErrInvalidSnapshot, snapshotCredentialsMessageConstant, credentialsError)
	}
	return nil
}

// Deserialize parses payload and restores the migration it describes.
func Deserialize(executionContext context.Context, payload []byte, dependencies Dependencies) (*Migration, error) {
	serialized, parseError := ParseSerializedMigration(payload)
	if parseError != nil {
		return nil, parseError
	}
	return Restore(executionContext, serialized, dependencies)
}

// Restore rebuilds a migration from a validated snapshot.
//
// Sessions are never persisted: past Ready the old endpoint is authenticated
// again, and from CreatedNewAccount on the new account is logged into as
// well. Snapshots at CheckedAccountStatus or later get fresh account statuses.
func Restore(executionContext context.Context, serialized SerializedMigration, dependencies Dependencies) (*Migration, error) {
	if validationError := serialized.Validate(); validationError != nil {
		return nil, validationError
	}

	data := Data{
		Credentials:       serialized.Credentials,
		ConfirmationToken: serialized.ConfirmationToken,
		NewPrivateKey:     serialized.NewPrivateKey,
	}
	if serialized.AccountStatuses != nil {
		statuses := *serialized.AccountStatuses
		data.AccountStatuses = &statuses
	}

	migration, creationError := newMigration(serialized.State, data, nil, dependencies)
	if creationError != nil {
		return nil, creationError
	}
	if serialized.State == StateReady {
		return migration, nil
	}

	sessions, authenticateError := migration.operations.Authenticate(executionContext, serialized.Credentials)
	if authenticateError != nil {
		return nil, fmt.Errorf(snapshotAuthenticationTemplateConstant, serialized.State, authenticateError)
	}

	if serialized.State.AtLeast(StateCreatedNewAccount) {
		loginError := sessions.New.Login(executionContext, resumeHandle(serialized), serialized.Credentials.NewPassword)
		if loginError != nil {
			migration.releaseSessions(executionContext, sessions)
			return nil, fmt.Errorf(snapshotNewLoginTemplateConstant, serialized.State, loginError)
		}
	}

	if serialized.State.AtLeast(StateCheckedAccountStatus) {
		statuses, statusError := migration.operations.CheckStatus(executionContext, sessions)
		if statusError != nil {
			migration.releaseSessions(executionContext, sessions)
			return nil, fmt.Errorf(snapshotStatusRefreshTemplateConstant, serialized.State, statusError)
		}
		migration.data.AccountStatuses = &statuses
	}

	migration.sessions = &sessions
	return migration, nil
}

// resumeHandle picks the handle the new account answers to at the snapshot's state.
func resumeHandle(serialized SerializedMigration) string {
	newHandle := serialized.Credentials.NewHandle
	if serialized.State == StateFinalized {
		return newHandle.DesiredHandle()
	}
	return newHandle.MigrationHandle()
}
