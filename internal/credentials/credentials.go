package credentials

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	newHandleAmbiguousMessageConstant      = "new handle must define either handle or temporaryHandle and finalHandle"
	newHandleDecodingErrorTemplateConstant = "new handle decoding failed: %w"
)

var errNewHandleAmbiguous = errors.New(newHandleAmbiguousMessageConstant)

// NewHandle describes the handle the migrated account should end up with.
//
// The zero value is invalid. A NewHandle either carries a single Handle that is
// used throughout the migration, or a TemporaryHandle used while the account is
// created on the new endpoint together with the FinalHandle applied once the
// migration completes.
type NewHandle struct {
	Handle          string
	TemporaryHandle string
	FinalHandle     string
}

// SingleHandle constructs a NewHandle that keeps the same handle for the whole migration.
func SingleHandle(handle string) NewHandle {
	return NewHandle{Handle: handle}
}

// SplitHandle constructs a NewHandle that migrates under a temporary handle and switches to the final one.
func SplitHandle(temporaryHandle string, finalHandle string) NewHandle {
	return NewHandle{TemporaryHandle: temporaryHandle, FinalHandle: finalHandle}
}

// IsSplit reports whether the temporary/final form is in use.
func (newHandle NewHandle) IsSplit() bool {
	return len(newHandle.Handle) == 0 && (len(newHandle.TemporaryHandle) > 0 || len(newHandle.FinalHandle) > 0)
}

// MigrationHandle returns the handle the new account is created with.
func (newHandle NewHandle) MigrationHandle() string {
	if newHandle.IsSplit() {
		return newHandle.TemporaryHandle
	}
	return newHandle.Handle
}

// DesiredHandle returns the handle the new account should carry after the migration.
func (newHandle NewHandle) DesiredHandle() string {
	if newHandle.IsSplit() {
		return newHandle.FinalHandle
	}
	return newHandle.Handle
}

type singleHandleWire struct {
	Handle string `json:"handle"`
}

type splitHandleWire struct {
	TemporaryHandle string `json:"temporaryHandle"`
	FinalHandle     string `json:"finalHandle"`
}

// MarshalJSON encodes the handle as {"handle"} or {"temporaryHandle","finalHandle"}.
func (newHandle NewHandle) MarshalJSON() ([]byte, error) {
	if newHandle.IsSplit() {
		return json.Marshal(splitHandleWire{TemporaryHandle: newHandle.TemporaryHandle, FinalHandle: newHandle.FinalHandle})
	}
	return json.Marshal(singleHandleWire{Handle: newHandle.Handle})
}

// UnmarshalJSON decodes exactly one of the two handle shapes.
func (newHandle *NewHandle) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if decodeError := json.Unmarshal(data, &fields); decodeError != nil {
		return fmt.Errorf(newHandleDecodingErrorTemplateConstant, decodeError)
	}

	_, hasHandle := fields["handle"]
	_, hasTemporary := fields["temporaryHandle"]
	_, hasFinal := fields["finalHandle"]

	switch {
	case hasHandle && !hasTemporary && !hasFinal && len(fields) == 1:
		var wire singleHandleWire
		if decodeError := strictDecode(data, &wire); decodeError != nil {
			return fmt.Errorf(newHandleDecodingErrorTemplateConstant, decodeError)
		}
		*newHandle = SingleHandle(wire.Handle)
		return nil
	case !hasHandle && hasTemporary && hasFinal && len(fields) == 2:
		var wire splitHandleWire
		if decodeError := strictDecode(data, &wire); decodeError != nil {
			return fmt.Errorf(newHandleDecodingErrorTemplateConstant, decodeError)
		}
		*newHandle = SplitHandle(wire.TemporaryHandle, wire.FinalHandle)
		return nil
	default:
		return errNewHandleAmbiguous
	}
}

// Credentials holds everything required to migrate an account between endpoints.
//
// WARNING: passwords are stored in plaintext and travel with serialized migrations.
type Credentials struct {
	OldPDSURL   string    `json:"oldPdsUrl"`
	NewPDSURL   string    `json:"newPdsUrl"`
	OldHandle   string    `json:"oldHandle"`
	OldPassword string    `json:"oldPassword"`
	NewHandle   NewHandle `json:"newHandle"`
	NewEmail    string    `json:"newEmail"`
	NewPassword string    `json:"newPassword"`
	InviteCode  string    `json:"inviteCode"`
}

// Redacted returns a copy with both passwords masked.
func (credentials Credentials) Redacted() Credentials {
	redacted := credentials
	redacted.OldPassword = redactedPasswordConstant
	redacted.NewPassword = redactedPasswordConstant
	return redacted
}

const redactedPasswordConstant = "********"

func strictDecode(data []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
