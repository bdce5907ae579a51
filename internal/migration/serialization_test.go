package migration_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/pdsmigrate/internal/credentials"
	"github.com/temirov/pdsmigrate/internal/migration"
)

func marshalSnapshot(testInstance *testing.T, serialized migration.SerializedMigration) []byte {
	testInstance.Helper()
	payload, encodeError := json.Marshal(serialized)
	require.NoError(testInstance, encodeError)
	return payload
}

func mutateSnapshot(testInstance *testing.T, serialized migration.SerializedMigration, mutate func(fields map[string]any)) []byte {
	testInstance.Helper()
	var fields map[string]any
	require.NoError(testInstance, json.Unmarshal(marshalSnapshot(testInstance, serialized), &fields))
	mutate(fields)
	payload, encodeError := json.Marshal(fields)
	require.NoError(testInstance, encodeError)
	return payload
}

func TestSerializeRoundTripAtPause(testInstance *testing.T) {
	operations := newStubOperations()
	accountMigration := newTestMigration(testInstance, operations, nil)

	pausedState, runError := accountMigration.Run(context.Background())
	require.NoError(testInstance, runError)
	require.Equal(testInstance, migration.StateRequestedPlcOperation, pausedState)

	serialized := accountMigration.Serialize()
	payload := marshalSnapshot(testInstance, serialized)

	var fields map[string]json.RawMessage
	require.NoError(testInstance, json.Unmarshal(payload, &fields))
	require.JSONEq(testInstance, `"RequestedPlcOperation"`, string(fields["state"]))
	require.NotContains(testInstance, fields, "newPrivateKey")
	require.NotContains(testInstance, fields, "accountStatuses")
	require.NotContains(testInstance, fields, "confirmationToken")

	resumedOperations := newStubOperations()
	resumedMigration, resumeError := migration.Deserialize(context.Background(), payload, migration.Dependencies{Operations: resumedOperations})
	require.NoError(testInstance, resumeError)
	require.Equal(testInstance, migration.StateRequestedPlcOperation, resumedMigration.State())
	require.True(testInstance, resumedMigration.Paused())
	require.Equal(testInstance, serialized, resumedMigration.Serialize())
	require.Equal(testInstance, []string{testOperationAuthenticate}, resumedOperations.calls)
	require.Equal(testInstance, []string{testSingleHandleConstant}, resumedOperations.newSession.logins)

	require.NoError(testInstance, resumedMigration.SetConfirmationToken(testConfirmationTokenConstant))
	finalState, finalRunError := resumedMigration.Run(context.Background())
	require.NoError(testInstance, finalRunError)
	require.Equal(testInstance, migration.StateFinalized, finalState)
	require.Equal(testInstance, testConfirmationTokenConstant, resumedOperations.receivedToken)
}

func snapshotForState(state migration.State, migrationCredentials credentials.Credentials, statuses *migration.AccountStatuses) migration.SerializedMigration {
	serialized := migration.SerializedMigration{State: state, Credentials: migrationCredentials}
	if state >= migration.StateRequestedPlcOperation {
		serialized.ConfirmationToken = testConfirmationTokenConstant
	}
	if state >= migration.StateMigratedIdentity {
		serialized.NewPrivateKey = testPrivateKeyConstant
	}
	if state >= migration.StateCheckedAccountStatus {
		serialized.AccountStatuses = statuses
	}
	return serialized
}

func TestRestoreSessionsPerState(testInstance *testing.T) {
	statuses := &migration.AccountStatuses{
		Old: migration.AccountStatus{Activated: false, ValidDID: true},
		New: migration.AccountStatus{Activated: true, ValidDID: true},
	}

	handleForms := []struct {
		name                string
		credentials         credentials.Credentials
		handleBeforeFinal   string
		handleAfterFinalize string
	}{
		{
			name:                "single_handle",
			credentials:         testCredentials(),
			handleBeforeFinal:   testSingleHandleConstant,
			handleAfterFinalize: testSingleHandleConstant,
		},
		{
			name:                "split_handle",
			credentials:         splitHandleCredentials(),
			handleBeforeFinal:   testTemporaryHandleConstant,
			handleAfterFinalize: testFinalHandleConstant,
		},
	}

	for _, handleForm := range handleForms {
		for _, state := range migration.States() {
			testInstance.Run(handleForm.name+"_"+state.String(), func(testInstance *testing.T) {
				serialized := snapshotForState(state, handleForm.credentials, statuses)

				var expectedCalls []string
				if state > migration.StateReady {
					expectedCalls = append(expectedCalls, testOperationAuthenticate)
				}
				if state >= migration.StateCheckedAccountStatus {
					expectedCalls = append(expectedCalls, testOperationCheckStatus)
				}

				var expectedNewLogins []string
				switch {
				case state == migration.StateFinalized:
					expectedNewLogins = []string{handleForm.handleAfterFinalize}
				case state >= migration.StateCreatedNewAccount:
					expectedNewLogins = []string{handleForm.handleBeforeFinal}
				}

				operations := newStubOperations()
				restoredMigration, restoreError := migration.Deserialize(context.Background(), marshalSnapshot(testInstance, serialized), migration.Dependencies{Operations: operations})
				require.NoError(testInstance, restoreError)
				require.Equal(testInstance, state, restoredMigration.State())
				require.Equal(testInstance, handleForm.credentials, restoredMigration.Credentials())
				require.Equal(testInstance, expectedCalls, operations.calls)
				require.Equal(testInstance, expectedNewLogins, operations.newSession.logins)

				expectedSnapshot := serialized
				if serialized.AccountStatuses != nil {
					refreshedStatuses := operations.statuses
					expectedSnapshot.AccountStatuses = &refreshedStatuses
				}
				require.Equal(testInstance, expectedSnapshot, restoredMigration.Serialize())
			})
		}
	}
}

func TestEarlyTeardownSnapshotCannotBeResumed(testInstance *testing.T) {
	operations := newStubOperations()
	accountMigration := newTestMigration(testInstance, operations, nil)

	pausedState, runError := accountMigration.Run(context.Background())
	require.NoError(testInstance, runError)
	require.Equal(testInstance, migration.StateRequestedPlcOperation, pausedState)

	accountMigration.Teardown(context.Background())
	serialized := accountMigration.Serialize()
	require.Equal(testInstance, migration.StateFinalized, serialized.State)

	_, resumeError := migration.Deserialize(context.Background(), marshalSnapshot(testInstance, serialized), migration.Dependencies{Operations: newStubOperations()})
	require.ErrorIs(testInstance, resumeError, migration.ErrInvalidSnapshot)
}

func TestRestoreReleasesSessionsWhenLoginFails(testInstance *testing.T) {
	operations := newStubOperations()
	operations.newSession.loginError = errTestOperation
	payload := marshalSnapshot(testInstance, migration.SerializedMigration{State: migration.StateCreatedNewAccount, Credentials: testCredentials()})

	_, restoreError := migration.Deserialize(context.Background(), payload, migration.Dependencies{Operations: operations})
	require.ErrorIs(testInstance, restoreError, errTestOperation)
	require.Equal(testInstance, 1, operations.oldSession.logoutCount())
	require.Equal(testInstance, 1, operations.newSession.logoutCount())
}

func TestRestoreReleasesSessionsWhenStatusRefreshFails(testInstance *testing.T) {
	operations := newStubOperations()
	operations.errorsByCall[testOperationCheckStatus] = errTestOperation
	payload := marshalSnapshot(testInstance, migration.SerializedMigration{
		State:             migration.StateFinalized,
		Credentials:       testCredentials(),
		ConfirmationToken: testConfirmationTokenConstant,
		NewPrivateKey:     testPrivateKeyConstant,
		AccountStatuses:   &migration.AccountStatuses{},
	})

	_, restoreError := migration.Deserialize(context.Background(), payload, migration.Dependencies{Operations: operations})
	require.ErrorIs(testInstance, restoreError, errTestOperation)
	require.Equal(testInstance, 1, operations.oldSession.logoutCount())
}

func TestDeserializeRejectsInvalidSnapshots(testInstance *testing.T) {
	pausedSnapshot := migration.SerializedMigration{State: migration.StateRequestedPlcOperation, Credentials: testCredentials()}
	identitySnapshot := migration.SerializedMigration{
		State:             migration.StateMigratedIdentity,
		Credentials:       testCredentials(),
		ConfirmationToken: testConfirmationTokenConstant,
		NewPrivateKey:     testPrivateKeyConstant,
	}

	testCases := []struct {
		name    string
		payload []byte
	}{
		{name: "not_json", payload: []byte("state=Ready")},
		{name: "array", payload: []byte(`[]`)},
		{name: "null", payload: []byte(`null`)},
		{name: "missing_state", payload: mutateSnapshot(testInstance, pausedSnapshot, func(fields map[string]any) { delete(fields, "state") })},
		{name: "missing_credentials", payload: mutateSnapshot(testInstance, pausedSnapshot, func(fields map[string]any) { delete(fields, "credentials") })},
		{name: "unknown_state", payload: mutateSnapshot(testInstance, pausedSnapshot, func(fields map[string]any) { fields["state"] = "Paused" })},
		{name: "unknown_field", payload: mutateSnapshot(testInstance, pausedSnapshot, func(fields map[string]any) { fields["sessions"] = "cached" })},
		{name: "private_key_before_identity", payload: mutateSnapshot(testInstance, pausedSnapshot, func(fields map[string]any) { fields["newPrivateKey"] = testPrivateKeyConstant })},
		{name: "statuses_before_check", payload: mutateSnapshot(testInstance, identitySnapshot, func(fields map[string]any) { fields["accountStatuses"] = map[string]any{} })},
		{name: "identity_without_key", payload: mutateSnapshot(testInstance, identitySnapshot, func(fields map[string]any) { delete(fields, "newPrivateKey") })},
		{name: "identity_without_token", payload: mutateSnapshot(testInstance, identitySnapshot, func(fields map[string]any) { delete(fields, "confirmationToken") })},
		{name: "checked_without_statuses", payload: mutateSnapshot(testInstance, identitySnapshot, func(fields map[string]any) { fields["state"] = "CheckedAccountStatus" })},
		{name: "invalid_credentials", payload: mutateSnapshot(testInstance, pausedSnapshot, func(fields map[string]any) {
			fields["credentials"].(map[string]any)["newPdsUrl"] = "ftp://b.com"
		})},
		{name: "ambiguous_handle", payload: mutateSnapshot(testInstance, pausedSnapshot, func(fields map[string]any) {
			fields["credentials"].(map[string]any)["newHandle"] = map[string]any{"handle": "alice.b.com", "finalHandle": "alice.example.com"}
		})},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			operations := newStubOperations()
			_, restoreError := migration.Deserialize(context.Background(), testCase.payload, migration.Dependencies{Operations: operations})
			require.ErrorIs(testInstance, restoreError, migration.ErrInvalidSnapshot)
			require.Empty(testInstance, operations.calls)
		})
	}
}

func TestParseSerializedMigrationAcceptsSplitHandle(testInstance *testing.T) {
	payload := marshalSnapshot(testInstance, migration.SerializedMigration{State: migration.StateReady, Credentials: splitHandleCredentials()})

	serialized, parseError := migration.ParseSerializedMigration(payload)
	require.NoError(testInstance, parseError)
	require.Equal(testInstance, credentials.SplitHandle(testTemporaryHandleConstant, testFinalHandleConstant), serialized.Credentials.NewHandle)
}
