package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/temirov/pdsmigrate/internal/migration"
)

const (
	readSnapshotTemplateConstant           = "unable to read migration arguments: %w"
	invalidSnapshotTemplateConstant        = "invalid migration arguments: %w"
	encodeSnapshotTemplateConstant         = "unable to encode migration snapshot: %w"
	writeSnapshotTemplateConstant          = "unable to write migration snapshot: %w"
	pipeUnexpectedStateTemplateConstant    = "migration stopped in %s, expected %s"
	logMessagePipeResumedConstant          = "Migration resumed from snapshot"
	logMessagePipeStoppedConstant          = "Migration run stopped"
	logFieldResumedStateConstant           = "resumed_state"
	logFieldReachedStateConstant           = "reached_state"
	logFieldExpectedStateConstant          = "expected_state"
	logFieldConfirmationTokenKnownConstant = "confirmation_token_known"
)

// PipeRunner resumes a migration from a JSON snapshot read from Input and
// writes the updated snapshot to Output.
type PipeRunner struct {
	Dependencies migration.Dependencies
	Input        io.Reader
	Output       io.Writer
}

// Run advances the snapshot as far as it can go without a person.
//
// Without a confirmation token the run stops at RequestedPlcOperation; with
// one it finalizes. Once the snapshot parses, the updated snapshot is written
// even when the run fails, so the caller can retry from the state reached.
func (runner PipeRunner) Run(executionContext context.Context) error {
	payload, readError := io.ReadAll(runner.Input)
	if readError != nil {
		return fmt.Errorf(readSnapshotTemplateConstant, readError)
	}

	accountMigration, restoreError := migration.Deserialize(executionContext, payload, runner.Dependencies)
	if restoreError != nil {
		return fmt.Errorf(invalidSnapshotTemplateConstant, restoreError)
	}

	logger := runner.logger()
	hasConfirmationToken := len(accountMigration.ConfirmationToken()) > 0
	expectedState := migration.StateRequestedPlcOperation
	if hasConfirmationToken {
		expectedState = migration.StateFinalized
	}
	logger.Info(
		logMessagePipeResumedConstant,
		zap.Stringer(logFieldResumedStateConstant, accountMigration.State()),
		zap.Bool(logFieldConfirmationTokenKnownConstant, hasConfirmationToken),
	)

	reachedState, runError := accountMigration.Run(executionContext)
	if runError == nil && reachedState != expectedState {
		runError = fmt.Errorf(pipeUnexpectedStateTemplateConstant, reachedState, expectedState)
	}
	logger.Info(
		logMessagePipeStoppedConstant,
		zap.Stringer(logFieldReachedStateConstant, reachedState),
		zap.Stringer(logFieldExpectedStateConstant, expectedState),
		zap.Error(runError),
	)

	return multierr.Append(runError, runner.writeSnapshot(accountMigration.Serialize()))
}

func (runner PipeRunner) writeSnapshot(snapshot migration.SerializedMigration) error {
	encoded, encodeError := json.Marshal(snapshot)
	if encodeError != nil {
		return fmt.Errorf(encodeSnapshotTemplateConstant, encodeError)
	}
	encoded = append(encoded, newlineConstant...)
	if _, writeError := runner.Output.Write(encoded); writeError != nil {
		return fmt.Errorf(writeSnapshotTemplateConstant, writeError)
	}
	return nil
}

func (runner PipeRunner) logger() *zap.Logger {
	if runner.Dependencies.Logger == nil {
		return zap.NewNop()
	}
	return runner.Dependencies.Logger
}
