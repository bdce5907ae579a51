package migrate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/temirov/pdsmigrate/internal/migration"
)

const (
	unexpectedPauseStateTemplateConstant = "migration stopped in %s instead of waiting for the confirmation token"
	unexpectedFinalStateTemplateConstant = "migration stopped in %s instead of finalizing"
	missingPrivateKeyMessageConstant     = "migration finalized without a private recovery key"
	setConfirmationTokenTemplateConstant = "unable to accept the confirmation token: %w"
	presenterMissingMessageConstant      = "interactive runner requires a presenter"
	prompterMissingMessageConstant       = "interactive runner requires a prompter"
	credentialsSupplierMissingConstant   = "interactive runner requires a credentials supplier"
	tokenSupplierMissingMessageConstant  = "interactive runner requires a confirmation token supplier"
)

var (
	// ErrPresenterMissing indicates the interactive runner has nowhere to write.
	ErrPresenterMissing = errors.New(presenterMissingMessageConstant)
	// ErrPrompterMissing indicates the interactive runner cannot ask questions.
	ErrPrompterMissing = errors.New(prompterMissingMessageConstant)
	// ErrCredentialsSupplierMissing indicates no credentials source was configured.
	ErrCredentialsSupplierMissing = errors.New(credentialsSupplierMissingConstant)
	// ErrConfirmationTokenSupplierMissing indicates no confirmation token source was configured.
	ErrConfirmationTokenSupplierMissing = errors.New(tokenSupplierMissingMessageConstant)
)

// InteractiveRunner walks a person through a whole migration in one session.
type InteractiveRunner struct {
	Dependencies              migration.Dependencies
	Presenter                 *Presenter
	Prompter                  Prompter
	CredentialsSupplier       CredentialsSupplier
	ConfirmationTokenSupplier ConfirmationTokenSupplier
}

// Run collects credentials, runs the migration up to the confirmation token
// pause, asks for the token, and finishes the migration. Declining the
// credentials summary returns nil without contacting either endpoint.
func (runner InteractiveRunner) Run(executionContext context.Context) error {
	if validationError := runner.validate(); validationError != nil {
		return validationError
	}

	runner.Presenter.Introduction()

	collected, supplyError := runner.CredentialsSupplier(executionContext)
	if supplyError != nil {
		return supplyError
	}
	if collected == nil {
		runner.Presenter.Cancelled()
		return nil
	}

	accountMigration, creationError := migration.New(*collected, runner.Dependencies)
	if creationError != nil {
		return creationError
	}

	if migrationError := runner.migrate(executionContext, accountMigration); migrationError != nil {
		return multierr.Append(migrationError, runner.Presenter.Failure(runner.Prompter, accountMigration, migrationError))
	}

	return runner.Presenter.Success(runner.Prompter, accountMigration.NewPrivateKey())
}

func (runner InteractiveRunner) migrate(executionContext context.Context, accountMigration *migration.Migration) error {
	observer := func(state migration.State) {
		if accountMigration.Paused() {
			return
		}
		runner.Presenter.Progress(state)
	}

	pausedState, firstRunError := accountMigration.RunWithObserver(executionContext, observer)
	if firstRunError != nil {
		return firstRunError
	}
	if pausedState != migration.StateRequestedPlcOperation {
		return fmt.Errorf(unexpectedPauseStateTemplateConstant, pausedState)
	}

	runner.Presenter.ConfirmationTokenRequested(accountMigration.Credentials().OldPDSURL)
	confirmationToken, tokenError := runner.ConfirmationTokenSupplier(executionContext)
	if tokenError != nil {
		return tokenError
	}
	if setError := accountMigration.SetConfirmationToken(confirmationToken); setError != nil {
		return fmt.Errorf(setConfirmationTokenTemplateConstant, setError)
	}

	finalState, secondRunError := accountMigration.RunWithObserver(executionContext, observer)
	if secondRunError != nil {
		return secondRunError
	}
	if finalState != migration.StateFinalized {
		return fmt.Errorf(unexpectedFinalStateTemplateConstant, finalState)
	}
	if len(accountMigration.NewPrivateKey()) == 0 {
		return errors.New(missingPrivateKeyMessageConstant)
	}
	return nil
}

func (runner InteractiveRunner) validate() error {
	switch {
	case runner.Presenter == nil:
		return ErrPresenterMissing
	case runner.Prompter == nil:
		return ErrPrompterMissing
	case runner.CredentialsSupplier == nil:
		return ErrCredentialsSupplierMissing
	case runner.ConfirmationTokenSupplier == nil:
		return ErrConfirmationTokenSupplierMissing
	}
	return nil
}
