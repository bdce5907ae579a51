package migrate

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/temirov/pdsmigrate/internal/credentials"
	"github.com/temirov/pdsmigrate/internal/migration"
)

const (
	welcomeMessageConstant                  = "PDS account migration"
	affiliationWarningConstant              = "This tool is community maintained and has no affiliation with any PDS operator. Use it at your own risk."
	privateKeyNoticeConstant                = "At the end of the migration this tool prints the private recovery key of the migrated identity. You must save it in a secure location or you could lose access to your account."
	credentialsTitleConstant                = "Credentials"
	tokenRequestedTemplateConstant          = "An identity change was requested from the old PDS (%s)."
	tokenEmailNoticeConstant                = "A confirmation token should have been sent to the old account's email address."
	successMessageConstant                  = "Migration completed successfully!"
	saveKeyWarningConstant                  = "You must save the private key in a secure location, or you could lose access to your account."
	farewellMessageConstant                 = "Thank you for using pdsmigrate."
	cancelledMessageConstant                = "Migration cancelled; nothing was changed."
	failureTemplateConstant                 = "Migration failed during state %q"
	partialAccountWarningConstant           = "The migration has created a new account, but it may not be ready to use yet."
	temporaryHandleWarningTemplateConstant  = "The account is active under %q. Update the handle to %q once the issue is resolved."
	failureSaveKeyWarningConstant           = "You should still save the private key in a secure location."
	privateKeyIntroductionConstant          = "The new account's private key is:"
	viewPrivateKeyPromptConstant            = "Press Enter to view the new account's private key..."
	continuePromptConstant                  = "Press Enter to continue..."
	privateKeyDelimiterCharacterConstant    = "="
	privateKeyDelimiterWidthConstant        = 64
	credentialsSummaryErrorTemplateConstant = "unable to render credentials: %w"
	progressMessageSuffixConstant           = "..."
	progressInitializingConstant            = "Initializing migration"
	progressCreatingAccountConstant         = "Creating new account"
	progressMigratingDataConstant           = "Migrating data (this may take a while)"
	progressRequestingIdentityConstant      = "Requesting identity change"
	progressMigratingIdentityConstant       = "Migrating identity"
	progressCheckingStatusConstant          = "Checking account status"
	progressFinalizingConstant              = "Finalizing migration"
)

var progressMessages = map[migration.State]string{
	migration.StateReady:                 progressInitializingConstant,
	migration.StateInitialized:           progressCreatingAccountConstant,
	migration.StateCreatedNewAccount:     progressMigratingDataConstant,
	migration.StateMigratedData:          progressRequestingIdentityConstant,
	migration.StateRequestedPlcOperation: progressMigratingIdentityConstant,
	migration.StateMigratedIdentity:      progressCheckingStatusConstant,
	migration.StateCheckedAccountStatus:  progressFinalizingConstant,
}

type credentialsSummary struct {
	OldPDSURL       string `yaml:"Current PDS URL"`
	OldHandle       string `yaml:"Current handle"`
	OldPassword     string `yaml:"Current password"`
	InviteCode      string `yaml:"Invite code"`
	NewPDSURL       string `yaml:"New PDS URL"`
	NewHandle       string `yaml:"New handle,omitempty"`
	TemporaryHandle string `yaml:"New handle (temporary),omitempty"`
	FinalHandle     string `yaml:"New handle (final),omitempty"`
	NewEmail        string `yaml:"New email"`
	NewPassword     string `yaml:"New password"`
}

// Presenter renders interactive migration output.
type Presenter struct {
	writer    io.Writer
	heading   *color.Color
	warning   *color.Color
	failure   *color.Color
	emphasis  *color.Color
	highlight *color.Color
}

// NewPresenter writes to writer, with ANSI colors only when colorEnabled is set.
func NewPresenter(writer io.Writer, colorEnabled bool) *Presenter {
	presenter := &Presenter{
		writer:    writer,
		heading:   color.New(color.FgCyan, color.Bold),
		warning:   color.New(color.FgYellow),
		failure:   color.New(color.FgRed, color.Bold),
		emphasis:  color.New(color.Bold),
		highlight: color.New(color.FgGreen),
	}
	for _, palette := range []*color.Color{presenter.heading, presenter.warning, presenter.failure, presenter.emphasis, presenter.highlight} {
		if colorEnabled {
			palette.EnableColor()
		} else {
			palette.DisableColor()
		}
	}
	return presenter
}

// Introduction greets the user and explains the private key handover.
func (presenter *Presenter) Introduction() {
	presenter.heading.Fprintln(presenter.writer, welcomeMessageConstant)
	presenter.blankLine()
	presenter.warning.Fprintln(presenter.writer, affiliationWarningConstant)
	presenter.warning.Fprintln(presenter.writer, privateKeyNoticeConstant)
	presenter.blankLine()
}

// CredentialsSummary prints the credentials with both passwords masked.
func (presenter *Presenter) CredentialsSummary(migrationCredentials credentials.Credentials) error {
	redacted := migrationCredentials.Redacted()
	summary := credentialsSummary{
		OldPDSURL:   redacted.OldPDSURL,
		OldHandle:   redacted.OldHandle,
		OldPassword: redacted.OldPassword,
		InviteCode:  redacted.InviteCode,
		NewPDSURL:   redacted.NewPDSURL,
		NewEmail:    redacted.NewEmail,
		NewPassword: redacted.NewPassword,
	}
	if redacted.NewHandle.IsSplit() {
		summary.TemporaryHandle = redacted.NewHandle.MigrationHandle()
		summary.FinalHandle = redacted.NewHandle.DesiredHandle()
	} else {
		summary.NewHandle = redacted.NewHandle.DesiredHandle()
	}

	rendered, marshalError := yaml.Marshal(summary)
	if marshalError != nil {
		return fmt.Errorf(credentialsSummaryErrorTemplateConstant, marshalError)
	}

	presenter.blankLine()
	presenter.emphasis.Fprintln(presenter.writer, credentialsTitleConstant)
	presenter.highlight.Fprint(presenter.writer, string(rendered))
	presenter.blankLine()
	return nil
}

// Progress announces the work that starts from state. States without
// outgoing work print nothing.
func (presenter *Presenter) Progress(state migration.State) {
	message, known := progressMessages[state]
	if !known {
		return
	}
	fmt.Fprintln(presenter.writer, message+progressMessageSuffixConstant)
}

// ConfirmationTokenRequested explains where the confirmation token was sent.
func (presenter *Presenter) ConfirmationTokenRequested(oldPDSURL string) {
	presenter.blankLine()
	fmt.Fprintf(presenter.writer, tokenRequestedTemplateConstant+newlineConstant, oldPDSURL)
	fmt.Fprintln(presenter.writer, tokenEmailNoticeConstant)
	presenter.blankLine()
}

// Cancelled reports that the user declined to start the migration.
func (presenter *Presenter) Cancelled() {
	fmt.Fprintln(presenter.writer, cancelledMessageConstant)
}

// Success reports completion and reveals the private key once the user is ready.
func (presenter *Presenter) Success(prompter Prompter, privateKey string) error {
	presenter.blankLine()
	presenter.heading.Fprintln(presenter.writer, successMessageConstant)
	presenter.blankLine()
	presenter.warning.Fprintln(presenter.writer, saveKeyWarningConstant)
	presenter.blankLine()
	if revealError := presenter.revealPrivateKey(prompter, privateKey); revealError != nil {
		return revealError
	}
	presenter.blankLine()
	presenter.heading.Fprintln(presenter.writer, farewellMessageConstant)
	return nil
}

// Failure reports the state a migration stopped in, warns about partially
// created accounts, and reveals the private key when one was derived.
func (presenter *Presenter) Failure(prompter Prompter, failedMigration *migration.Migration, cause error) error {
	state := failedMigration.State()
	presenter.blankLine()
	presenter.failure.Fprintf(presenter.writer, failureTemplateConstant+newlineConstant, state)
	if state != migration.StateReady {
		presenter.blankLine()
		presenter.failure.Fprintln(presenter.writer, partialAccountWarningConstant)
	}
	var handleUpdateError migration.HandleUpdateError
	if errors.As(cause, &handleUpdateError) {
		presenter.failure.Fprintf(presenter.writer, temporaryHandleWarningTemplateConstant+newlineConstant, handleUpdateError.TemporaryHandle, handleUpdateError.FinalHandle)
	}

	privateKey := failedMigration.NewPrivateKey()
	if len(privateKey) == 0 {
		return nil
	}
	presenter.blankLine()
	presenter.failure.Fprintln(presenter.writer, failureSaveKeyWarningConstant)
	presenter.blankLine()
	if revealError := presenter.revealPrivateKey(prompter, privateKey); revealError != nil {
		return revealError
	}
	return prompter.WaitForEnter(continuePromptConstant)
}

func (presenter *Presenter) revealPrivateKey(prompter Prompter, privateKey string) error {
	if waitError := prompter.WaitForEnter(viewPrivateKeyPromptConstant); waitError != nil {
		return waitError
	}
	delimiter := strings.Repeat(privateKeyDelimiterCharacterConstant, privateKeyDelimiterWidthConstant)
	presenter.blankLine()
	fmt.Fprintln(presenter.writer, privateKeyIntroductionConstant)
	fmt.Fprintln(presenter.writer, delimiter)
	presenter.blankLine()
	presenter.emphasis.Fprintln(presenter.writer, privateKey)
	presenter.blankLine()
	fmt.Fprintln(presenter.writer, delimiter)
	return nil
}

func (presenter *Presenter) blankLine() {
	fmt.Fprintln(presenter.writer)
}
