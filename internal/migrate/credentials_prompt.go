package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/temirov/pdsmigrate/internal/credentials"
)

const (
	oldPDSURLPromptConstant                     = "Enter the current PDS URL"
	oldHandlePromptConstant                     = "Enter the full current handle (e.g. user.bsky.social, user.com)"
	oldPasswordPromptConstant                   = "Enter the password for the current account"
	inviteCodePromptConstant                    = "Enter the invite code for the new account (from the new PDS)"
	newPDSURLPromptConstant                     = "Enter the new PDS URL"
	newHandlePromptTemplateConstant             = "Enter the desired new handle (e.g. user.%s)"
	temporaryHandlePromptConstant               = "You are using a custom handle, which requires a temporary handle on the new PDS during the migration. Enter the desired temporary handle"
	newEmailPromptConstant                      = "Enter the desired email address for the new account"
	newPasswordPromptConstant                   = "Enter the desired password for the new account"
	confirmPasswordPromptConstant               = "Confirm the password for the new account"
	confirmationTokenPromptConstant             = "Enter the confirmation token from the email"
	startMigrationPromptConstant                = "Perform the migration with these credentials?"
	temporaryHandleTemplateConstant             = "%s-temp.%s"
	handleLabelSeparatorConstant                = "."
	invalidURLMessageConstant                   = "Must be a valid URL"
	emptyValueMessageConstant                   = "Must be a non-empty string"
	invalidEmailMessageConstant                 = "Must be a valid email address"
	invalidHandleMessageConstant                = "Must be a valid handle"
	invalidTemporaryHandleMessageConstant       = "Must be a valid handle and a subdomain of the new PDS hostname"
	passwordMismatchMessageConstant             = "Passwords do not match"
	collectedCredentialsInvalidTemplateConstant = "collected credentials are invalid: %w"
	newPDSHostnameTemplateConstant              = "unable to determine the new PDS hostname: %w"
)

// CredentialsSupplier returns validated credentials, or nil when the user
// cancels. Cancellation is not an error.
type CredentialsSupplier func(executionContext context.Context) (*credentials.Credentials, error)

// ConfirmationTokenSupplier returns the out-of-band confirmation token.
type ConfirmationTokenSupplier func(executionContext context.Context) (string, error)

// CredentialsPromptOptions configures PromptCredentials.
type CredentialsPromptOptions struct {
	DefaultOldPDSURL string
	SkipConfirmation bool
}

// PromptCredentials collects migration credentials through prompter and asks
// for confirmation after printing a redacted summary.
func PromptCredentials(prompter Prompter, presenter *Presenter, options CredentialsPromptOptions) CredentialsSupplier {
	return func(executionContext context.Context) (*credentials.Credentials, error) {
		collected, collectError := collectCredentials(prompter, options)
		if collectError != nil {
			return nil, collectError
		}

		if validationError := credentials.Validate(collected); validationError != nil {
			_ = presenter.CredentialsSummary(collected)
			return nil, fmt.Errorf(collectedCredentialsInvalidTemplateConstant, validationError)
		}
		if summaryError := presenter.CredentialsSummary(collected); summaryError != nil {
			return nil, summaryError
		}

		if options.SkipConfirmation {
			return &collected, nil
		}
		confirmed, confirmError := prompter.Confirm(startMigrationPromptConstant)
		if confirmError != nil {
			return nil, confirmError
		}
		if !confirmed {
			return nil, nil
		}
		return &collected, nil
	}
}

// PromptConfirmationToken asks for the token emailed by the old PDS.
func PromptConfirmationToken(prompter Prompter) ConfirmationTokenSupplier {
	return func(executionContext context.Context) (string, error) {
		return prompter.Input(confirmationTokenPromptConstant, "", validateNonEmpty)
	}
}

func collectCredentials(prompter Prompter, options CredentialsPromptOptions) (credentials.Credentials, error) {
	var collected credentials.Credentials

	oldPDSURL, oldURLError := prompter.Input(oldPDSURLPromptConstant, options.DefaultOldPDSURL, validateURL)
	if oldURLError != nil {
		return collected, oldURLError
	}
	collected.OldPDSURL = credentials.NormalizeURL(oldPDSURL)

	oldHandle, oldHandleError := prompter.Input(oldHandlePromptConstant, "", validateHandle)
	if oldHandleError != nil {
		return collected, oldHandleError
	}
	collected.OldHandle = credentials.StripHandlePrefix(oldHandle)

	oldPassword, oldPasswordError := prompter.Password(oldPasswordPromptConstant, validateNonEmpty)
	if oldPasswordError != nil {
		return collected, oldPasswordError
	}
	collected.OldPassword = oldPassword

	inviteCode, inviteCodeError := prompter.Input(inviteCodePromptConstant, "", validateNonEmpty)
	if inviteCodeError != nil {
		return collected, inviteCodeError
	}
	collected.InviteCode = inviteCode

	newPDSURL, newURLError := prompter.Input(newPDSURLPromptConstant, "", validateURL)
	if newURLError != nil {
		return collected, newURLError
	}
	collected.NewPDSURL = credentials.NormalizeURL(newPDSURL)

	newHostname, hostnameError := credentials.Hostname(collected.NewPDSURL)
	if hostnameError != nil {
		return collected, fmt.Errorf(newPDSHostnameTemplateConstant, hostnameError)
	}

	newHandleAnswer, newHandleError := prompter.Input(fmt.Sprintf(newHandlePromptTemplateConstant, newHostname), "", validateHandle)
	if newHandleError != nil {
		return collected, newHandleError
	}
	newHandle := credentials.StripHandlePrefix(newHandleAnswer)
	collected.NewHandle = credentials.SingleHandle(newHandle)

	if credentials.RequiresTemporaryHandle(newHandle, newHostname) {
		temporaryHandle, temporaryHandleError := prompter.Input(
			temporaryHandlePromptConstant,
			defaultTemporaryHandle(newHandle, newHostname),
			validateTemporaryHandle(newHostname),
		)
		if temporaryHandleError != nil {
			return collected, temporaryHandleError
		}
		collected.NewHandle = credentials.SplitHandle(credentials.StripHandlePrefix(temporaryHandle), newHandle)
	}

	newEmail, newEmailError := prompter.Input(newEmailPromptConstant, "", validateEmail)
	if newEmailError != nil {
		return collected, newEmailError
	}
	collected.NewEmail = newEmail

	newPassword, newPasswordError := prompter.Password(newPasswordPromptConstant, validateNonEmpty)
	if newPasswordError != nil {
		return collected, newPasswordError
	}
	if _, confirmationError := prompter.Password(confirmPasswordPromptConstant, validatePasswordMatch(newPassword)); confirmationError != nil {
		return collected, confirmationError
	}
	collected.NewPassword = newPassword

	return collected, nil
}

func defaultTemporaryHandle(handle string, hostname string) string {
	leafLabel, _, _ := strings.Cut(handle, handleLabelSeparatorConstant)
	return fmt.Sprintf(temporaryHandleTemplateConstant, leafLabel, hostname)
}

func validateNonEmpty(value string) string {
	if len(value) == 0 {
		return emptyValueMessageConstant
	}
	return ""
}

func validateURL(value string) string {
	if !credentials.IsHTTPURL(credentials.NormalizeURL(value)) {
		return invalidURLMessageConstant
	}
	return ""
}

func validateHandle(value string) string {
	if !credentials.IsHandle(credentials.StripHandlePrefix(value)) {
		return invalidHandleMessageConstant
	}
	return ""
}

func validateEmail(value string) string {
	if !credentials.IsEmail(value) {
		return invalidEmailMessageConstant
	}
	return ""
}

func validateTemporaryHandle(hostname string) Validator {
	return func(value string) string {
		handle := credentials.StripHandlePrefix(value)
		if !credentials.IsHandle(handle) || !credentials.IsSubdomain(handle, hostname) {
			return invalidTemporaryHandleMessageConstant
		}
		return ""
	}
}

func validatePasswordMatch(expectedPassword string) Validator {
	return func(value string) string {
		if value != expectedPassword {
			return passwordMismatchMessageConstant
		}
		return ""
	}
}
