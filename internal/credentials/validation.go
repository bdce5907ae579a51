package credentials

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	oldPDSURLFieldNameConstant               = "oldPdsUrl"
	newPDSURLFieldNameConstant               = "newPdsUrl"
	oldHandleFieldNameConstant               = "oldHandle"
	oldPasswordFieldNameConstant             = "oldPassword"
	newHandleFieldNameConstant               = "newHandle.handle"
	temporaryHandleFieldNameConstant         = "newHandle.temporaryHandle"
	finalHandleFieldNameConstant             = "newHandle.finalHandle"
	newEmailFieldNameConstant                = "newEmail"
	newPasswordFieldNameConstant             = "newPassword"
	inviteCodeFieldNameConstant              = "inviteCode"
	invalidURLMessageConstant                = "must be a valid HTTP or HTTPS URL"
	invalidHandleMessageConstant             = "must be a valid handle"
	invalidEmailMessageConstant              = "must be a valid email address"
	emptyValueMessageConstant                = "must be a non-empty string"
	temporaryHandleRequiredTemplateConstant  = "handle %q is not a subdomain of %q; a temporary handle is required"
	temporaryHandleSubdomainTemplateConstant = "must be a subdomain of the new PDS hostname %q"
	invalidInputErrorTemplateConstant        = "invalid %s: %s"
	handlePrefixConstant                     = "@"
	httpSchemeConstant                       = "http"
	httpsSchemeConstant                      = "https"
	schemeSeparatorConstant                  = "://"
	handleLabelSeparatorConstant             = "."
	handleMaximumLengthConstant              = 253
	handleLabelMaximumLengthConstant         = 63
	handleLeftmostLabelMinimumLengthConstant = 3
)

var (
	handleLabelPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)
	emailPattern       = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// InvalidInputError describes a credential field that failed validation.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// IsHTTPURL reports whether value is an absolute http or https URL with a host.
func IsHTTPURL(value string) bool {
	parsedURL, parseError := url.Parse(value)
	if parseError != nil {
		return false
	}
	if parsedURL.Scheme != httpSchemeConstant && parsedURL.Scheme != httpsSchemeConstant {
		return false
	}
	return len(parsedURL.Hostname()) > 0
}

// NormalizeURL trims the value and assumes https when no scheme is present.
func NormalizeURL(value string) string {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 || strings.Contains(trimmedValue, schemeSeparatorConstant) {
		return trimmedValue
	}
	return httpsSchemeConstant + schemeSeparatorConstant + trimmedValue
}

// Hostname extracts the hostname of an endpoint URL.
func Hostname(endpointURL string) (string, error) {
	parsedURL, parseError := url.Parse(endpointURL)
	if parseError != nil {
		return "", parseError
	}
	return strings.ToLower(parsedURL.Hostname()), nil
}

// StripHandlePrefix removes a single leading "@" from a handle.
func StripHandlePrefix(value string) string {
	return strings.TrimPrefix(strings.TrimSpace(value), handlePrefixConstant)
}

// IsHandle reports whether value is a domain-shaped handle.
func IsHandle(value string) bool {
	if len(value) == 0 || len(value) > handleMaximumLengthConstant {
		return false
	}
	labels := strings.Split(strings.ToLower(value), handleLabelSeparatorConstant)
	if len(labels) < 2 {
		return false
	}
	if len(labels[0]) < handleLeftmostLabelMinimumLengthConstant {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > handleLabelMaximumLengthConstant {
			return false
		}
		if !handleLabelPattern.MatchString(label) {
			return false
		}
	}
	return true
}

// IsEmail reports whether value looks like a conventional email address.
func IsEmail(value string) bool {
	return emailPattern.MatchString(value)
}

// IsSubdomain reports whether handle lives directly or indirectly under hostname.
func IsSubdomain(handle string, hostname string) bool {
	if len(hostname) == 0 {
		return false
	}
	return strings.HasSuffix(strings.ToLower(handle), handleLabelSeparatorConstant+strings.ToLower(hostname))
}

// RequiresTemporaryHandle reports whether migrating to handle on the endpoint hostname needs the split form.
func RequiresTemporaryHandle(handle string, hostname string) bool {
	return !IsSubdomain(handle, hostname)
}

// Validate checks every credential field and returns all violations joined together.
func Validate(credentials Credentials) error {
	var validationErrors []error
	appendError := func(fieldName string, message string) {
		validationErrors = append(validationErrors, InvalidInputError{FieldName: fieldName, Message: message})
	}

	if !IsHTTPURL(credentials.OldPDSURL) {
		appendError(oldPDSURLFieldNameConstant, invalidURLMessageConstant)
	}
	newPDSURLValid := IsHTTPURL(credentials.NewPDSURL)
	if !newPDSURLValid {
		appendError(newPDSURLFieldNameConstant, invalidURLMessageConstant)
	}
	if !IsHandle(credentials.OldHandle) {
		appendError(oldHandleFieldNameConstant, invalidHandleMessageConstant)
	}
	if len(credentials.OldPassword) == 0 {
		appendError(oldPasswordFieldNameConstant, emptyValueMessageConstant)
	}
	if !IsEmail(credentials.NewEmail) {
		appendError(newEmailFieldNameConstant, invalidEmailMessageConstant)
	}
	if len(credentials.NewPassword) == 0 {
		appendError(newPasswordFieldNameConstant, emptyValueMessageConstant)
	}
	if len(credentials.InviteCode) == 0 {
		appendError(inviteCodeFieldNameConstant, emptyValueMessageConstant)
	}

	hostname := ""
	if newPDSURLValid {
		hostname, _ = Hostname(credentials.NewPDSURL)
	}

	newHandle := credentials.NewHandle
	if newHandle.IsSplit() {
		if !IsHandle(newHandle.TemporaryHandle) {
			appendError(temporaryHandleFieldNameConstant, invalidHandleMessageConstant)
		} else if newPDSURLValid && !IsSubdomain(newHandle.TemporaryHandle, hostname) {
			appendError(temporaryHandleFieldNameConstant, fmt.Sprintf(temporaryHandleSubdomainTemplateConstant, hostname))
		}
		if !IsHandle(newHandle.FinalHandle) {
			appendError(finalHandleFieldNameConstant, invalidHandleMessageConstant)
		}
	} else {
		if !IsHandle(newHandle.Handle) {
			appendError(newHandleFieldNameConstant, invalidHandleMessageConstant)
		} else if newPDSURLValid && RequiresTemporaryHandle(newHandle.Handle, hostname) {
			appendError(newHandleFieldNameConstant, fmt.Sprintf(temporaryHandleRequiredTemplateConstant, newHandle.Handle, hostname))
		}
	}

	if len(validationErrors) == 0 {
		return nil
	}
	return errors.Join(validationErrors...)
}
