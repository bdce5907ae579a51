package xrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	responseErrorTemplateConstant            = "%s returned status %d"
	responseErrorWithNameTemplateConstant    = "%s returned status %d (%s)"
	responseErrorWithMessageTemplateConstant = "%s: %s"
	notAuthenticatedMessageConstant          = "xrpc client is not authenticated"
	missingAccountDIDMessageConstant         = "login did not return an account DID"
	serviceTokenAudienceTemplateConstant     = "service token audience %v does not include %q"
	serviceTokenMissingMessageConstant       = "service auth returned no token"
)

var (
	// ErrNotAuthenticated is returned by calls that need a session before Login succeeded.
	ErrNotAuthenticated = errors.New(notAuthenticatedMessageConstant)
	// ErrMissingAccountDID is returned when neither the login response nor its access token name the account.
	ErrMissingAccountDID = errors.New(missingAccountDIDMessageConstant)
)

// ResponseError describes a non-2xx answer from an endpoint.
type ResponseError struct {
	Method     string
	StatusCode int
	ErrorName  string
	Message    string
}

// Error formats the failed call with the endpoint's own error name and message when present.
func (responseError ResponseError) Error() string {
	formatted := fmt.Sprintf(responseErrorTemplateConstant, responseError.Method, responseError.StatusCode)
	if len(responseError.ErrorName) > 0 {
		formatted = fmt.Sprintf(responseErrorWithNameTemplateConstant, responseError.Method, responseError.StatusCode, responseError.ErrorName)
	}
	if len(responseError.Message) > 0 {
		formatted = fmt.Sprintf(responseErrorWithMessageTemplateConstant, formatted, responseError.Message)
	}
	return formatted
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newResponseError(method string, response *http.Response) ResponseError {
	responseError := ResponseError{Method: method, StatusCode: response.StatusCode}

	rawBody, readError := io.ReadAll(io.LimitReader(response.Body, maximumErrorBodyBytesConstant))
	if readError != nil || len(rawBody) == 0 {
		return responseError
	}

	var decodedBody errorBody
	if decodeError := json.Unmarshal(rawBody, &decodedBody); decodeError != nil {
		responseError.Message = strings.TrimSpace(string(rawBody))
		return responseError
	}
	responseError.ErrorName = decodedBody.Error
	responseError.Message = decodedBody.Message
	return responseError
}
