package xrpc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
)

const (
	methodDescribeServerConstant     = "com.atproto.server.describeServer"
	methodGetServiceAuthConstant     = "com.atproto.server.getServiceAuth"
	methodCreateAccountConstant      = "com.atproto.server.createAccount"
	methodCheckAccountStatusConstant = "com.atproto.server.checkAccountStatus"
	methodActivateAccountConstant    = "com.atproto.server.activateAccount"
	methodDeactivateAccountConstant  = "com.atproto.server.deactivateAccount"
	parameterAudienceConstant        = "aud"
	parameterLexiconMethodConstant   = "lxm"
)

// ServerDescription carries the fields of describeServer the migration relies on.
type ServerDescription struct {
	DID                  string   `json:"did"`
	AvailableUserDomains []string `json:"availableUserDomains"`
	InviteCodeRequired   bool     `json:"inviteCodeRequired"`
}

// CreateAccountInput is the body of createAccount for an account that already owns a DID.
type CreateAccountInput struct {
	Handle     string `json:"handle"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	DID        string `json:"did"`
	InviteCode string `json:"inviteCode,omitempty"`
}

// AccountStatus is the checkAccountStatus payload.
type AccountStatus struct {
	Activated          bool   `json:"activated"`
	ValidDID           bool   `json:"validDid"`
	RepoCommit         string `json:"repoCommit"`
	RepoRev            string `json:"repoRev"`
	RepoBlocks         int64  `json:"repoBlocks"`
	IndexedRecords     int64  `json:"indexedRecords"`
	PrivateStateValues int64  `json:"privateStateValues"`
	ExpectedBlobs      int64  `json:"expectedBlobs"`
	ImportedBlobs      int64  `json:"importedBlobs"`
}

type serviceAuthOutput struct {
	Token string `json:"token"`
}

// DescribeServer fetches the public description of the endpoint.
func (client *Client) DescribeServer(executionContext context.Context) (ServerDescription, error) {
	var description ServerDescription
	if callError := client.query(executionContext, methodDescribeServerConstant, nil, &description); callError != nil {
		return ServerDescription{}, callError
	}
	return description, nil
}

// GetServiceAuth obtains a token that authorizes lexiconMethod at the service
// identified by audience. The token audience is checked before it is returned.
func (client *Client) GetServiceAuth(executionContext context.Context, audience string, lexiconMethod string) (string, error) {
	if sessionError := client.requireSession(); sessionError != nil {
		return "", sessionError
	}

	parameters := url.Values{}
	parameters.Set(parameterAudienceConstant, audience)
	if len(lexiconMethod) > 0 {
		parameters.Set(parameterLexiconMethodConstant, lexiconMethod)
	}

	var output serviceAuthOutput
	if callError := client.query(executionContext, methodGetServiceAuthConstant, parameters, &output); callError != nil {
		return "", callError
	}
	if len(output.Token) == 0 {
		return "", errors.New(serviceTokenMissingMessageConstant)
	}

	claims, parseError := parseUnverifiedClaims(output.Token)
	if parseError != nil {
		return "", parseError
	}
	if !slices.Contains(claims.Audience, audience) {
		return "", fmt.Errorf(serviceTokenAudienceTemplateConstant, []string(claims.Audience), audience)
	}
	return output.Token, nil
}

// CreateAccount creates an account authorized by a service token issued by the account's current endpoint.
func (client *Client) CreateAccount(executionContext context.Context, input CreateAccountInput, serviceToken string) (SessionInfo, error) {
	var session SessionInfo
	if callError := client.procedureWithToken(executionContext, methodCreateAccountConstant, input, &session, serviceToken); callError != nil {
		return SessionInfo{}, callError
	}
	return session, nil
}

// CheckAccountStatus reports the account status as seen by the endpoint.
func (client *Client) CheckAccountStatus(executionContext context.Context) (AccountStatus, error) {
	if sessionError := client.requireSession(); sessionError != nil {
		return AccountStatus{}, sessionError
	}
	var status AccountStatus
	if callError := client.query(executionContext, methodCheckAccountStatusConstant, nil, &status); callError != nil {
		return AccountStatus{}, callError
	}
	return status, nil
}

// ActivateAccount activates the authenticated account.
func (client *Client) ActivateAccount(executionContext context.Context) error {
	if sessionError := client.requireSession(); sessionError != nil {
		return sessionError
	}
	return client.procedure(executionContext, methodActivateAccountConstant, nil, nil)
}

// DeactivateAccount deactivates the authenticated account. Endpoints reject
// the call without a JSON body, so an empty object is always sent.
func (client *Client) DeactivateAccount(executionContext context.Context) error {
	if sessionError := client.requireSession(); sessionError != nil {
		return sessionError
	}
	return client.procedure(executionContext, methodDeactivateAccountConstant, struct{}{}, nil)
}
