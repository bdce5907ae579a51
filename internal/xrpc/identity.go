package xrpc

import (
	"context"
	"encoding/json"
	"errors"
)

const (
	methodRequestPlcSignatureConstant    = "com.atproto.identity.requestPlcOperationSignature"
	methodRecommendedCredentialsConstant = "com.atproto.identity.getRecommendedDidCredentials"
	methodSignPlcOperationConstant       = "com.atproto.identity.signPlcOperation"
	methodSubmitPlcOperationConstant     = "com.atproto.identity.submitPlcOperation"
	methodUpdateHandleConstant           = "com.atproto.identity.updateHandle"
	signedOperationMissingConstant       = "signPlcOperation returned no operation"
)

// DIDCredentials are the identity parameters an endpoint recommends for an
// account it is about to host. A nil RotationKeys means the endpoint sent none.
type DIDCredentials struct {
	RotationKeys        []string        `json:"rotationKeys,omitempty"`
	AlsoKnownAs         []string        `json:"alsoKnownAs,omitempty"`
	VerificationMethods json.RawMessage `json:"verificationMethods,omitempty"`
	Services            json.RawMessage `json:"services,omitempty"`
}

// SignPlcOperationInput asks the current endpoint to sign an identity update.
type SignPlcOperationInput struct {
	Token               string          `json:"token"`
	RotationKeys        []string        `json:"rotationKeys,omitempty"`
	AlsoKnownAs         []string        `json:"alsoKnownAs,omitempty"`
	VerificationMethods json.RawMessage `json:"verificationMethods,omitempty"`
	Services            json.RawMessage `json:"services,omitempty"`
}

type signPlcOperationOutput struct {
	Operation json.RawMessage `json:"operation"`
}

type submitPlcOperationInput struct {
	Operation json.RawMessage `json:"operation"`
}

type updateHandleInput struct {
	Handle string `json:"handle"`
}

// RequestPlcOperationSignature asks the endpoint to send a confirmation token to the account owner.
func (client *Client) RequestPlcOperationSignature(executionContext context.Context) error {
	if sessionError := client.requireSession(); sessionError != nil {
		return sessionError
	}
	return client.procedure(executionContext, methodRequestPlcSignatureConstant, nil, nil)
}

// GetRecommendedDIDCredentials fetches the identity parameters the endpoint wants published.
func (client *Client) GetRecommendedDIDCredentials(executionContext context.Context) (DIDCredentials, error) {
	if sessionError := client.requireSession(); sessionError != nil {
		return DIDCredentials{}, sessionError
	}
	var recommended DIDCredentials
	if callError := client.query(executionContext, methodRecommendedCredentialsConstant, nil, &recommended); callError != nil {
		return DIDCredentials{}, callError
	}
	return recommended, nil
}

// SignPlcOperation returns the signed identity operation.
func (client *Client) SignPlcOperation(executionContext context.Context, input SignPlcOperationInput) (json.RawMessage, error) {
	if sessionError := client.requireSession(); sessionError != nil {
		return nil, sessionError
	}
	var output signPlcOperationOutput
	if callError := client.procedure(executionContext, methodSignPlcOperationConstant, input, &output); callError != nil {
		return nil, callError
	}
	if len(output.Operation) == 0 {
		return nil, errors.New(signedOperationMissingConstant)
	}
	return output.Operation, nil
}

// SubmitPlcOperation publishes a signed identity operation through the endpoint.
func (client *Client) SubmitPlcOperation(executionContext context.Context, operation json.RawMessage) error {
	if sessionError := client.requireSession(); sessionError != nil {
		return sessionError
	}
	return client.procedure(executionContext, methodSubmitPlcOperationConstant, submitPlcOperationInput{Operation: operation}, nil)
}

// UpdateHandle changes the handle of the authenticated account.
func (client *Client) UpdateHandle(executionContext context.Context, handle string) error {
	if sessionError := client.requireSession(); sessionError != nil {
		return sessionError
	}
	return client.procedure(executionContext, methodUpdateHandleConstant, updateHandleInput{Handle: handle}, nil)
}
