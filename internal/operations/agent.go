package operations

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/pdsmigrate/internal/migration"
	"github.com/temirov/pdsmigrate/internal/xrpc"
)

// Agent is an endpoint client capable of every call the migration makes.
type Agent interface {
	migration.Session
	DID() string
	DescribeServer(executionContext context.Context) (xrpc.ServerDescription, error)
	GetServiceAuth(executionContext context.Context, audience string, lexiconMethod string) (string, error)
	CreateAccount(executionContext context.Context, input xrpc.CreateAccountInput, serviceToken string) (xrpc.SessionInfo, error)
	GetRepo(executionContext context.Context, did string) (io.ReadCloser, error)
	ImportRepo(executionContext context.Context, repository io.Reader) error
	ListBlobs(executionContext context.Context, did string, cursor string) (xrpc.BlobPage, error)
	GetBlob(executionContext context.Context, did string, cid string) (xrpc.Blob, error)
	UploadBlob(executionContext context.Context, blob io.Reader, contentType string) error
	GetPreferences(executionContext context.Context) (xrpc.Preferences, error)
	PutPreferences(executionContext context.Context, preferences xrpc.Preferences) error
	RequestPlcOperationSignature(executionContext context.Context) error
	GetRecommendedDIDCredentials(executionContext context.Context) (xrpc.DIDCredentials, error)
	SignPlcOperation(executionContext context.Context, input xrpc.SignPlcOperationInput) (json.RawMessage, error)
	SubmitPlcOperation(executionContext context.Context, operation json.RawMessage) error
	CheckAccountStatus(executionContext context.Context) (xrpc.AccountStatus, error)
	ActivateAccount(executionContext context.Context) error
	DeactivateAccount(executionContext context.Context) error
	UpdateHandle(executionContext context.Context, handle string) error
}

// AgentFactory creates unauthenticated agents for an endpoint.
type AgentFactory interface {
	NewAgent(serviceURL string) (Agent, error)
}

// XRPCAgentFactory builds xrpc clients that share one HTTP client.
type XRPCAgentFactory struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
	UserAgent  string
}

// NewXRPCAgentFactory configures a factory whose requests time out after
// requestTimeout. A zero timeout disables the limit.
func NewXRPCAgentFactory(requestTimeout time.Duration, userAgent string, logger *zap.Logger) *XRPCAgentFactory {
	return &XRPCAgentFactory{
		HTTPClient: &http.Client{Timeout: requestTimeout},
		Logger:     logger,
		UserAgent:  userAgent,
	}
}

// NewAgent constructs an xrpc client for serviceURL.
func (factory *XRPCAgentFactory) NewAgent(serviceURL string) (Agent, error) {
	var transport xrpc.Transport
	if factory.HTTPClient != nil {
		transport = factory.HTTPClient
	}
	client, clientError := xrpc.NewClient(xrpc.ClientConfiguration{
		ServiceURL: serviceURL,
		Transport:  transport,
		Logger:     factory.Logger,
		UserAgent:  factory.UserAgent,
	})
	if clientError != nil {
		return nil, clientError
	}
	return client, nil
}
