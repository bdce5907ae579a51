package operations

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/pdsmigrate/internal/credentials"
	"github.com/temirov/pdsmigrate/internal/migration"
	"github.com/temirov/pdsmigrate/internal/recoverykey"
	"github.com/temirov/pdsmigrate/internal/xrpc"
)

const (
	agentFactoryMissingMessageConstant     = "agent factory not configured"
	keyGeneratorMissingMessageConstant     = "recovery key generator not configured"
	unsupportedSessionMessageConstant      = "session does not support migration operations"
	accountDIDMissingMessageConstant       = "failed to get DID for old account"
	rotationKeysMissingMessageConstant     = "new PDS did not provide any rotation keys"
	agentCreationTemplateConstant          = "unable to create agent for %s: %w"
	oldLoginTemplateConstant               = "unable to log into the old account: %w"
	describeServerTemplateConstant         = "unable to describe the new PDS: %w"
	serviceAuthTemplateConstant            = "unable to obtain a service token from the old PDS: %w"
	createAccountTemplateConstant          = "unable to create the account on the new PDS: %w"
	newLoginTemplateConstant               = "unable to log into the new account: %w"
	exportRepositoryTemplateConstant       = "unable to export the repository: %w"
	importRepositoryTemplateConstant       = "unable to import the repository: %w"
	listBlobsTemplateConstant              = "unable to list blobs: %w"
	downloadBlobTemplateConstant           = "unable to download blob %s: %w"
	uploadBlobTemplateConstant             = "unable to upload blob %s: %w"
	readPreferencesTemplateConstant        = "unable to read preferences: %w"
	writePreferencesTemplateConstant       = "unable to write preferences: %w"
	requestSignatureTemplateConstant       = "unable to request an identity operation signature: %w"
	recoveryKeyTemplateConstant            = "unable to generate a recovery key: %w"
	recommendedCredentialsTemplateConstant = "unable to fetch recommended DID credentials: %w"
	signOperationTemplateConstant          = "unable to sign the identity operation: %w"
	submitOperationTemplateConstant        = "unable to submit the identity operation: %w"
	oldStatusTemplateConstant              = "unable to check the old account status: %w"
	newStatusTemplateConstant              = "unable to check the new account status: %w"
	activateAccountTemplateConstant        = "unable to activate the new account: %w"
	oldReauthenticationTemplateConstant    = "unable to re-authenticate to the old PDS: %w"
	deactivateAccountTemplateConstant      = "unable to deactivate the old account: %w"
	createAccountLexiconMethodConstant     = "com.atproto.server.createAccount"
	logMessageBlobCopiedConstant           = "Blob copied"
	logMessageRepositoryCopiedConstant     = "Repository imported"
	logMessagePreferencesCopiedConstant    = "Preferences copied"
	logMessageAccountCreatedConstant       = "Account created on new PDS"
	logMessageAgentReleaseFailedConstant   = "Agent session logout failed"
	logMessageBlobsCopiedConstant          = "Blobs copied"
	logMessageHandleUpdatedConstant        = "Final handle applied"
	logFieldAccountDIDConstant             = "account_did"
	logFieldCIDConstant                    = "cid"
	logFieldContentTypeConstant            = "content_type"
	logFieldBlobCountConstant              = "blob_count"
	logFieldHandleConstant                 = "handle"
)

var (
	errAgentFactoryMissing = errors.New(agentFactoryMissingMessageConstant)
	errKeyGeneratorMissing = errors.New(keyGeneratorMissingMessageConstant)
	errUnsupportedSession  = errors.New(unsupportedSessionMessageConstant)

	// ErrAccountDIDMissing is returned when the old endpoint login yields no account DID.
	ErrAccountDIDMissing = errors.New(accountDIDMissingMessageConstant)
	// ErrRotationKeysMissing is returned when the new endpoint recommends no rotation keys.
	ErrRotationKeysMissing = errors.New(rotationKeysMissingMessageConstant)
)

// ServiceDependencies describes the collaborators of Service.
type ServiceDependencies struct {
	AgentFactory AgentFactory
	KeyGenerator recoverykey.Generator
	Logger       *zap.Logger
}

// Service performs every migration operation against live endpoints.
type Service struct {
	agentFactory AgentFactory
	keyGenerator recoverykey.Generator
	logger       *zap.Logger
}

var _ migration.Operations = (*Service)(nil)

// NewService constructs a Service with the provided dependencies.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.AgentFactory == nil {
		return nil, errAgentFactoryMissing
	}
	if dependencies.KeyGenerator == nil {
		return nil, errKeyGeneratorMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		agentFactory: dependencies.AgentFactory,
		keyGenerator: dependencies.KeyGenerator,
		logger:       logger,
	}, nil
}

type agentPair struct {
	oldAgent   Agent
	newAgent   Agent
	accountDID string
}

func agentsFrom(sessions migration.SessionPair) (agentPair, error) {
	oldAgent, oldSupported := sessions.Old.(Agent)
	newAgent, newSupported := sessions.New.(Agent)
	if !oldSupported || !newSupported {
		return agentPair{}, errUnsupportedSession
	}
	return agentPair{oldAgent: oldAgent, newAgent: newAgent, accountDID: sessions.AccountDID}, nil
}

func (service *Service) newAgent(serviceURL string) (Agent, error) {
	agent, creationError := service.agentFactory.NewAgent(serviceURL)
	if creationError != nil {
		return nil, fmt.Errorf(agentCreationTemplateConstant, serviceURL, creationError)
	}
	return agent, nil
}

// Authenticate logs into the old endpoint and prepares an agent for the new one.
func (service *Service) Authenticate(executionContext context.Context, migrationCredentials credentials.Credentials) (migration.SessionPair, error) {
	oldAgent, oldAgentError := service.newAgent(migrationCredentials.OldPDSURL)
	if oldAgentError != nil {
		return migration.SessionPair{}, oldAgentError
	}
	newAgent, newAgentError := service.newAgent(migrationCredentials.NewPDSURL)
	if newAgentError != nil {
		return migration.SessionPair{}, newAgentError
	}

	if loginError := oldAgent.Login(executionContext, migrationCredentials.OldHandle, migrationCredentials.OldPassword); loginError != nil {
		return migration.SessionPair{}, fmt.Errorf(oldLoginTemplateConstant, loginError)
	}

	accountDID := oldAgent.DID()
	if len(accountDID) == 0 {
		service.releaseAgent(executionContext, oldAgent)
		return migration.SessionPair{}, ErrAccountDIDMissing
	}
	return migration.SessionPair{Old: oldAgent, New: newAgent, AccountDID: accountDID}, nil
}

// CreateAccount creates the account on the new endpoint under the migration
// handle using a service token issued by the old endpoint, then logs into it.
func (service *Service) CreateAccount(executionContext context.Context, sessions migration.SessionPair, migrationCredentials credentials.Credentials) error {
	agents, agentsError := agentsFrom(sessions)
	if agentsError != nil {
		return agentsError
	}

	description, describeError := agents.newAgent.DescribeServer(executionContext)
	if describeError != nil {
		return fmt.Errorf(describeServerTemplateConstant, describeError)
	}

	serviceToken, serviceAuthError := agents.oldAgent.GetServiceAuth(executionContext, description.DID, createAccountLexiconMethodConstant)
	if serviceAuthError != nil {
		return fmt.Errorf(serviceAuthTemplateConstant, serviceAuthError)
	}

	migrationHandle := migrationCredentials.NewHandle.MigrationHandle()
	_, createError := agents.newAgent.CreateAccount(executionContext, xrpc.CreateAccountInput{
		Handle:     migrationHandle,
		Email:      migrationCredentials.NewEmail,
		Password:   migrationCredentials.NewPassword,
		DID:        agents.accountDID,
		InviteCode: migrationCredentials.InviteCode,
	}, serviceToken)
	if createError != nil {
		return fmt.Errorf(createAccountTemplateConstant, createError)
	}
	service.logger.Info(logMessageAccountCreatedConstant, zap.String(logFieldAccountDIDConstant, agents.accountDID), zap.String(logFieldHandleConstant, migrationHandle))

	if loginError := agents.newAgent.Login(executionContext, migrationHandle, migrationCredentials.NewPassword); loginError != nil {
		return fmt.Errorf(newLoginTemplateConstant, loginError)
	}
	return nil
}

// RequestIdentityChange asks the old endpoint to email a confirmation token.
func (service *Service) RequestIdentityChange(executionContext context.Context, sessions migration.SessionPair) error {
	agents, agentsError := agentsFrom(sessions)
	if agentsError != nil {
		return agentsError
	}
	if requestError := agents.oldAgent.RequestPlcOperationSignature(executionContext); requestError != nil {
		return fmt.Errorf(requestSignatureTemplateConstant, requestError)
	}
	return nil
}

func (service *Service) releaseAgent(executionContext context.Context, agent Agent) {
	if logoutError := agent.Logout(context.WithoutCancel(executionContext)); logoutError != nil {
		service.logger.Warn(logMessageAgentReleaseFailedConstant, zap.Error(logoutError))
	}
}
