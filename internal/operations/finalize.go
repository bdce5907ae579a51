package operations

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/pdsmigrate/internal/credentials"
	"github.com/temirov/pdsmigrate/internal/migration"
	"github.com/temirov/pdsmigrate/internal/xrpc"
)

// CheckStatus snapshots the account status on both endpoints.
func (service *Service) CheckStatus(executionContext context.Context, sessions migration.SessionPair) (migration.AccountStatuses, error) {
	agents, agentsError := agentsFrom(sessions)
	if agentsError != nil {
		return migration.AccountStatuses{}, agentsError
	}

	oldStatus, oldStatusError := agents.oldAgent.CheckAccountStatus(executionContext)
	if oldStatusError != nil {
		return migration.AccountStatuses{}, fmt.Errorf(oldStatusTemplateConstant, oldStatusError)
	}
	newStatus, newStatusError := agents.newAgent.CheckAccountStatus(executionContext)
	if newStatusError != nil {
		return migration.AccountStatuses{}, fmt.Errorf(newStatusTemplateConstant, newStatusError)
	}

	return migration.AccountStatuses{Old: convertStatus(oldStatus), New: convertStatus(newStatus)}, nil
}

// Finalize activates the new account and deactivates the old one through a
// freshly authenticated agent. When the account was migrated under a
// temporary handle the final handle is applied last; a failure there is
// reported as a migration.HandleUpdateError.
func (service *Service) Finalize(executionContext context.Context, sessions migration.SessionPair, migrationCredentials credentials.Credentials) error {
	agents, agentsError := agentsFrom(sessions)
	if agentsError != nil {
		return agentsError
	}

	if activateError := agents.newAgent.ActivateAccount(executionContext); activateError != nil {
		return fmt.Errorf(activateAccountTemplateConstant, activateError)
	}

	if deactivateError := service.deactivateOldAccount(executionContext, migrationCredentials); deactivateError != nil {
		return deactivateError
	}

	newHandle := migrationCredentials.NewHandle
	if newHandle.DesiredHandle() == newHandle.MigrationHandle() {
		return nil
	}
	if updateError := agents.newAgent.UpdateHandle(executionContext, newHandle.DesiredHandle()); updateError != nil {
		return migration.HandleUpdateError{
			TemporaryHandle: newHandle.MigrationHandle(),
			FinalHandle:     newHandle.DesiredHandle(),
			Cause:           updateError,
		}
	}
	service.logger.Info(logMessageHandleUpdatedConstant, zap.String(logFieldAccountDIDConstant, agents.accountDID), zap.String(logFieldHandleConstant, newHandle.DesiredHandle()))
	return nil
}

func (service *Service) deactivateOldAccount(executionContext context.Context, migrationCredentials credentials.Credentials) error {
	oldAgent, agentError := service.newAgent(migrationCredentials.OldPDSURL)
	if agentError != nil {
		return agentError
	}
	if loginError := oldAgent.Login(executionContext, migrationCredentials.OldHandle, migrationCredentials.OldPassword); loginError != nil {
		return fmt.Errorf(oldReauthenticationTemplateConstant, loginError)
	}
	defer service.releaseAgent(executionContext, oldAgent)

	if deactivateError := oldAgent.DeactivateAccount(executionContext); deactivateError != nil {
		return fmt.Errorf(deactivateAccountTemplateConstant, deactivateError)
	}
	return nil
}

func convertStatus(status xrpc.AccountStatus) migration.AccountStatus {
	return migration.AccountStatus{
		Activated:          status.Activated,
		ValidDID:           status.ValidDID,
		RepoCommit:         status.RepoCommit,
		RepoRev:            status.RepoRev,
		RepoBlocks:         status.RepoBlocks,
		IndexedRecords:     status.IndexedRecords,
		PrivateStateValues: status.PrivateStateValues,
		ExpectedBlobs:      status.ExpectedBlobs,
		ImportedBlobs:      status.ImportedBlobs,
	}
}
