package operations

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/pdsmigrate/internal/migration"
)

// MigrateData copies the repository, then every blob, then the preferences.
// Nothing is rolled back when a later step fails.
func (service *Service) MigrateData(executionContext context.Context, sessions migration.SessionPair) error {
	agents, agentsError := agentsFrom(sessions)
	if agentsError != nil {
		return agentsError
	}

	if repositoryError := service.copyRepository(executionContext, agents); repositoryError != nil {
		return repositoryError
	}
	if blobsError := service.copyBlobs(executionContext, agents); blobsError != nil {
		return blobsError
	}
	return service.copyPreferences(executionContext, agents)
}

func (service *Service) copyRepository(executionContext context.Context, agents agentPair) error {
	repository, exportError := agents.oldAgent.GetRepo(executionContext, agents.accountDID)
	if exportError != nil {
		return fmt.Errorf(exportRepositoryTemplateConstant, exportError)
	}
	defer func() { _ = repository.Close() }()

	if importError := agents.newAgent.ImportRepo(executionContext, repository); importError != nil {
		return fmt.Errorf(importRepositoryTemplateConstant, importError)
	}
	service.logger.Info(logMessageRepositoryCopiedConstant, zap.String(logFieldAccountDIDConstant, agents.accountDID))
	return nil
}

func (service *Service) copyBlobs(executionContext context.Context, agents agentPair) error {
	copiedBlobs := 0
	cursor := ""
	for {
		page, listError := agents.oldAgent.ListBlobs(executionContext, agents.accountDID, cursor)
		if listError != nil {
			return fmt.Errorf(listBlobsTemplateConstant, listError)
		}

		for _, cid := range page.CIDs {
			if copyError := service.copyBlob(executionContext, agents, cid); copyError != nil {
				return copyError
			}
			copiedBlobs++
		}

		if len(page.Cursor) == 0 {
			break
		}
		cursor = page.Cursor
	}

	service.logger.Info(logMessageBlobsCopiedConstant, zap.String(logFieldAccountDIDConstant, agents.accountDID), zap.Int(logFieldBlobCountConstant, copiedBlobs))
	return nil
}

func (service *Service) copyBlob(executionContext context.Context, agents agentPair, cid string) error {
	blob, downloadError := agents.oldAgent.GetBlob(executionContext, agents.accountDID, cid)
	if downloadError != nil {
		return fmt.Errorf(downloadBlobTemplateConstant, cid, downloadError)
	}
	defer func() { _ = blob.Body.Close() }()

	if uploadError := agents.newAgent.UploadBlob(executionContext, blob.Body, blob.ContentType); uploadError != nil {
		return fmt.Errorf(uploadBlobTemplateConstant, cid, uploadError)
	}
	service.logger.Debug(logMessageBlobCopiedConstant, zap.String(logFieldCIDConstant, cid), zap.String(logFieldContentTypeConstant, blob.ContentType))
	return nil
}

func (service *Service) copyPreferences(executionContext context.Context, agents agentPair) error {
	preferences, readError := agents.oldAgent.GetPreferences(executionContext)
	if readError != nil {
		return fmt.Errorf(readPreferencesTemplateConstant, readError)
	}
	if writeError := agents.newAgent.PutPreferences(executionContext, preferences); writeError != nil {
		return fmt.Errorf(writePreferencesTemplateConstant, writeError)
	}
	service.logger.Info(logMessagePreferencesCopiedConstant, zap.String(logFieldAccountDIDConstant, agents.accountDID))
	return nil
}
