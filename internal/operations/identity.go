package operations

import (
	"context"
	"fmt"

	"github.com/temirov/pdsmigrate/internal/migration"
	"github.com/temirov/pdsmigrate/internal/xrpc"
)

// MigrateIdentity points the account identity at the new endpoint. A fresh
// recovery key is placed ahead of the rotation keys the new endpoint
// recommends; its hex-encoded private key is returned and must be kept by the
// account owner.
func (service *Service) MigrateIdentity(executionContext context.Context, sessions migration.SessionPair, confirmationToken string) (string, error) {
	agents, agentsError := agentsFrom(sessions)
	if agentsError != nil {
		return "", agentsError
	}

	recoveryKey, generationError := service.keyGenerator.Generate()
	if generationError != nil {
		return "", fmt.Errorf(recoveryKeyTemplateConstant, generationError)
	}

	recommended, recommendedError := agents.newAgent.GetRecommendedDIDCredentials(executionContext)
	if recommendedError != nil {
		return "", fmt.Errorf(recommendedCredentialsTemplateConstant, recommendedError)
	}
	if recommended.RotationKeys == nil {
		return "", ErrRotationKeysMissing
	}

	rotationKeys := make([]string, 0, len(recommended.RotationKeys)+1)
	rotationKeys = append(rotationKeys, recoveryKey.DID)
	rotationKeys = append(rotationKeys, recommended.RotationKeys...)

	operation, signError := agents.oldAgent.SignPlcOperation(executionContext, xrpc.SignPlcOperationInput{
		Token:               confirmationToken,
		RotationKeys:        rotationKeys,
		AlsoKnownAs:         recommended.AlsoKnownAs,
		VerificationMethods: recommended.VerificationMethods,
		Services:            recommended.Services,
	})
	if signError != nil {
		return "", fmt.Errorf(signOperationTemplateConstant, signError)
	}

	if submitError := agents.newAgent.SubmitPlcOperation(executionContext, operation); submitError != nil {
		return "", fmt.Errorf(submitOperationTemplateConstant, submitError)
	}
	return recoveryKey.PrivateKeyHex, nil
}
