package operations_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/pdsmigrate/internal/operations"
)

const testUserAgentConstant = "pdsmigrate-test"

func TestXRPCAgentFactoryBuildsWorkingAgents(testInstance *testing.T) {
	var observedUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		observedUserAgent = request.UserAgent()
		responseWriter.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(responseWriter).Encode(map[string]any{
			"did":        testAccountDIDConstant,
			"handle":     "alice.bsky.social",
			"accessJwt":  "access",
			"refreshJwt": "refresh",
		})
	}))
	testInstance.Cleanup(server.Close)

	factory := operations.NewXRPCAgentFactory(5*time.Second, testUserAgentConstant, zap.NewNop())
	agent, agentError := factory.NewAgent(server.URL)
	require.NoError(testInstance, agentError)

	require.NoError(testInstance, agent.Login(context.Background(), "alice.bsky.social", "oldpass123"))
	require.Equal(testInstance, testAccountDIDConstant, agent.DID())
	require.Equal(testInstance, testUserAgentConstant, observedUserAgent)
}

func TestXRPCAgentFactoryRejectsInvalidURL(testInstance *testing.T) {
	factory := &operations.XRPCAgentFactory{}
	_, agentError := factory.NewAgent("not a url")
	require.Error(testInstance, agentError)
}
