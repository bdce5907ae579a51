package operations_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/pdsmigrate/internal/credentials"
	"github.com/temirov/pdsmigrate/internal/migration"
	"github.com/temirov/pdsmigrate/internal/operations"
	"github.com/temirov/pdsmigrate/internal/recoverykey"
	"github.com/temirov/pdsmigrate/internal/xrpc"
)

const (
	testOldPDSURLConstant       = "https://bsky.social"
	testNewPDSURLConstant       = "https://b.com"
	testAccountDIDConstant      = "did:plc:abc123"
	testNewServerDIDConstant    = "did:web:b.com"
	testServiceTokenConstant    = "service-token"
	testRecoveryDIDConstant     = "did:key:zQ3shRecovery"
	testRecoveryKeyHexConstant  = "01020304"
	testTemporaryHandleConstant = "alice-temp.b.com"
	testFinalHandleConstant     = "alice.example.com"
)

var errTestEndpoint = errors.New("endpoint failure")

type fakeBlob struct {
	contentType string
	data        string
}

type fakeAgent struct {
	mutex              sync.Mutex
	name               string
	did                string
	calls              []string
	failures           map[string]error
	logins             []string
	blobPages          []xrpc.BlobPage
	blobs              map[string]fakeBlob
	uploadedBlobs      []fakeBlob
	importedRepository string
	preferences        xrpc.Preferences
	storedPreferences  *xrpc.Preferences
	recommended        xrpc.DIDCredentials
	signedInput        *xrpc.SignPlcOperationInput
	submittedOperation json.RawMessage
	createdAccount     *xrpc.CreateAccountInput
	serviceToken       string
	status             xrpc.AccountStatus
	updatedHandle      string
	logoutCalls        int
}

func newFakeAgent(name string) *fakeAgent {
	return &fakeAgent{name: name, failures: map[string]error{}, blobs: map[string]fakeBlob{}}
}

func (agent *fakeAgent) record(call string) error {
	agent.mutex.Lock()
	defer agent.mutex.Unlock()
	agent.calls = append(agent.calls, call)
	return agent.failures[call]
}

func (agent *fakeAgent) Login(_ context.Context, identifier string, _ string) error {
	if callError := agent.record("login"); callError != nil {
		return callError
	}
	agent.logins = append(agent.logins, identifier)
	return nil
}

func (agent *fakeAgent) Logout(context.Context) error {
	agent.mutex.Lock()
	agent.logoutCalls++
	agent.mutex.Unlock()
	return agent.record("logout")
}

func (agent *fakeAgent) DID() string {
	return agent.did
}

func (agent *fakeAgent) DescribeServer(context.Context) (xrpc.ServerDescription, error) {
	if callError := agent.record("describe_server"); callError != nil {
		return xrpc.ServerDescription{}, callError
	}
	return xrpc.ServerDescription{DID: testNewServerDIDConstant}, nil
}

func (agent *fakeAgent) GetServiceAuth(_ context.Context, audience string, lexiconMethod string) (string, error) {
	if callError := agent.record(fmt.Sprintf("service_auth:%s:%s", audience, lexiconMethod)); callError != nil {
		return "", callError
	}
	return testServiceTokenConstant, nil
}

func (agent *fakeAgent) CreateAccount(_ context.Context, input xrpc.CreateAccountInput, serviceToken string) (xrpc.SessionInfo, error) {
	if callError := agent.record("create_account"); callError != nil {
		return xrpc.SessionInfo{}, callError
	}
	agent.createdAccount = &input
	agent.serviceToken = serviceToken
	return xrpc.SessionInfo{DID: input.DID, Handle: input.Handle}, nil
}

func (agent *fakeAgent) GetRepo(_ context.Context, did string) (io.ReadCloser, error) {
	if callError := agent.record("get_repo:" + did); callError != nil {
		return nil, callError
	}
	return io.NopCloser(strings.NewReader("car-bytes")), nil
}

func (agent *fakeAgent) ImportRepo(_ context.Context, repository io.Reader) error {
	if callError := agent.record("import_repo"); callError != nil {
		return callError
	}
	content, _ := io.ReadAll(repository)
	agent.importedRepository = string(content)
	return nil
}

func (agent *fakeAgent) ListBlobs(_ context.Context, _ string, cursor string) (xrpc.BlobPage, error) {
	if callError := agent.record("list_blobs:" + cursor); callError != nil {
		return xrpc.BlobPage{}, callError
	}
	if len(agent.blobPages) == 0 {
		return xrpc.BlobPage{}, nil
	}
	page := agent.blobPages[0]
	agent.blobPages = agent.blobPages[1:]
	return page, nil
}

func (agent *fakeAgent) GetBlob(_ context.Context, _ string, cid string) (xrpc.Blob, error) {
	if callError := agent.record("get_blob:" + cid); callError != nil {
		return xrpc.Blob{}, callError
	}
	blob := agent.blobs[cid]
	return xrpc.Blob{Body: io.NopCloser(strings.NewReader(blob.data)), ContentType: blob.contentType}, nil
}

func (agent *fakeAgent) UploadBlob(_ context.Context, blob io.Reader, contentType string) error {
	if callError := agent.record("upload_blob"); callError != nil {
		return callError
	}
	content, _ := io.ReadAll(blob)
	agent.uploadedBlobs = append(agent.uploadedBlobs, fakeBlob{contentType: contentType, data: string(content)})
	return nil
}

func (agent *fakeAgent) GetPreferences(context.Context) (xrpc.Preferences, error) {
	if callError := agent.record("get_preferences"); callError != nil {
		return xrpc.Preferences{}, callError
	}
	return agent.preferences, nil
}

func (agent *fakeAgent) PutPreferences(_ context.Context, preferences xrpc.Preferences) error {
	if callError := agent.record("put_preferences"); callError != nil {
		return callError
	}
	agent.storedPreferences = &preferences
	return nil
}

func (agent *fakeAgent) RequestPlcOperationSignature(context.Context) error {
	return agent.record("request_plc_signature")
}

func (agent *fakeAgent) GetRecommendedDIDCredentials(context.Context) (xrpc.DIDCredentials, error) {
	if callError := agent.record("recommended_credentials"); callError != nil {
		return xrpc.DIDCredentials{}, callError
	}
	return agent.recommended, nil
}

func (agent *fakeAgent) SignPlcOperation(_ context.Context, input xrpc.SignPlcOperationInput) (json.RawMessage, error) {
	if callError := agent.record("sign_plc_operation"); callError != nil {
		return nil, callError
	}
	agent.signedInput = &input
	return json.RawMessage(`{"sig":"signed"}`), nil
}

func (agent *fakeAgent) SubmitPlcOperation(_ context.Context, operation json.RawMessage) error {
	if callError := agent.record("submit_plc_operation"); callError != nil {
		return callError
	}
	agent.submittedOperation = operation
	return nil
}

func (agent *fakeAgent) CheckAccountStatus(context.Context) (xrpc.AccountStatus, error) {
	if callError := agent.record("check_account_status"); callError != nil {
		return xrpc.AccountStatus{}, callError
	}
	return agent.status, nil
}

func (agent *fakeAgent) ActivateAccount(context.Context) error {
	return agent.record("activate_account")
}

func (agent *fakeAgent) DeactivateAccount(context.Context) error {
	return agent.record("deactivate_account")
}

func (agent *fakeAgent) UpdateHandle(_ context.Context, handle string) error {
	if callError := agent.record("update_handle"); callError != nil {
		return callError
	}
	agent.updatedHandle = handle
	return nil
}

type fakeAgentFactory struct {
	agentsByURL map[string][]*fakeAgent
	created     []string
	failure     error
}

func (factory *fakeAgentFactory) NewAgent(serviceURL string) (operations.Agent, error) {
	factory.created = append(factory.created, serviceURL)
	if factory.failure != nil {
		return nil, factory.failure
	}
	queue := factory.agentsByURL[serviceURL]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no agent prepared for %s", serviceURL)
	}
	factory.agentsByURL[serviceURL] = queue[1:]
	return queue[0], nil
}

type fixedKeyGenerator struct {
	failure error
}

func (generator fixedKeyGenerator) Generate() (recoverykey.Keypair, error) {
	if generator.failure != nil {
		return recoverykey.Keypair{}, generator.failure
	}
	return recoverykey.Keypair{DID: testRecoveryDIDConstant, PrivateKeyHex: testRecoveryKeyHexConstant}, nil
}

func testCredentials() credentials.Credentials {
	return credentials.Credentials{
		OldPDSURL:   testOldPDSURLConstant,
		NewPDSURL:   testNewPDSURLConstant,
		OldHandle:   "alice.bsky.social",
		OldPassword: "oldpass123",
		NewHandle:   credentials.SplitHandle(testTemporaryHandleConstant, testFinalHandleConstant),
		NewEmail:    "alice@example.com",
		NewPassword: "newpass123",
		InviteCode:  "invite-123",
	}
}

func newTestService(testInstance *testing.T, factory *fakeAgentFactory) *operations.Service {
	testInstance.Helper()
	service, creationError := operations.NewService(operations.ServiceDependencies{AgentFactory: factory, KeyGenerator: fixedKeyGenerator{}})
	require.NoError(testInstance, creationError)
	return service
}

func sessionPair(oldAgent *fakeAgent, newAgent *fakeAgent) migration.SessionPair {
	return migration.SessionPair{Old: oldAgent, New: newAgent, AccountDID: testAccountDIDConstant}
}

func TestNewServiceRequiresCollaborators(testInstance *testing.T) {
	_, factoryError := operations.NewService(operations.ServiceDependencies{KeyGenerator: fixedKeyGenerator{}})
	require.Error(testInstance, factoryError)

	_, generatorError := operations.NewService(operations.ServiceDependencies{AgentFactory: &fakeAgentFactory{}})
	require.Error(testInstance, generatorError)
}

func TestAuthenticate(testInstance *testing.T) {
	testCases := []struct {
		name          string
		oldDID        string
		loginFailure  error
		expectedError error
	}{
		{name: "success", oldDID: testAccountDIDConstant},
		{name: "login_failure", oldDID: testAccountDIDConstant, loginFailure: errTestEndpoint, expectedError: errTestEndpoint},
		{name: "missing_did", oldDID: "", expectedError: operations.ErrAccountDIDMissing},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			oldAgent := newFakeAgent("old")
			oldAgent.did = testCase.oldDID
			if testCase.loginFailure != nil {
				oldAgent.failures["login"] = testCase.loginFailure
			}
			newAgent := newFakeAgent("new")
			factory := &fakeAgentFactory{agentsByURL: map[string][]*fakeAgent{
				testOldPDSURLConstant: {oldAgent},
				testNewPDSURLConstant: {newAgent},
			}}
			service := newTestService(testInstance, factory)

			sessions, authenticateError := service.Authenticate(context.Background(), testCredentials())
			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, authenticateError, testCase.expectedError)
				return
			}
			require.NoError(testInstance, authenticateError)
			require.Equal(testInstance, testAccountDIDConstant, sessions.AccountDID)
			require.Same(testInstance, oldAgent, sessions.Old)
			require.Same(testInstance, newAgent, sessions.New)
			require.Equal(testInstance, []string{"alice.bsky.social"}, oldAgent.logins)
			require.Empty(testInstance, newAgent.calls)
		})
	}
}

func TestAuthenticateSurfacesFactoryFailure(testInstance *testing.T) {
	service := newTestService(testInstance, &fakeAgentFactory{failure: errTestEndpoint})
	_, authenticateError := service.Authenticate(context.Background(), testCredentials())
	require.ErrorIs(testInstance, authenticateError, errTestEndpoint)
}

func TestOperationsRejectForeignSessions(testInstance *testing.T) {
	service := newTestService(testInstance, &fakeAgentFactory{})
	foreignSessions := migration.SessionPair{AccountDID: testAccountDIDConstant}

	require.Error(testInstance, service.MigrateData(context.Background(), foreignSessions))
	_, statusError := service.CheckStatus(context.Background(), foreignSessions)
	require.Error(testInstance, statusError)
}

func TestCreateAccountUsesServiceTokenAndMigrationHandle(testInstance *testing.T) {
	oldAgent := newFakeAgent("old")
	newAgent := newFakeAgent("new")
	service := newTestService(testInstance, &fakeAgentFactory{})

	require.NoError(testInstance, service.CreateAccount(context.Background(), sessionPair(oldAgent, newAgent), testCredentials()))

	require.Equal(testInstance, []string{"service_auth:did:web:b.com:com.atproto.server.createAccount"}, oldAgent.calls)
	require.Equal(testInstance, []string{"describe_server", "create_account", "login"}, newAgent.calls)
	require.Equal(testInstance, testServiceTokenConstant, newAgent.serviceToken)
	require.Equal(testInstance, &xrpc.CreateAccountInput{
		Handle:     testTemporaryHandleConstant,
		Email:      "alice@example.com",
		Password:   "newpass123",
		DID:        testAccountDIDConstant,
		InviteCode: "invite-123",
	}, newAgent.createdAccount)
	require.Equal(testInstance, []string{testTemporaryHandleConstant}, newAgent.logins)
}

func TestCreateAccountStopsOnServiceAuthFailure(testInstance *testing.T) {
	oldAgent := newFakeAgent("old")
	oldAgent.failures["service_auth:did:web:b.com:com.atproto.server.createAccount"] = errTestEndpoint
	newAgent := newFakeAgent("new")
	service := newTestService(testInstance, &fakeAgentFactory{})

	createError := service.CreateAccount(context.Background(), sessionPair(oldAgent, newAgent), testCredentials())
	require.ErrorIs(testInstance, createError, errTestEndpoint)
	require.Nil(testInstance, newAgent.createdAccount)
}

func TestMigrateDataCopiesRepositoryBlobsAndPreferences(testInstance *testing.T) {
	oldAgent := newFakeAgent("old")
	oldAgent.blobPages = []xrpc.BlobPage{
		{CIDs: []string{"cid1", "cid2"}, Cursor: "next"},
		{CIDs: []string{"cid3"}},
	}
	oldAgent.blobs = map[string]fakeBlob{
		"cid1": {contentType: "image/png", data: "one"},
		"cid2": {contentType: "", data: "two"},
		"cid3": {contentType: "video/mp4", data: "three"},
	}
	oldAgent.preferences = xrpc.Preferences{Preferences: []json.RawMessage{json.RawMessage(`{"$type":"pref"}`)}}
	newAgent := newFakeAgent("new")
	service := newTestService(testInstance, &fakeAgentFactory{})

	require.NoError(testInstance, service.MigrateData(context.Background(), sessionPair(oldAgent, newAgent)))

	require.Equal(testInstance, []string{
		"get_repo:" + testAccountDIDConstant,
		"list_blobs:",
		"get_blob:cid1",
		"get_blob:cid2",
		"list_blobs:next",
		"get_blob:cid3",
		"get_preferences",
	}, oldAgent.calls)
	require.Equal(testInstance, "car-bytes", newAgent.importedRepository)
	require.Equal(testInstance, []fakeBlob{
		{contentType: "image/png", data: "one"},
		{contentType: "", data: "two"},
		{contentType: "video/mp4", data: "three"},
	}, newAgent.uploadedBlobs)
	require.Equal(testInstance, &oldAgent.preferences, newAgent.storedPreferences)
}

func TestMigrateDataStopsAtFirstFailure(testInstance *testing.T) {
	oldAgent := newFakeAgent("old")
	oldAgent.blobPages = []xrpc.BlobPage{{CIDs: []string{"cid1"}}}
	newAgent := newFakeAgent("new")
	newAgent.failures["upload_blob"] = errTestEndpoint
	service := newTestService(testInstance, &fakeAgentFactory{})

	migrateError := service.MigrateData(context.Background(), sessionPair(oldAgent, newAgent))
	require.ErrorIs(testInstance, migrateError, errTestEndpoint)
	require.Contains(testInstance, migrateError.Error(), "cid1")
	require.NotContains(testInstance, oldAgent.calls, "get_preferences")
	require.Nil(testInstance, newAgent.storedPreferences)
}

func TestRequestIdentityChange(testInstance *testing.T) {
	oldAgent := newFakeAgent("old")
	newAgent := newFakeAgent("new")
	service := newTestService(testInstance, &fakeAgentFactory{})

	require.NoError(testInstance, service.RequestIdentityChange(context.Background(), sessionPair(oldAgent, newAgent)))
	require.Equal(testInstance, []string{"request_plc_signature"}, oldAgent.calls)
	require.Empty(testInstance, newAgent.calls)
}

func TestMigrateIdentityPrependsRecoveryKey(testInstance *testing.T) {
	oldAgent := newFakeAgent("old")
	newAgent := newFakeAgent("new")
	newAgent.recommended = xrpc.DIDCredentials{
		RotationKeys:        []string{"did:key:zServer"},
		AlsoKnownAs:         []string{"at://alice-temp.b.com"},
		VerificationMethods: json.RawMessage(`{"atproto":"did:key:zSigning"}`),
		Services:            json.RawMessage(`{"atproto_pds":{"endpoint":"https://b.com"}}`),
	}
	service := newTestService(testInstance, &fakeAgentFactory{})

	privateKey, identityError := service.MigrateIdentity(context.Background(), sessionPair(oldAgent, newAgent), "123456")
	require.NoError(testInstance, identityError)
	require.Equal(testInstance, testRecoveryKeyHexConstant, privateKey)

	require.NotNil(testInstance, oldAgent.signedInput)
	require.Equal(testInstance, "123456", oldAgent.signedInput.Token)
	require.Equal(testInstance, []string{testRecoveryDIDConstant, "did:key:zServer"}, oldAgent.signedInput.RotationKeys)
	require.Equal(testInstance, newAgent.recommended.AlsoKnownAs, oldAgent.signedInput.AlsoKnownAs)
	require.JSONEq(testInstance, `{"sig":"signed"}`, string(newAgent.submittedOperation))
}

func TestMigrateIdentityFailures(testInstance *testing.T) {
	testCases := []struct {
		name          string
		recommended   xrpc.DIDCredentials
		generator     fixedKeyGenerator
		signFailure   error
		expectedError error
	}{
		{name: "missing_rotation_keys", recommended: xrpc.DIDCredentials{}, expectedError: operations.ErrRotationKeysMissing},
		{name: "key_generation", recommended: xrpc.DIDCredentials{RotationKeys: []string{}}, generator: fixedKeyGenerator{failure: errTestEndpoint}, expectedError: errTestEndpoint},
		{name: "sign_failure", recommended: xrpc.DIDCredentials{RotationKeys: []string{}}, signFailure: errTestEndpoint, expectedError: errTestEndpoint},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			oldAgent := newFakeAgent("old")
			if testCase.signFailure != nil {
				oldAgent.failures["sign_plc_operation"] = testCase.signFailure
			}
			newAgent := newFakeAgent("new")
			newAgent.recommended = testCase.recommended
			service, creationError := operations.NewService(operations.ServiceDependencies{AgentFactory: &fakeAgentFactory{}, KeyGenerator: testCase.generator})
			require.NoError(testInstance, creationError)

			privateKey, identityError := service.MigrateIdentity(context.Background(), sessionPair(oldAgent, newAgent), "123456")
			require.ErrorIs(testInstance, identityError, testCase.expectedError)
			require.Empty(testInstance, privateKey)
			require.Nil(testInstance, newAgent.submittedOperation)
		})
	}
}

func TestCheckStatusConvertsBothEndpoints(testInstance *testing.T) {
	oldAgent := newFakeAgent("old")
	oldAgent.status = xrpc.AccountStatus{Activated: true, ValidDID: true, RepoBlocks: 12, ExpectedBlobs: 3, ImportedBlobs: 3}
	newAgent := newFakeAgent("new")
	newAgent.status = xrpc.AccountStatus{ValidDID: true, RepoCommit: "bafy", RepoRev: "3l2", RepoBlocks: 12, IndexedRecords: 5, PrivateStateValues: 1, ExpectedBlobs: 3, ImportedBlobs: 2}
	service := newTestService(testInstance, &fakeAgentFactory{})

	statuses, statusError := service.CheckStatus(context.Background(), sessionPair(oldAgent, newAgent))
	require.NoError(testInstance, statusError)
	require.Equal(testInstance, migration.AccountStatuses{
		Old: migration.AccountStatus{Activated: true, ValidDID: true, RepoBlocks: 12, ExpectedBlobs: 3, ImportedBlobs: 3},
		New: migration.AccountStatus{ValidDID: true, RepoCommit: "bafy", RepoRev: "3l2", RepoBlocks: 12, IndexedRecords: 5, PrivateStateValues: 1, ExpectedBlobs: 3, ImportedBlobs: 2},
	}, statuses)
}

func TestFinalizeReauthenticatesBeforeDeactivation(testInstance *testing.T) {
	oldAgent := newFakeAgent("old")
	newAgent := newFakeAgent("new")
	freshOldAgent := newFakeAgent("fresh-old")
	factory := &fakeAgentFactory{agentsByURL: map[string][]*fakeAgent{testOldPDSURLConstant: {freshOldAgent}}}
	service := newTestService(testInstance, factory)

	require.NoError(testInstance, service.Finalize(context.Background(), sessionPair(oldAgent, newAgent), testCredentials()))

	require.Empty(testInstance, oldAgent.calls)
	require.Equal(testInstance, []string{testOldPDSURLConstant}, factory.created)
	require.Equal(testInstance, []string{"login", "deactivate_account", "logout"}, freshOldAgent.calls)
	require.Equal(testInstance, []string{"activate_account", "update_handle"}, newAgent.calls)
	require.Equal(testInstance, testFinalHandleConstant, newAgent.updatedHandle)
}

func TestFinalizeSkipsHandleUpdateForSingleHandle(testInstance *testing.T) {
	newAgent := newFakeAgent("new")
	factory := &fakeAgentFactory{agentsByURL: map[string][]*fakeAgent{testOldPDSURLConstant: {newFakeAgent("fresh-old")}}}
	service := newTestService(testInstance, factory)
	singleHandleCredentials := testCredentials()
	singleHandleCredentials.NewHandle = credentials.SingleHandle("alice.b.com")

	require.NoError(testInstance, service.Finalize(context.Background(), sessionPair(newFakeAgent("old"), newAgent), singleHandleCredentials))
	require.Equal(testInstance, []string{"activate_account"}, newAgent.calls)
}

func TestFinalizeReportsHandleUpdateFailure(testInstance *testing.T) {
	newAgent := newFakeAgent("new")
	newAgent.failures["update_handle"] = errTestEndpoint
	factory := &fakeAgentFactory{agentsByURL: map[string][]*fakeAgent{testOldPDSURLConstant: {newFakeAgent("fresh-old")}}}
	service := newTestService(testInstance, factory)

	finalizeError := service.Finalize(context.Background(), sessionPair(newFakeAgent("old"), newAgent), testCredentials())

	var handleUpdateError migration.HandleUpdateError
	require.ErrorAs(testInstance, finalizeError, &handleUpdateError)
	require.Equal(testInstance, testTemporaryHandleConstant, handleUpdateError.TemporaryHandle)
	require.Equal(testInstance, testFinalHandleConstant, handleUpdateError.FinalHandle)
	require.ErrorIs(testInstance, finalizeError, errTestEndpoint)
}

func TestFinalizeStopsWhenReauthenticationFails(testInstance *testing.T) {
	newAgent := newFakeAgent("new")
	freshOldAgent := newFakeAgent("fresh-old")
	freshOldAgent.failures["login"] = errTestEndpoint
	factory := &fakeAgentFactory{agentsByURL: map[string][]*fakeAgent{testOldPDSURLConstant: {freshOldAgent}}}
	service := newTestService(testInstance, factory)

	finalizeError := service.Finalize(context.Background(), sessionPair(newFakeAgent("old"), newAgent), testCredentials())
	require.ErrorIs(testInstance, finalizeError, errTestEndpoint)
	require.Equal(testInstance, []string{"login"}, freshOldAgent.calls)
	require.Equal(testInstance, []string{"activate_account"}, newAgent.calls)
}
