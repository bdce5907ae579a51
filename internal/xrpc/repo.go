package xrpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
)

const (
	methodGetRepoConstant        = "com.atproto.sync.getRepo"
	methodImportRepoConstant     = "com.atproto.repo.importRepo"
	methodListBlobsConstant      = "com.atproto.sync.listBlobs"
	methodGetBlobConstant        = "com.atproto.sync.getBlob"
	methodUploadBlobConstant     = "com.atproto.repo.uploadBlob"
	methodGetPreferencesConstant = "app.bsky.actor.getPreferences"
	methodPutPreferencesConstant = "app.bsky.actor.putPreferences"
	parameterDIDConstant         = "did"
	parameterCIDConstant         = "cid"
	parameterCursorConstant      = "cursor"
	anyContentTypeConstant       = "*/*"
)

// BlobPage is one page of listBlobs. An empty Cursor marks the last page.
type BlobPage struct {
	CIDs   []string `json:"cids"`
	Cursor string   `json:"cursor,omitempty"`
}

// Blob is a downloaded blob. The caller closes Body.
type Blob struct {
	Body        io.ReadCloser
	ContentType string
}

// Preferences holds the account preferences without interpreting them.
type Preferences struct {
	Preferences []json.RawMessage `json:"preferences"`
}

// GetRepo streams the repository of did as a CAR file. The caller closes the reader.
func (client *Client) GetRepo(executionContext context.Context, did string) (io.ReadCloser, error) {
	parameters := url.Values{}
	parameters.Set(parameterDIDConstant, did)
	response, sendError := client.send(executionContext, methodGetRepoConstant, callOptions{
		httpMethod: http.MethodGet,
		query:      parameters,
		accept:     carContentTypeConstant,
	})
	if sendError != nil {
		return nil, sendError
	}
	return response.Body, nil
}

// ImportRepo uploads a CAR file into the authenticated account.
func (client *Client) ImportRepo(executionContext context.Context, repository io.Reader) error {
	if sessionError := client.requireSession(); sessionError != nil {
		return sessionError
	}
	return client.upload(executionContext, methodImportRepoConstant, repository, carContentTypeConstant, nil)
}

// ListBlobs returns one page of blob CIDs of did starting at cursor.
func (client *Client) ListBlobs(executionContext context.Context, did string, cursor string) (BlobPage, error) {
	parameters := url.Values{}
	parameters.Set(parameterDIDConstant, did)
	if len(cursor) > 0 {
		parameters.Set(parameterCursorConstant, cursor)
	}
	var page BlobPage
	if callError := client.query(executionContext, methodListBlobsConstant, parameters, &page); callError != nil {
		return BlobPage{}, callError
	}
	return page, nil
}

// GetBlob streams a single blob together with the content type the endpoint reports.
func (client *Client) GetBlob(executionContext context.Context, did string, cid string) (Blob, error) {
	parameters := url.Values{}
	parameters.Set(parameterDIDConstant, did)
	parameters.Set(parameterCIDConstant, cid)
	response, sendError := client.send(executionContext, methodGetBlobConstant, callOptions{
		httpMethod: http.MethodGet,
		query:      parameters,
		accept:     anyContentTypeConstant,
	})
	if sendError != nil {
		return Blob{}, sendError
	}
	return Blob{Body: response.Body, ContentType: response.Header.Get(headerContentTypeConstant)}, nil
}

// UploadBlob stores a blob for the authenticated account.
func (client *Client) UploadBlob(executionContext context.Context, blob io.Reader, contentType string) error {
	if sessionError := client.requireSession(); sessionError != nil {
		return sessionError
	}
	return client.upload(executionContext, methodUploadBlobConstant, blob, contentType, nil)
}

// GetPreferences reads the preferences of the authenticated account.
func (client *Client) GetPreferences(executionContext context.Context) (Preferences, error) {
	if sessionError := client.requireSession(); sessionError != nil {
		return Preferences{}, sessionError
	}
	var preferences Preferences
	if callError := client.query(executionContext, methodGetPreferencesConstant, nil, &preferences); callError != nil {
		return Preferences{}, callError
	}
	if preferences.Preferences == nil {
		preferences.Preferences = []json.RawMessage{}
	}
	return preferences, nil
}

// PutPreferences replaces the preferences of the authenticated account.
func (client *Client) PutPreferences(executionContext context.Context, preferences Preferences) error {
	if sessionError := client.requireSession(); sessionError != nil {
		return sessionError
	}
	if preferences.Preferences == nil {
		preferences.Preferences = []json.RawMessage{}
	}
	return client.procedure(executionContext, methodPutPreferencesConstant, preferences, nil)
}
