package xrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	xrpcPathPrefixConstant             = "xrpc"
	headerAuthorizationConstant        = "Authorization"
	headerContentTypeConstant          = "Content-Type"
	headerAcceptConstant               = "Accept"
	headerUserAgentConstant            = "User-Agent"
	bearerPrefixConstant               = "Bearer "
	jsonContentTypeConstant            = "application/json"
	carContentTypeConstant             = "application/vnd.ipld.car"
	octetStreamContentTypeConstant     = "application/octet-stream"
	serviceURLRequiredMessageConstant  = "xrpc service url must be provided"
	serviceURLInvalidTemplateConstant  = "xrpc service url %q is invalid: %w"
	requestBuildTemplateConstant       = "unable to build %s request: %w"
	requestEncodeTemplateConstant      = "unable to encode %s request body: %w"
	requestFailedTemplateConstant      = "%s request failed: %w"
	responseDecodeTemplateConstant     = "unable to decode %s response: %w"
	logMessageRequestCompletedConstant = "XRPC request completed"
	logFieldMethodConstant             = "method"
	logFieldServiceConstant            = "service"
	logFieldStatusConstant             = "status"
	maximumErrorBodyBytesConstant      = 64 * 1024
	expiredTokenErrorNameConstant      = "ExpiredToken"
	accessTokenExpirySkewConstant      = 30 * time.Second
	sessionRefreshTemplateConstant     = "%w (session refresh failed: %w)"
)

// Transport performs HTTP requests for a Client.
type Transport interface {
	Do(request *http.Request) (*http.Response, error)
}

// ClientConfiguration describes how a Client reaches an endpoint.
type ClientConfiguration struct {
	ServiceURL string
	Transport  Transport
	Logger     *zap.Logger
	UserAgent  string
}

// Client speaks the XRPC protocol against a single endpoint. It keeps at most
// one authenticated session.
type Client struct {
	serviceURL *url.URL
	transport  Transport
	logger     *zap.Logger
	userAgent  string

	sessionMutex sync.RWMutex
	session      *SessionInfo
}

// NewClient validates the configuration and constructs a Client.
func NewClient(configuration ClientConfiguration) (*Client, error) {
	trimmedServiceURL := strings.TrimSpace(configuration.ServiceURL)
	if len(trimmedServiceURL) == 0 {
		return nil, errors.New(serviceURLRequiredMessageConstant)
	}
	parsedServiceURL, parseError := url.Parse(trimmedServiceURL)
	if parseError != nil {
		return nil, fmt.Errorf(serviceURLInvalidTemplateConstant, trimmedServiceURL, parseError)
	}
	if len(parsedServiceURL.Scheme) == 0 || len(parsedServiceURL.Host) == 0 {
		return nil, fmt.Errorf(serviceURLInvalidTemplateConstant, trimmedServiceURL, errors.New(serviceURLRequiredMessageConstant))
	}

	transport := configuration.Transport
	if transport == nil {
		transport = http.DefaultClient
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		serviceURL: parsedServiceURL,
		transport:  transport,
		logger:     logger,
		userAgent:  configuration.UserAgent,
	}, nil
}

// ServiceURL returns the endpoint the client talks to.
func (client *Client) ServiceURL() string {
	return client.serviceURL.String()
}

type callOptions struct {
	httpMethod  string
	query       url.Values
	body        io.Reader
	contentType string
	bearerToken string
	accept      string
}

func (client *Client) endpoint(method string, query url.Values) string {
	endpointURL := client.serviceURL.JoinPath(xrpcPathPrefixConstant, method)
	if len(query) > 0 {
		endpointURL.RawQuery = query.Encode()
	}
	return endpointURL.String()
}

// send performs the call and returns the response when the endpoint answered
// with a 2xx status. The caller closes the body.
//
// Calls authorized by the stored session refresh it once when the access
// token has expired: ahead of the call when the token's own expiry says so,
// or after an ExpiredToken answer when the request body can be replayed.
func (client *Client) send(executionContext context.Context, method string, options callOptions) (*http.Response, error) {
	if len(options.bearerToken) > 0 {
		return client.sendOnce(executionContext, method, options, options.bearerToken)
	}

	if client.accessTokenExpired() {
		if refreshError := client.refreshSession(executionContext); refreshError != nil {
			client.logger.Debug(logMessageSessionRefreshFailedConstant, zap.String(logFieldMethodConstant, method), zap.Error(refreshError))
		}
	}

	response, sendError := client.sendOnce(executionContext, method, options, client.accessToken())
	if sendError == nil || !isExpiredTokenError(sendError) || !rewindBody(options.body) {
		return response, sendError
	}
	if refreshError := client.refreshSession(executionContext); refreshError != nil {
		return nil, fmt.Errorf(sessionRefreshTemplateConstant, sendError, refreshError)
	}
	return client.sendOnce(executionContext, method, options, client.accessToken())
}

func (client *Client) sendOnce(executionContext context.Context, method string, options callOptions, bearerToken string) (*http.Response, error) {
	request, requestError := http.NewRequestWithContext(executionContext, options.httpMethod, client.endpoint(method, options.query), options.body)
	if requestError != nil {
		return nil, fmt.Errorf(requestBuildTemplateConstant, method, requestError)
	}

	accept := options.accept
	if len(accept) == 0 {
		accept = jsonContentTypeConstant
	}
	request.Header.Set(headerAcceptConstant, accept)
	if len(options.contentType) > 0 {
		request.Header.Set(headerContentTypeConstant, options.contentType)
	}
	if len(client.userAgent) > 0 {
		request.Header.Set(headerUserAgentConstant, client.userAgent)
	}

	if len(bearerToken) > 0 {
		request.Header.Set(headerAuthorizationConstant, bearerPrefixConstant+bearerToken)
	}

	response, transportError := client.transport.Do(request)
	if transportError != nil {
		return nil, fmt.Errorf(requestFailedTemplateConstant, method, transportError)
	}

	client.logger.Debug(
		logMessageRequestCompletedConstant,
		zap.String(logFieldMethodConstant, method),
		zap.String(logFieldServiceConstant, client.serviceURL.Host),
		zap.Int(logFieldStatusConstant, response.StatusCode),
	)

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		defer func() { _ = response.Body.Close() }()
		return nil, newResponseError(method, response)
	}
	return response, nil
}

func isExpiredTokenError(sendError error) bool {
	var responseError ResponseError
	if !errors.As(sendError, &responseError) {
		return false
	}
	if responseError.StatusCode != http.StatusBadRequest && responseError.StatusCode != http.StatusUnauthorized {
		return false
	}
	return responseError.ErrorName == expiredTokenErrorNameConstant
}

// rewindBody reports whether body can be sent again.
func rewindBody(body io.Reader) bool {
	if body == nil {
		return true
	}
	seeker, seekable := body.(io.Seeker)
	if !seekable {
		return false
	}
	_, seekError := seeker.Seek(0, io.SeekStart)
	return seekError == nil
}

// query performs a GET call and decodes the JSON result into result when it is non-nil.
func (client *Client) query(executionContext context.Context, method string, parameters url.Values, result any) error {
	response, sendError := client.send(executionContext, method, callOptions{httpMethod: http.MethodGet, query: parameters})
	if sendError != nil {
		return sendError
	}
	return decodeResponse(method, response, result)
}

// procedure performs a POST call with a JSON body and decodes the JSON result into result when it is non-nil.
func (client *Client) procedure(executionContext context.Context, method string, input any, result any) error {
	return client.procedureWithToken(executionContext, method, input, result, "")
}

func (client *Client) procedureWithToken(executionContext context.Context, method string, input any, result any, bearerToken string) error {
	options := callOptions{httpMethod: http.MethodPost, bearerToken: bearerToken}
	if input != nil {
		encodedInput, encodeError := json.Marshal(input)
		if encodeError != nil {
			return fmt.Errorf(requestEncodeTemplateConstant, method, encodeError)
		}
		options.body = bytes.NewReader(encodedInput)
		options.contentType = jsonContentTypeConstant
	}

	response, sendError := client.send(executionContext, method, options)
	if sendError != nil {
		return sendError
	}
	return decodeResponse(method, response, result)
}

// upload performs a POST call whose body is streamed from payload.
func (client *Client) upload(executionContext context.Context, method string, payload io.Reader, contentType string, result any) error {
	if len(contentType) == 0 {
		contentType = octetStreamContentTypeConstant
	}
	response, sendError := client.send(executionContext, method, callOptions{httpMethod: http.MethodPost, body: payload, contentType: contentType})
	if sendError != nil {
		return sendError
	}
	return decodeResponse(method, response, result)
}

func decodeResponse(method string, response *http.Response, result any) error {
	defer func() { _ = response.Body.Close() }()
	if result == nil {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	if decodeError := json.NewDecoder(response.Body).Decode(result); decodeError != nil {
		return fmt.Errorf(responseDecodeTemplateConstant, method, decodeError)
	}
	return nil
}
