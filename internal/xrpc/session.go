package xrpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	methodCreateSessionConstant            = "com.atproto.server.createSession"
	methodDeleteSessionConstant            = "com.atproto.server.deleteSession"
	methodRefreshSessionConstant           = "com.atproto.server.refreshSession"
	refreshTokenMissingMessageConstant     = "no refresh token is available"
	logMessageSessionRefreshedConstant     = "XRPC session refreshed"
	logMessageSessionRefreshFailedConstant = "XRPC session refresh failed"
	accessTokenParseTemplateConstant       = "unable to inspect access token: %w"
	loginFailedTemplateConstant            = "login as %q failed: %w"
)

// SessionInfo is the authenticated session returned by an endpoint.
type SessionInfo struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

type createSessionInput struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Login opens a session for identifier. When the endpoint omits the account
// DID it is read from the subject of the access token.
func (client *Client) Login(executionContext context.Context, identifier string, password string) error {
	var session SessionInfo
	input := createSessionInput{Identifier: identifier, Password: password}
	if callError := client.procedure(executionContext, methodCreateSessionConstant, input, &session); callError != nil {
		return fmt.Errorf(loginFailedTemplateConstant, identifier, callError)
	}

	if len(session.DID) == 0 && len(session.AccessJwt) > 0 {
		subject, subjectError := tokenSubject(session.AccessJwt)
		if subjectError != nil {
			return fmt.Errorf(loginFailedTemplateConstant, identifier, subjectError)
		}
		session.DID = subject
	}
	if len(session.DID) == 0 {
		return fmt.Errorf(loginFailedTemplateConstant, identifier, ErrMissingAccountDID)
	}

	client.setSession(&session)
	return nil
}

// Logout deletes the current session on the endpoint. The local session is
// discarded even when the endpoint refuses the call.
func (client *Client) Logout(executionContext context.Context) error {
	session := client.setSession(nil)
	if session == nil {
		return nil
	}
	response, sendError := client.send(executionContext, methodDeleteSessionConstant, callOptions{
		httpMethod:  http.MethodPost,
		bearerToken: session.RefreshJwt,
	})
	if sendError != nil {
		return sendError
	}
	return decodeResponse(methodDeleteSessionConstant, response, nil)
}

// refreshSession exchanges the refresh token for a new session.
func (client *Client) refreshSession(executionContext context.Context) error {
	current := client.Session()
	if current == nil || len(current.RefreshJwt) == 0 {
		return errors.New(refreshTokenMissingMessageConstant)
	}

	var refreshed SessionInfo
	if callError := client.procedureWithToken(executionContext, methodRefreshSessionConstant, nil, &refreshed, current.RefreshJwt); callError != nil {
		return callError
	}
	if len(refreshed.DID) == 0 {
		refreshed.DID = current.DID
	}
	if len(refreshed.RefreshJwt) == 0 {
		refreshed.RefreshJwt = current.RefreshJwt
	}

	client.setSession(&refreshed)
	client.logger.Debug(logMessageSessionRefreshedConstant, zap.String(logFieldServiceConstant, client.serviceURL.Host))
	return nil
}

// Session returns a copy of the current session, or nil when logged out.
func (client *Client) Session() *SessionInfo {
	client.sessionMutex.RLock()
	defer client.sessionMutex.RUnlock()
	if client.session == nil {
		return nil
	}
	session := *client.session
	return &session
}

// DID returns the DID of the authenticated account, or an empty string.
func (client *Client) DID() string {
	session := client.Session()
	if session == nil {
		return ""
	}
	return session.DID
}

func (client *Client) accessToken() string {
	client.sessionMutex.RLock()
	defer client.sessionMutex.RUnlock()
	if client.session == nil {
		return ""
	}
	return client.session.AccessJwt
}

// setSession replaces the current session and returns the previous one.
func (client *Client) setSession(session *SessionInfo) *SessionInfo {
	client.sessionMutex.Lock()
	defer client.sessionMutex.Unlock()
	previous := client.session
	client.session = session
	return previous
}

func (client *Client) requireSession() error {
	if len(client.accessToken()) == 0 {
		return ErrNotAuthenticated
	}
	return nil
}

// accessTokenExpired reports whether the access token carries an expiry that
// has passed or is about to. Tokens without a readable expiry never expire here.
func (client *Client) accessTokenExpired() bool {
	accessToken := client.accessToken()
	if len(accessToken) == 0 {
		return false
	}
	claims, parseError := parseUnverifiedClaims(accessToken)
	if parseError != nil || claims.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(accessTokenExpirySkewConstant).After(claims.ExpiresAt.Time)
}

func parseUnverifiedClaims(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, parseError := jwt.NewParser().ParseUnverified(token, claims); parseError != nil {
		return nil, fmt.Errorf(accessTokenParseTemplateConstant, parseError)
	}
	return claims, nil
}

func tokenSubject(token string) (string, error) {
	claims, parseError := parseUnverifiedClaims(token)
	if parseError != nil {
		return "", parseError
	}
	return claims.Subject, nil
}
