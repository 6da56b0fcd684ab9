package gatekeeper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	mapset "github.com/deckarep/golang-set"
	"github.com/monzo/terrors"
	"github.com/monzo/typhon"
)

// An IdentityClient is the typed surface of the remote identity service: the system of
// record for sessions and users. A client is an immutable value; WithContext returns a
// copy bound to the given token and leaves the receiver untouched, so one client may
// serve any number of concurrent requests.
//
// No call is retried here. A failed remote call surfaces immediately as a terror
// carrying one of the identity codes in errors.go.
type IdentityClient interface {
	// WithContext returns a client bound to the given session token. Subsequent calls
	// on the returned client present the token to the identity service.
	WithContext(token SessionToken) IdentityClient

	// GetOrCreateSession asks the service for a fresh session, or the one matching the
	// bound token if there is one.
	GetOrCreateSession(ctx context.Context) (SessionToken, *Session, error)
	// GetSession fetches the session for the bound token.
	GetSession(ctx context.Context) (*Session, error)
	// ExpireSession removes the session for the bound token. The session is needed for
	// its anti-forgery token, which the service demands on every mutation.
	ExpireSession(ctx context.Context, session *Session) error
	// AgreeToCookiePolicyForSession records the user's acceptance of the cookie policy.
	AgreeToCookiePolicyForSession(ctx context.Context, session *Session) (*Session, error)
	// GetOrCreateUserOnSession links the credential on the bound token to a user
	// account, creating the account on first login.
	GetOrCreateUserOnSession(ctx context.Context, session *Session) (SessionToken, *Session, error)
	// GetUserOnSession fetches the session together with its linked user.
	GetUserOnSession(ctx context.Context) (*Session, error)

	// GetUsersInfo fetches the public views of the given users. Duplicate ids are
	// collapsed before the query, keeping the order of first occurrence.
	GetUsersInfo(ctx context.Context, ids []int64) ([]PublicUser, error)
}

// Wire shapes of the identity service's responses.
type sessionAndTokenResponse struct {
	SessionToken SessionToken `json:"sessionToken"`
	Session      *Session     `json:"session"`
}

type sessionResponse struct {
	Session *Session `json:"session"`
}

type usersInfoResponse struct {
	UsersInfo []PublicUser `json:"usersInfo"`
}

type identityClient struct {
	env    Environment
	origin string
	host   string
	send   typhon.Service
	token  *SessionToken
}

// NewIdentityClient returns a client for the identity service at host, sending via
// Typhon's default client. origin is presented as the Origin header on every call.
func NewIdentityClient(env Environment, origin, host string) IdentityClient {
	return NewIdentityClientVia(env, origin, host, typhon.Client)
}

// NewIdentityClientVia is NewIdentityClient with the transport Service made explicit.
func NewIdentityClientVia(env Environment, origin, host string, send typhon.Service) IdentityClient {
	return identityClient{
		env:    env,
		origin: origin,
		host:   host,
		send:   send}
}

func (c identityClient) WithContext(token SessionToken) IdentityClient {
	// c is a copy already; rebinding its token cannot affect the receiver.
	c.token = &token
	return c
}

func (c identityClient) GetOrCreateSession(ctx context.Context) (SessionToken, *Session, error) {
	rsp, err := c.call(ctx, http.MethodPost, "/session", nil)
	if err != nil {
		return SessionToken{}, nil, err
	}
	// The service cannot 401 a session bootstrap; any non-OK is a plain failure.
	if rsp.StatusCode != http.StatusOK {
		return SessionToken{}, nil, serviceResponseError(rsp)
	}
	out := sessionAndTokenResponse{}
	if err := decodeSessionAndToken(rsp, &out); err != nil {
		return SessionToken{}, nil, err
	}
	return out.SessionToken, out.Session, nil
}

func (c identityClient) GetSession(ctx context.Context) (*Session, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	rsp, err := c.call(ctx, http.MethodGet, "/session", nil)
	if err != nil {
		return nil, err
	}
	return decodeSessionOrError(rsp)
}

func (c identityClient) ExpireSession(ctx context.Context, session *Session) error {
	if err := c.requireToken(); err != nil {
		return err
	}
	rsp, err := c.call(ctx, http.MethodDelete, "/session", session)
	if err != nil {
		return err
	}
	switch rsp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return unauthorizedError()
	default:
		return serviceResponseError(rsp)
	}
}

func (c identityClient) AgreeToCookiePolicyForSession(ctx context.Context, session *Session) (*Session, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	rsp, err := c.call(ctx, http.MethodPost, "/session/agree-to-cookie-policy", session)
	if err != nil {
		return nil, err
	}
	return decodeSessionOrError(rsp)
}

func (c identityClient) GetOrCreateUserOnSession(ctx context.Context, session *Session) (SessionToken, *Session, error) {
	if err := c.requireToken(); err != nil {
		return SessionToken{}, nil, err
	}
	rsp, err := c.call(ctx, http.MethodPost, "/user", session)
	if err != nil {
		return SessionToken{}, nil, err
	}
	switch rsp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return SessionToken{}, nil, unauthorizedError()
	default:
		return SessionToken{}, nil, serviceResponseError(rsp)
	}
	out := sessionAndTokenResponse{}
	if err := decodeSessionAndToken(rsp, &out); err != nil {
		return SessionToken{}, nil, err
	}
	return out.SessionToken, out.Session, nil
}

func (c identityClient) GetUserOnSession(ctx context.Context) (*Session, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	rsp, err := c.call(ctx, http.MethodGet, "/user", nil)
	if err != nil {
		return nil, err
	}
	return decodeSessionOrError(rsp)
}

func (c identityClient) GetUsersInfo(ctx context.Context, ids []int64) ([]PublicUser, error) {
	seen := mapset.NewSet()
	deduped := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen.Add(id) {
			deduped = append(deduped, id)
		}
	}
	encoded, err := json.Marshal(deduped)
	if err != nil {
		return nil, terrors.Wrap(err, nil)
	}

	rsp, err := c.call(ctx, http.MethodGet, "/users-info?ids="+url.QueryEscape(string(encoded)), nil)
	if err != nil {
		return nil, err
	}
	// Read-only; a 401 here is no more special than any other failure.
	if rsp.StatusCode != http.StatusOK {
		return nil, serviceResponseError(rsp)
	}
	out := usersInfoResponse{}
	if err := rsp.Decode(&out); err != nil {
		return nil, decodeError(err)
	}
	return out.UsersInfo, nil
}

func (c identityClient) requireToken() error {
	if c.token == nil {
		return terrors.PreconditionFailed("no_session_token", "No session token bound to client", nil)
	}
	return nil
}

// call issues one request to the identity service. The bound token travels as a header;
// for mutating calls the session's anti-forgery token is echoed as a header too.
// Transport failures are classified here; non-OK statuses are left to the caller, which
// knows whether a 401 is meaningful for its operation.
func (c identityClient) call(ctx context.Context, method, path string, session *Session) (typhon.Response, error) {
	req := typhon.NewRequest(ctx, method, fmt.Sprintf("%s://%s%s", c.env.scheme(), c.host, path), nil)
	req.Header.Set("Origin", c.origin)
	req.Header.Set("Cache-Control", "no-cache")
	if c.token != nil {
		encoded, err := c.token.Encode()
		if err != nil {
			return typhon.Response{}, terrors.Augment(err, "Bad session token bound to client", nil)
		}
		req.Header.Set(SessionTokenHeaderName, encoded)
	}
	if session != nil {
		req.Header.Set(XSRFTokenHeaderName, session.XSRFToken)
	}

	rsp := req.SendVia(c.send).Response()
	if rsp.Response == nil {
		err := rsp.Error
		if err == nil {
			err = terrors.InternalService("", "No response", nil)
		}
		return rsp, terrors.New(ErrIdentityUnavailable, fmt.Sprintf("Request failed because '%v'", err), nil)
	}
	return rsp, nil
}

func unauthorizedError() error {
	return terrors.Unauthorized("identity", "User is not authorized", nil)
}

func serviceResponseError(rsp typhon.Response) error {
	return terrors.New(ErrIdentityResponse, fmt.Sprintf("Service response %d", rsp.StatusCode), map[string]string{
		"status": fmt.Sprintf("%d", rsp.StatusCode)})
}

func decodeError(err error) error {
	return terrors.New(ErrIdentityBody, fmt.Sprintf("JSON decoding error because '%v'", err), nil)
}

// decodeSessionOrError handles the common GET-shaped outcome: 401 is an authorization
// rejection, any other non-OK a service failure, and an OK body must hold a valid
// session.
func decodeSessionOrError(rsp typhon.Response) (*Session, error) {
	switch rsp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, unauthorizedError()
	default:
		return nil, serviceResponseError(rsp)
	}
	out := sessionResponse{}
	if err := rsp.Decode(&out); err != nil {
		return nil, decodeError(err)
	}
	if out.Session == nil {
		return nil, terrors.New(ErrIdentityBody, "Response carried no session", nil)
	}
	if err := out.Session.validate(); err != nil {
		return nil, decodeError(err)
	}
	return out.Session, nil
}

func decodeSessionAndToken(rsp typhon.Response, out *sessionAndTokenResponse) error {
	if err := rsp.Decode(out); err != nil {
		return decodeError(err)
	}
	if out.Session == nil {
		return terrors.New(ErrIdentityBody, "Response carried no session", nil)
	}
	if err := out.SessionToken.validate(); err != nil {
		return decodeError(err)
	}
	if err := out.Session.validate(); err != nil {
		return decodeError(err)
	}
	return nil
}
