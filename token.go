package gatekeeper

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"

	"github.com/google/uuid"
	"github.com/monzo/terrors"
)

const (
	// SessionTokenCookieName is the cookie under which frontend deployments carry the
	// session token.
	SessionTokenCookieName = "gatekeeper-sessiontoken"
	// SessionTokenHeaderName is the header under which API deployments carry the
	// session token.
	SessionTokenHeaderName = "X-Gatekeeper-Session-Token"
	// XSRFTokenHeaderName carries the anti-forgery token on state-changing requests.
	XSRFTokenHeaderName = "X-Gatekeeper-Xsrf-Token"
)

var userTokenRegexp = regexp.MustCompile(`^[0-9a-zA-Z_-]+$`)

// A SessionToken identifies a session and, once the user has logged in, the access
// credential the external provider issued for them. A real user might have several such
// tokens over time, but no two users ever share one.
//
// Tokens are immutable values: binding a new credential produces a new token rather
// than mutating an old one.
type SessionToken struct {
	SessionID string `json:"sessionId"`
	// UserToken is empty until the login flow binds a credential to the session.
	UserToken string `json:"userToken,omitempty"`
}

// HasUserToken reports whether a user credential is bound to the token.
func (t SessionToken) HasUserToken() bool {
	return t.UserToken != ""
}

func (t SessionToken) validate() error {
	if _, err := uuid.Parse(t.SessionID); err != nil {
		return terrors.BadRequest("bad_session_token", fmt.Sprintf("Expected a UUID session id: %v", err), nil)
	}
	if t.UserToken != "" && !userTokenRegexp.MatchString(t.UserToken) {
		return terrors.BadRequest("bad_session_token", "User token should only contain alphanumerics", nil)
	}
	return nil
}

// Encode renders the wire form of the token: the JSON object carried by the session
// header and, query-escaped, by the session cookie.
func (t SessionToken) Encode() (string, error) {
	if err := t.validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "", terrors.Wrap(err, nil)
	}
	return string(b), nil
}

// EncodeForCookie renders the token in a cookie-safe envelope around the JSON wire form.
func (t SessionToken) EncodeForCookie() (string, error) {
	s, err := t.Encode()
	if err != nil {
		return "", err
	}
	return url.QueryEscape(s), nil
}

// ParseSessionToken decodes the JSON wire form of a token, rejecting malformed session
// ids and credentials. A userToken field that is present must carry a credential; only
// omitting it means "not logged in".
func ParseSessionToken(raw string) (SessionToken, error) {
	wire := struct {
		SessionID string  `json:"sessionId"`
		UserToken *string `json:"userToken"`
	}{}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return SessionToken{}, terrors.BadRequest("bad_session_token", fmt.Sprintf("Could not decode session token: %v", err), nil)
	}
	token := SessionToken{SessionID: wire.SessionID}
	if wire.UserToken != nil {
		if *wire.UserToken == "" {
			return SessionToken{}, terrors.BadRequest("bad_session_token", "User token must not be empty", nil)
		}
		token.UserToken = *wire.UserToken
	}
	if err := token.validate(); err != nil {
		return SessionToken{}, err
	}
	return token, nil
}

// ParseSessionTokenFromCookie decodes a token from its cookie envelope.
func ParseSessionTokenFromCookie(raw string) (SessionToken, error) {
	s, err := url.QueryUnescape(raw)
	if err != nil {
		return SessionToken{}, terrors.BadRequest("bad_session_token", fmt.Sprintf("Could not unescape session token cookie: %v", err), nil)
	}
	return ParseSessionToken(s)
}
