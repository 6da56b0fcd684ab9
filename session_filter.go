package gatekeeper

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/monzo/slog"
	"github.com/monzo/terrors"
	"github.com/monzo/typhon"
)

// SessionLevel states how much of a session a route requires.
type SessionLevel int

const (
	// LevelNone: a session isn't necessary. If the request carries one it is used; if
	// not, a fresh one is created, so downstream handlers always see a session.
	LevelNone SessionLevel = iota
	// LevelSession: a session must exist.
	LevelSession
	// LevelSessionAndUser: a session linked to a user account must exist.
	LevelSessionAndUser
)

// TokenSource states where the session token travels on a request.
type TokenSource int

const (
	// SourceCookie is used by frontend deployments.
	SourceCookie TokenSource = iota
	// SourceHeader is used by API deployments.
	SourceHeader
)

// Far enough ahead that the cookie never expires client side; real expiry is enforced
// by the identity service.
const sessionCookieLifetime = 10000 * 24 * time.Hour

// Each level's requirements, spelled out rather than implied by ordering.
var levelRequirements = map[SessionLevel]struct {
	mustHaveSession bool
	mustHaveUser    bool
}{
	LevelNone:           {false, false},
	LevelSession:        {true, false},
	LevelSessionAndUser: {true, true},
}

// SessionFilter resolves a request's session token into an authoritative session before
// the wrapped service runs. Exactly one of two things happens: the request is annotated
// with the token and session, the token is propagated onto the response, and the
// service is invoked; or the request is rejected with a definite status and the service
// never runs. For fixed inputs the outcome is the same on every invocation; nothing
// here retries or randomises.
//
// Rejections: a token that is present but won't decode is a 400, as is a missing token
// when the level demands one (without consulting the service), or a token without a
// user credential when the level demands a linked user. A remote 401 surfaces as 401.
// Any other identity service failure is a 502, the service being a dependency of this
// one. Faults local to this process are 500s.
func SessionFilter(level SessionLevel, source TokenSource, env Environment, client IdentityClient) typhon.Filter {
	must := levelRequirements[level]
	return func(req typhon.Request, svc typhon.Service) typhon.Response {
		raw, present, err := rawTokenFromRequest(req, source)
		if err != nil {
			slog.Error(req, "Unreadable session token: %v", err)
			return rejection(req, http.StatusBadRequest, err)
		}

		if !present {
			if must.mustHaveSession {
				slog.Warn(req, "Expected a session token but there was none")
				return rejection(req, http.StatusBadRequest,
					terrors.BadRequest("missing_session_token", "Expected a session token but there was none", nil))
			}
			token, session, err := client.GetOrCreateSession(req)
			if err != nil {
				slog.Error(req, "Failed to create a session: %v", err)
				return rejection(req, statusForError(err), err)
			}
			return proceed(req, svc, token, session, source, env)
		}

		token, err := ParseSessionToken(raw)
		if err != nil {
			slog.Error(req, "Failed to decode session token: %v", err)
			return rejection(req, http.StatusBadRequest, err)
		}

		if must.mustHaveUser && !token.HasUserToken() {
			slog.Warn(req, "Expected a user credential on the session token but there was none")
			return rejection(req, http.StatusBadRequest,
				terrors.BadRequest("missing_user_token", "Expected a user credential on the session token but there was none", nil))
		}

		bound := client.WithContext(token)
		var session *Session
		if token.HasUserToken() {
			session, err = bound.GetUserOnSession(req)
		} else {
			session, err = bound.GetSession(req)
		}
		if err != nil {
			if IsUnauthorized(err) {
				slog.Warn(req, "Identity service rejected session token")
			} else {
				slog.Error(req, "Failed to resolve session: %v", err)
			}
			return rejection(req, statusForError(err), err)
		}
		return proceed(req, svc, token, session, source, env)
	}
}

// rawTokenFromRequest finds the serialized token on the request. An absent token is not
// an error; a present token in an unreadable envelope is.
func rawTokenFromRequest(req typhon.Request, source TokenSource) (string, bool, error) {
	switch source {
	case SourceCookie:
		cookie, err := req.Cookie(SessionTokenCookieName)
		if err != nil {
			// http.ErrNoCookie is the only error Cookie returns
			return "", false, nil
		}
		raw, err := url.QueryUnescape(cookie.Value)
		if err != nil {
			return "", true, terrors.BadRequest("bad_session_token", fmt.Sprintf("Could not unescape session token cookie: %v", err), nil)
		}
		return raw, true, nil
	default:
		raw := req.Header.Get(SessionTokenHeaderName)
		if raw == "" {
			return "", false, nil
		}
		return raw, true, nil
	}
}

func proceed(req typhon.Request, svc typhon.Service, token SessionToken, session *Session, source TokenSource, env Environment) typhon.Response {
	req.Context = withIdentity(req.Context, token, session)
	rsp := svc(req)
	if responseCarriesToken(&rsp, source) {
		// The service replaced or discarded the token itself (the login and logout
		// handlers do); propagating the resolved one on top would undo that.
		return rsp
	}
	if err := SetTokenOnResponse(&rsp, token, source, env); err != nil {
		slog.Error(req, "Failed to attach session token to response: %v", err)
		return rejection(req, http.StatusInternalServerError, err)
	}
	return rsp
}

func rejection(req typhon.Request, status int, err error) typhon.Response {
	rsp := typhon.NewResponseWithCode(req, status)
	rsp.Error = err
	return rsp
}

// SetTokenOnResponse propagates the session token onto the response, as a cookie or a
// header depending on where the deployment carries it. The flow handlers use it
// directly when the token changes mid-request.
func SetTokenOnResponse(rsp *typhon.Response, token SessionToken, source TokenSource, env Environment) error {
	ensureResponse(rsp)
	switch source {
	case SourceCookie:
		encoded, err := token.EncodeForCookie()
		if err != nil {
			return err
		}
		setCookie(rsp, &http.Cookie{
			Name:     SessionTokenCookieName,
			Value:    encoded,
			Path:     "/",
			Expires:  time.Now().Add(sessionCookieLifetime),
			HttpOnly: true,
			Secure:   !env.IsLocal(),
			SameSite: http.SameSiteLaxMode})
	default:
		encoded, err := token.Encode()
		if err != nil {
			return err
		}
		rsp.Header.Set(SessionTokenHeaderName, encoded)
	}
	return nil
}

// ClearTokenOnResponse discards the client's copy of the session token, expiring the
// cookie or blanking the header.
func ClearTokenOnResponse(rsp *typhon.Response, source TokenSource, env Environment) {
	ensureResponse(rsp)
	switch source {
	case SourceCookie:
		setCookie(rsp, &http.Cookie{
			Name:     SessionTokenCookieName,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0).UTC(),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   !env.IsLocal(),
			SameSite: http.SameSiteLaxMode})
	default:
		// Blanked rather than deleted so an enclosing session filter can tell a
		// discarded token apart from one it still has to propagate.
		rsp.Header.Set(SessionTokenHeaderName, "")
	}
}

// responseCarriesToken reports whether the response already says something about the
// client's session token, a cleared token included.
func responseCarriesToken(rsp *typhon.Response, source TokenSource) bool {
	if rsp.Response == nil {
		return false
	}
	switch source {
	case SourceCookie:
		for _, cookie := range rsp.Cookies() {
			if cookie.Name == SessionTokenCookieName {
				return true
			}
		}
		return false
	default:
		_, ok := rsp.Header[SessionTokenHeaderName]
		return ok
	}
}

func setCookie(rsp *typhon.Response, cookie *http.Cookie) {
	rsp.Header.Add("Set-Cookie", cookie.String())
}

func ensureResponse(rsp *typhon.Response) {
	if rsp.Response == nil {
		rsp.Response = typhon.NewResponse(typhon.Request{}).Response
	}
}
