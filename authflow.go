package gatekeeper

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/monzo/slog"
	"github.com/monzo/terrors"
	"github.com/monzo/typhon"
)

// Auth0Config carries the application's credentials with the external identity
// provider.
type Auth0Config struct {
	ClientID         string
	ClientSecret     string
	Domain           string
	LoginCallbackURI string
}

// AuthorizeRedirectInfo is the validated query string of the provider's login callback.
type AuthorizeRedirectInfo struct {
	// AuthorizationCode is the one-shot code to exchange for an access credential.
	// Optional at the type level; login cannot proceed without it.
	AuthorizationCode string
	State             PostLoginRedirectInfo
}

var authorizationCodeRegexp = regexp.MustCompile(`^[0-9a-zA-Z_-]+$`)

func parseAuthorizeRedirectInfo(values url.Values, codec *PostLoginRedirectInfoCodec) (AuthorizeRedirectInfo, error) {
	info := AuthorizeRedirectInfo{}
	if code := values.Get("code"); code != "" {
		if !authorizationCodeRegexp.MatchString(code) {
			return info, terrors.BadRequest("bad_authorization_code", "Authorization code should only contain alphanumerics", nil)
		}
		info.AuthorizationCode = code
	}
	state, err := codec.Decode(values.Get("state"))
	if err != nil {
		return info, err
	}
	info.State = state
	return info, nil
}

// Wire shapes of the provider's token endpoint.
type tokenExchangeRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
}

type tokenExchangeResult struct {
	AccessToken string `json:"access_token"`
}

type authFlow struct {
	env    Environment
	cfg    Auth0Config
	codec  *PostLoginRedirectInfoCodec
	client IdentityClient
	send   typhon.Service
}

// AuthFlowRouter returns the login flow's routes. GET /login completes the provider's
// authorization-code exchange and binds the resulting credential to the caller's
// session; GET /logout discards the session. Both sit behind a cookie-sourced session
// filter requiring only a session, not a linked user: linking the user is precisely
// what login is for.
func AuthFlowRouter(env Environment, cfg Auth0Config, allowedPaths []string, client IdentityClient) typhon.Router {
	flow := authFlow{
		env:    env,
		cfg:    cfg,
		codec:  NewPostLoginRedirectInfoCodec(allowedPaths),
		client: client,
		send:   typhon.Client}

	sessionFilter := SessionFilter(LevelSession, SourceCookie, env, client)
	router := typhon.Router{}
	router.GET("/login", typhon.Service(flow.login).Filter(sessionFilter))
	router.GET("/logout", typhon.Service(flow.logout).Filter(sessionFilter))
	return router
}

func (f authFlow) login(req typhon.Request) typhon.Response {
	token, ok := TokenFromContext(req)
	session, sok := SessionFromContext(req)
	if !ok || !sok {
		slog.Error(req, "No session attached to login request; is the session filter in front?")
		return rejection(req, http.StatusInternalServerError,
			terrors.InternalService("no_session", "No session attached to request", nil))
	}

	info, err := parseAuthorizeRedirectInfo(req.URL.Query(), f.codec)
	if err != nil {
		slog.Error(req, "Invalid login callback: %v", err)
		return rejection(req, http.StatusBadRequest, err)
	}

	result, err := f.exchangeCode(req, info.AuthorizationCode)
	if err != nil {
		slog.Error(req, "Code exchange failed: %v", err)
		return rejection(req, http.StatusInternalServerError, err)
	}

	// The credential changed, so a new token is minted on the same session; the old
	// value is untouched.
	newToken := SessionToken{
		SessionID: token.SessionID,
		UserToken: result.AccessToken}
	newToken, _, err = f.client.WithContext(newToken).GetOrCreateUserOnSession(req, session)
	if err != nil {
		slog.Error(req, "Failed to link user on session: %v", err)
		return rejection(req, http.StatusInternalServerError, err)
	}

	rsp := redirect(req, info.State.Path)
	if err := SetTokenOnResponse(&rsp, newToken, SourceCookie, f.env); err != nil {
		slog.Error(req, "Failed to attach session token to response: %v", err)
		return rejection(req, http.StatusInternalServerError, err)
	}
	return rsp
}

func (f authFlow) logout(req typhon.Request) typhon.Response {
	token, ok := TokenFromContext(req)
	session, sok := SessionFromContext(req)
	if !ok || !sok {
		slog.Error(req, "No session attached to logout request; is the session filter in front?")
		return rejection(req, http.StatusInternalServerError,
			terrors.InternalService("no_session", "No session attached to request", nil))
	}

	if err := f.client.WithContext(token).ExpireSession(req, session); err != nil {
		slog.Error(req, "Failed to expire session: %v", err)
		return rejection(req, http.StatusInternalServerError, err)
	}

	rsp := redirect(req, "/")
	ClearTokenOnResponse(&rsp, SourceCookie, f.env)
	return rsp
}

// exchangeCode swaps the provider's one-shot authorization code for an access
// credential at the provider's token endpoint. Every failure mode here is the flow's
// fault or the provider's, never the caller's.
func (f authFlow) exchangeCode(req typhon.Request, code string) (tokenExchangeResult, error) {
	exchangeReq := typhon.NewRequest(req, http.MethodPost, fmt.Sprintf("https://%s/oauth/token", f.cfg.Domain), tokenExchangeRequest{
		GrantType:    "authorization_code",
		ClientID:     f.cfg.ClientID,
		ClientSecret: f.cfg.ClientSecret,
		Code:         code,
		RedirectURI:  f.cfg.LoginCallbackURI})
	exchangeReq.Header.Set("Cache-Control", "no-cache")

	rsp := exchangeReq.SendVia(f.send).Response()
	if rsp.Response == nil {
		err := rsp.Error
		if err == nil {
			err = terrors.InternalService("", "No response", nil)
		}
		return tokenExchangeResult{}, terrors.InternalService("auth0.unavailable", fmt.Sprintf("Request failed because '%v'", err), nil)
	}
	if rsp.StatusCode != http.StatusOK {
		return tokenExchangeResult{}, terrors.InternalService("auth0.bad_response", fmt.Sprintf("Service response %d", rsp.StatusCode), nil)
	}

	result := tokenExchangeResult{}
	if err := rsp.Decode(&result); err != nil {
		return tokenExchangeResult{}, terrors.InternalService("auth0.bad_body", fmt.Sprintf("JSON decoding error because '%v'", err), nil)
	}
	if result.AccessToken == "" || !userTokenRegexp.MatchString(result.AccessToken) {
		return tokenExchangeResult{}, terrors.InternalService("auth0.bad_body", "Malformed access token", nil)
	}
	return result, nil
}

func redirect(req typhon.Request, location string) typhon.Response {
	rsp := typhon.NewResponseWithCode(req, http.StatusFound)
	rsp.Header.Set("Location", location)
	return rsp
}
