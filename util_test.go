package gatekeeper

import (
	"context"
	"strings"
	"time"

	"github.com/monzo/terrors"
)

func testXSRFToken() string {
	return strings.Repeat("A", 64)
}

func testSession() *Session {
	return &Session{
		State:           SessionStateActive,
		XSRFToken:       testXSRFToken(),
		TimeCreated:     time.Date(2017, 2, 17, 0, 0, 0, 0, time.UTC),
		TimeLastUpdated: time.Date(2017, 2, 17, 0, 0, 0, 0, time.UTC)}
}

func testLinkedSession() *Session {
	session := testSession()
	session.State = SessionStateActiveAndLinkedWithUser
	session.User = &PrivateUser{
		User: User{
			ID:              1,
			State:           UserStateActive,
			Role:            RoleRegular,
			Name:            "John Doe",
			PictureURI:      "https://example.com/1.jpg",
			Language:        "en",
			TimeCreated:     session.TimeCreated,
			TimeLastUpdated: session.TimeLastUpdated}}
	return session
}

// fakeIdentityClient records calls and delegates to per-operation stubs. Operations
// without a stub fail loudly, which doubles as the "no remote call was made" check.
type fakeIdentityClient struct {
	boundToken *SessionToken
	calls      []string

	getOrCreateSession       func() (SessionToken, *Session, error)
	getSession               func() (*Session, error)
	expireSession            func(session *Session) error
	agreeToCookiePolicy      func(session *Session) (*Session, error)
	getOrCreateUserOnSession func(session *Session) (SessionToken, *Session, error)
	getUserOnSession         func() (*Session, error)
	getUsersInfo             func(ids []int64) ([]PublicUser, error)
}

func (c *fakeIdentityClient) WithContext(token SessionToken) IdentityClient {
	c.boundToken = &token
	return c
}

func (c *fakeIdentityClient) GetOrCreateSession(ctx context.Context) (SessionToken, *Session, error) {
	c.calls = append(c.calls, "GetOrCreateSession")
	if c.getOrCreateSession == nil {
		return SessionToken{}, nil, terrors.InternalService("unexpected_call", "Unexpected GetOrCreateSession", nil)
	}
	return c.getOrCreateSession()
}

func (c *fakeIdentityClient) GetSession(ctx context.Context) (*Session, error) {
	c.calls = append(c.calls, "GetSession")
	if c.getSession == nil {
		return nil, terrors.InternalService("unexpected_call", "Unexpected GetSession", nil)
	}
	return c.getSession()
}

func (c *fakeIdentityClient) ExpireSession(ctx context.Context, session *Session) error {
	c.calls = append(c.calls, "ExpireSession")
	if c.expireSession == nil {
		return terrors.InternalService("unexpected_call", "Unexpected ExpireSession", nil)
	}
	return c.expireSession(session)
}

func (c *fakeIdentityClient) AgreeToCookiePolicyForSession(ctx context.Context, session *Session) (*Session, error) {
	c.calls = append(c.calls, "AgreeToCookiePolicyForSession")
	if c.agreeToCookiePolicy == nil {
		return nil, terrors.InternalService("unexpected_call", "Unexpected AgreeToCookiePolicyForSession", nil)
	}
	return c.agreeToCookiePolicy(session)
}

func (c *fakeIdentityClient) GetOrCreateUserOnSession(ctx context.Context, session *Session) (SessionToken, *Session, error) {
	c.calls = append(c.calls, "GetOrCreateUserOnSession")
	if c.getOrCreateUserOnSession == nil {
		return SessionToken{}, nil, terrors.InternalService("unexpected_call", "Unexpected GetOrCreateUserOnSession", nil)
	}
	return c.getOrCreateUserOnSession(session)
}

func (c *fakeIdentityClient) GetUserOnSession(ctx context.Context) (*Session, error) {
	c.calls = append(c.calls, "GetUserOnSession")
	if c.getUserOnSession == nil {
		return nil, terrors.InternalService("unexpected_call", "Unexpected GetUserOnSession", nil)
	}
	return c.getUserOnSession()
}

func (c *fakeIdentityClient) GetUsersInfo(ctx context.Context, ids []int64) ([]PublicUser, error) {
	c.calls = append(c.calls, "GetUsersInfo")
	if c.getUsersInfo == nil {
		return nil, terrors.InternalService("unexpected_call", "Unexpected GetUsersInfo", nil)
	}
	return c.getUsersInfo(ids)
}
