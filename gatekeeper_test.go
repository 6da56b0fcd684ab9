package gatekeeper

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/monzo/typhon"
	"github.com/stretchr/testify/suite"
)

func TestE2E(t *testing.T) {
	t.Parallel()
	suite.Run(t, &e2eSuite{})
}

type e2eSuite struct {
	suite.Suite
}

func (suite *e2eSuite) serve(svc typhon.Service) *typhon.Server {
	s, err := typhon.Listen(svc, "localhost:0")
	suite.Require().NoError(err)
	return s
}

// A full round trip over a real listener: the session filter resolves a session for a
// bare request and the resolved token comes back on the response header.
func (suite *e2eSuite) TestSessionResolutionRoundTrip() {
	defer leaktest.Check(suite.T())()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeIdentityClient{
		getOrCreateSession: func() (SessionToken, *Session, error) {
			return testToken(), testSession(), nil
		}}

	svc := typhon.Service(func(req typhon.Request) typhon.Response {
		session, ok := SessionFromContext(req)
		suite.Require().True(ok)
		return req.Response(map[string]bool{"hasUser": session.HasUser()})
	})
	svc = svc.
		Filter(SessionFilter(LevelNone, SourceHeader, EnvTest, client)).
		Filter(typhon.ErrorFilter)
	s := suite.serve(svc)
	defer s.Stop(ctx)

	req := typhon.NewRequest(ctx, http.MethodGet, fmt.Sprintf("http://%s/", s.Listener().Addr()), nil)
	rsp := req.Send().Response()
	suite.Require().NoError(rsp.Error)
	suite.Assert().Equal(http.StatusOK, rsp.StatusCode)

	token, err := ParseSessionToken(rsp.Header.Get(SessionTokenHeaderName))
	suite.Require().NoError(err)
	suite.Assert().Equal(testToken(), token)

	body := map[string]bool{}
	suite.Require().NoError(rsp.Decode(&body))
	suite.Assert().Equal(map[string]bool{"hasUser": false}, body)
}

func (suite *e2eSuite) TestRejectionHasDefiniteStatus() {
	defer leaktest.Check(suite.T())()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeIdentityClient{}
	svc := typhon.Service(func(req typhon.Request) typhon.Response {
		suite.Fail("handler should not run without a session token")
		return req.Response(nil)
	})
	svc = svc.
		Filter(SessionFilter(LevelSession, SourceHeader, EnvTest, client)).
		Filter(typhon.ErrorFilter)
	s := suite.serve(svc)
	defer s.Stop(ctx)

	req := typhon.NewRequest(ctx, http.MethodGet, fmt.Sprintf("http://%s/", s.Listener().Addr()), nil)
	rsp := req.Send().Response()
	suite.Assert().Equal(http.StatusBadRequest, rsp.StatusCode)
}
