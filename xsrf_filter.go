package gatekeeper

import (
	"net/http"

	"github.com/monzo/slog"
	"github.com/monzo/terrors"
	"github.com/monzo/typhon"
)

// CheckXSRFTokenFilter guards state-changing routes against cross-site request forgery.
// The caller must present the session's anti-forgery token in the XSRF header, and it
// must match the session byte for byte. The filter must run inside SessionFilter, which
// attaches the session being compared against.
//
// A malformed token and a mismatched one are rejected identically on the wire; in
// particular the expected value is never echoed back.
func CheckXSRFTokenFilter(req typhon.Request, svc typhon.Service) typhon.Response {
	session, ok := SessionFromContext(req)
	if !ok {
		slog.Error(req, "No session attached to request; is the session filter in front?")
		return rejection(req, http.StatusInternalServerError,
			terrors.InternalService("no_session", "No session attached to request", nil))
	}

	token, err := ParseXSRFToken(req.Header.Get(XSRFTokenHeaderName))
	if err != nil {
		slog.Warn(req, "Bad XSRF token")
		return rejection(req, http.StatusBadRequest, err)
	}

	if token != session.XSRFToken {
		slog.Warn(req, "Mismatching XSRF token")
		return rejection(req, http.StatusBadRequest,
			terrors.BadRequest("xsrf_token_mismatch", "Mismatching XSRF token", nil))
	}

	return svc(req)
}
