package gatekeeper

import (
	"net/http"

	"github.com/monzo/terrors"
)

// Terror codes for the identity error taxonomy. Every failure of a remote identity call
// shares the "internal_service.identity" prefix, so callers classify with
// terrors.PrefixMatches rather than by matching message strings. A remote 401 is the
// one special case callers are expected to branch on, and gets its own top-level code.
const (
	errIdentity = terrors.ErrInternalService + ".identity"
	// ErrIdentityUnavailable: the transport never produced a response from the service.
	ErrIdentityUnavailable = errIdentity + ".unavailable"
	// ErrIdentityResponse: the service replied with a non-OK status other than 401.
	ErrIdentityResponse = errIdentity + ".bad_response"
	// ErrIdentityBody: the service replied OK but the body did not decode.
	ErrIdentityBody = errIdentity + ".bad_body"
	// ErrIdentityUnauthorized: the service rejected the caller's token with a 401.
	ErrIdentityUnauthorized = terrors.ErrUnauthorized + ".identity"
)

// IsUnauthorized reports whether err is the identity service rejecting the caller's
// token.
func IsUnauthorized(err error) bool {
	return terrors.PrefixMatches(err, terrors.ErrUnauthorized)
}

// IsIdentityError reports whether err is an identity service failure other than an
// authorization rejection.
func IsIdentityError(err error) bool {
	return terrors.PrefixMatches(err, errIdentity)
}

// statusForError maps a session resolution error to the status the session filter
// responds with. The identity service is a dependency of this one, so its failures
// surface as 502 in every branch, including when bootstrapping a fresh session; only
// genuinely local faults become 500. Typhon's own terror mapping has no gateway class,
// hence this local map.
func statusForError(err error) int {
	switch {
	case IsUnauthorized(err):
		return http.StatusUnauthorized
	case IsIdentityError(err):
		return http.StatusBadGateway
	case terrors.PrefixMatches(err, terrors.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
