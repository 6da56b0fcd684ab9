package gatekeeper

import (
	"regexp"
	"time"

	"github.com/monzo/terrors"
)

// SessionState is the lifecycle state of a session, as reported by the identity service.
type SessionState string

const (
	SessionStateActive                  SessionState = "ACTIVE"
	SessionStateActiveAndLinkedWithUser SessionState = "ACTIVE_AND_LINKED_WITH_USER"
)

// UserState is the lifecycle state of a user account.
type UserState string

const (
	UserStateActive  UserState = "ACTIVE"
	UserStateRemoved UserState = "REMOVED"
)

// Role is the coarse authorisation level of a user account.
type Role string

const (
	RoleRegular Role = "REGULAR"
	RoleAdmin   Role = "ADMIN"
)

// XSRFTokenLength is the exact length of a well-formed anti-forgery token.
const XSRFTokenLength = 64

var xsrfTokenRegexp = regexp.MustCompile(`^[0-9a-zA-Z+/=]+$`)

// ParseXSRFToken checks that raw is a well-formed anti-forgery token: exactly 64
// characters of the base64 alphabet. A malformed token carries no more information than
// a mismatched one; the two error classes exist for logging only.
func ParseXSRFToken(raw string) (string, error) {
	if len(raw) != XSRFTokenLength {
		return "", terrors.BadRequest("bad_xsrf_token", "Expected string to be 64 characters", nil)
	}
	if !xsrfTokenRegexp.MatchString(raw) {
		return "", terrors.BadRequest("bad_xsrf_token", "Expected a base64 string", nil)
	}
	return raw, nil
}

// User is the common shape of a user account.
type User struct {
	ID              int64     `json:"id"`
	State           UserState `json:"state"`
	Role            Role      `json:"role"`
	Name            string    `json:"name"`
	PictureURI      string    `json:"pictureUri"`
	Language        string    `json:"language"`
	TimeCreated     time.Time `json:"timeCreated"`
	TimeLastUpdated time.Time `json:"timeLastUpdated"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PublicUser is the view of a user exposed to everybody.
type PublicUser struct {
	User
}

// PrivateUser is the view of a user exposed only to themselves.
type PrivateUser struct {
	User
	AgreedToCookiePolicy bool `json:"agreedToCookiePolicy"`
}

// A Session is the identity service's record of one client's authentication state. The
// identity service owns it; this package only holds it for the lifetime of a single
// request.
type Session struct {
	State                SessionState `json:"state"`
	XSRFToken            string       `json:"xsrfToken"`
	AgreedToCookiePolicy bool         `json:"agreedToCookiePolicy"`
	User                 *PrivateUser `json:"user,omitempty"`
	TimeCreated          time.Time    `json:"timeCreated"`
	TimeLastUpdated      time.Time    `json:"timeLastUpdated"`
}

// HasUser reports whether the session is linked to a user account. The state and the
// user record must both agree: a session in the linked state without a user record, or
// carrying a user record without the linked state, does not count.
func (s *Session) HasUser() bool {
	return s.State == SessionStateActiveAndLinkedWithUser && s.User != nil
}

func (s *Session) validate() error {
	switch s.State {
	case SessionStateActive, SessionStateActiveAndLinkedWithUser:
	default:
		return terrors.BadResponse("bad_session", "Unknown session state", map[string]string{"state": string(s.State)})
	}
	if _, err := ParseXSRFToken(s.XSRFToken); err != nil {
		return terrors.Augment(err, "Bad session XSRF token", nil)
	}
	return nil
}
