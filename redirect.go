package gatekeeper

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/monzo/terrors"
)

// PostLoginRedirectInfo remembers where the user was when the login flow began, so the
// application can send them back there once the flow completes. It is round-tripped
// through the external identity provider as opaque state, which makes its value on
// return attacker-controlled: decoding re-runs the allow-list check every time, never
// trusting that encoding checked it already.
type PostLoginRedirectInfo struct {
	Path string `json:"path"`
}

// A PostLoginRedirectInfoCodec encodes redirect info for the provider round trip and
// decodes what the provider hands back. The provider URI-encodes the state once more
// than the application did, so decoding applies two URI-decodes before the JSON parse.
// That is a protocol fact of the provider's callback, not a bug to fix here.
type PostLoginRedirectInfoCodec struct {
	allowedPaths []string
}

// NewPostLoginRedirectInfoCodec returns a codec which accepts only absolute paths
// starting with one of the given prefixes.
func NewPostLoginRedirectInfoCodec(allowedPaths []string) *PostLoginRedirectInfoCodec {
	return &PostLoginRedirectInfoCodec{allowedPaths: append([]string(nil), allowedPaths...)}
}

// Encode serialises the redirect info: JSON, URI-encoded once.
func (c *PostLoginRedirectInfoCodec) Encode(info PostLoginRedirectInfo) (string, error) {
	if err := c.checkPath(info.Path); err != nil {
		return "", err
	}
	b, err := json.Marshal(info)
	if err != nil {
		return "", terrors.Wrap(err, nil)
	}
	return url.QueryEscape(string(b)), nil
}

// Decode parses the state the provider returned: two URI-decodes, a JSON parse, then
// the allow-list check, in that order.
func (c *PostLoginRedirectInfoCodec) Decode(raw string) (PostLoginRedirectInfo, error) {
	once, err := url.QueryUnescape(raw)
	if err != nil {
		return PostLoginRedirectInfo{}, terrors.BadRequest("bad_redirect_info", fmt.Sprintf("Could not build redirect info: %v", err), nil)
	}
	twice, err := url.QueryUnescape(once)
	if err != nil {
		return PostLoginRedirectInfo{}, terrors.BadRequest("bad_redirect_info", fmt.Sprintf("Could not build redirect info: %v", err), nil)
	}
	info := PostLoginRedirectInfo{}
	if err := json.Unmarshal([]byte(twice), &info); err != nil {
		return PostLoginRedirectInfo{}, terrors.BadRequest("bad_redirect_info", fmt.Sprintf("Could not build redirect info: %v", err), nil)
	}
	if err := c.checkPath(info.Path); err != nil {
		return PostLoginRedirectInfo{}, err
	}
	return info, nil
}

func (c *PostLoginRedirectInfoCodec) checkPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return terrors.BadRequest("bad_redirect_info", fmt.Sprintf("Expected an absolute path, got %q", path), nil)
	}
	for _, allowed := range c.allowedPaths {
		if strings.HasPrefix(path, allowed) {
			return nil
		}
	}
	return terrors.BadRequest("bad_redirect_info", fmt.Sprintf("Invalid path %s", path), nil)
}
