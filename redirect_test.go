package gatekeeper

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostLoginRedirectInfoRoundTrip(t *testing.T) {
	codec := NewPostLoginRedirectInfoCodec([]string{"/admin", "/"})

	paths := []string{
		"/",
		"/admin",
		"/admin/foo?id=10",
		"/a path/with spaces",
	}
	for _, path := range paths {
		encoded, err := codec.Encode(PostLoginRedirectInfo{Path: path})
		require.NoError(t, err, path)

		// The provider URI-encodes the state once more than we did on the way out.
		decoded, err := codec.Decode(url.QueryEscape(encoded))
		require.NoError(t, err, path)
		assert.Equal(t, PostLoginRedirectInfo{Path: path}, decoded, path)
	}
}

func TestPostLoginRedirectInfoDecodeRejectsDisallowedPath(t *testing.T) {
	permissive := NewPostLoginRedirectInfoCodec([]string{"/"})
	strict := NewPostLoginRedirectInfoCodec([]string{"/admin"})

	// Well-formed by every measure except the allow-list; the check must run on decode,
	// not just on encode, because the value round-trips through the provider.
	encoded, err := permissive.Encode(PostLoginRedirectInfo{Path: "/evil"})
	require.NoError(t, err)
	_, err = strict.Decode(url.QueryEscape(encoded))
	assert.Error(t, err)
}

func TestPostLoginRedirectInfoDecodeRejects(t *testing.T) {
	codec := NewPostLoginRedirectInfoCodec([]string{"/"})
	tests := []struct {
		name string
		raw  string
	}{
		{"garbage", "certainly-not-redirect-info"},
		{"bad escape", "%zz"},
		{"relative path", url.QueryEscape(url.QueryEscape(`{"path":"admin/foo"}`))},
		{"empty path", url.QueryEscape(url.QueryEscape(`{"path":""}`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestPostLoginRedirectInfoEncodeRejectsDisallowedPath(t *testing.T) {
	codec := NewPostLoginRedirectInfoCodec([]string{"/admin"})
	_, err := codec.Encode(PostLoginRedirectInfo{Path: "/other"})
	assert.Error(t, err)
}
