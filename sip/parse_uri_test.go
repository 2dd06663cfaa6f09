package sip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUri(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		var uri Uri
		require.NoError(t, ParseUri("sip:alice@localhost:5060", &uri))
		assert.Equal(t, "alice", uri.User)
		assert.Equal(t, "localhost", uri.Host)
		assert.Equal(t, 5060, uri.Port)
		assert.Equal(t, "alice@localhost:5060", uri.Addr())
	})

	t.Run("case insensitive scheme", func(t *testing.T) {
		for _, s := range []string{"sip:alice@atlanta.com", "SIP:alice@atlanta.com", "sIp:alice@atlanta.com"} {
			var uri Uri
			require.NoError(t, ParseUri(s, &uri))
			assert.Equal(t, "alice", uri.User)
			assert.False(t, uri.IsEncrypted())
		}
		for _, s := range []string{"sips:alice@atlanta.com", "SIPS:alice@atlanta.com"} {
			var uri Uri
			require.NoError(t, ParseUri(s, &uri))
			assert.True(t, uri.IsEncrypted())
		}
	})

	t.Run("password and params", func(t *testing.T) {
		var uri Uri
		require.NoError(t, ParseUri("sip:alice:secretword@atlanta.com;transport=tcp", &uri))
		assert.Equal(t, "alice", uri.User)
		assert.Equal(t, "secretword", uri.Password)
		assert.Equal(t, "atlanta.com", uri.Host)
		transport, ok := uri.UriParams.Get("transport")
		require.True(t, ok)
		assert.Equal(t, "tcp", transport)
	})

	t.Run("headers", func(t *testing.T) {
		var uri Uri
		require.NoError(t, ParseUri("sips:alice@atlanta.com?subject=project%20x&priority=urgent", &uri))
		subject, ok := uri.Headers.Get("subject")
		require.True(t, ok)
		assert.Equal(t, "project%20x", subject)
	})

	t.Run("no user", func(t *testing.T) {
		var uri Uri
		require.NoError(t, ParseUri("sip:atlanta.com;method=REGISTER", &uri))
		assert.Equal(t, "", uri.User)
		assert.Equal(t, "atlanta.com", uri.Host)
	})

	t.Run("hierarchical slashes accepted but not stored", func(t *testing.T) {
		var uri Uri
		require.NoError(t, ParseUri("sip://alice@atlanta.com", &uri))
		assert.Equal(t, "alice", uri.User)
		assert.Equal(t, "atlanta.com", uri.Host)
	})

	t.Run("wildcard", func(t *testing.T) {
		var uri Uri
		require.NoError(t, ParseUri("*", &uri))
		assert.True(t, uri.Wildcard)
	})

	t.Run("empty uri rejected", func(t *testing.T) {
		var uri Uri
		err := ParseUri("", &uri)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("missing scheme rejected", func(t *testing.T) {
		var uri Uri
		err := ParseUri("alice@atlanta.com", &uri)
		require.Error(t, err)
	})

	t.Run("bad port rejected", func(t *testing.T) {
		var uri Uri
		err := ParseUri("sip:alice@atlanta.com:notaport", &uri)
		require.Error(t, err)
	})
}
