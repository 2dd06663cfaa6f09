package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipstack/sipstack/sip"
)

func wwwAuthenticate(value string) *sip.Response {
	res := sip.NewResponse(401, "Unauthorized")
	res.AppendHeader(sip.NewHeader("WWW-Authenticate", value))
	return res
}

func proxyAuthenticate(value string) *sip.Response {
	res := sip.NewResponse(407, "Proxy Authentication Required")
	res.AppendHeader(sip.NewHeader("Proxy-Authenticate", value))
	return res
}

func TestParseChallengeWWWAuthenticate(t *testing.T) {
	res := wwwAuthenticate(`Digest realm="sip.example.com", nonce="abc123", opaque="xyz", algorithm=md5, qop="auth"`)

	chal, err := ParseChallenge(res)
	require.NoError(t, err)
	assert.Equal(t, "sip.example.com", chal.Realm)
	assert.Equal(t, "abc123", chal.Nonce)
	assert.Equal(t, "MD5", chal.Algorithm)
	assert.False(t, chal.Proxy)
}

func TestParseChallengeProxyAuthenticate(t *testing.T) {
	res := proxyAuthenticate(`Digest realm="proxy.example.com", nonce="n0nce"`)

	chal, err := ParseChallenge(res)
	require.NoError(t, err)
	assert.Equal(t, "proxy.example.com", chal.Realm)
	assert.True(t, chal.Proxy)
}

func TestParseChallengeNoHeader(t *testing.T) {
	res := sip.NewResponse(401, "Unauthorized")
	_, err := ParseChallenge(res)
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestNonceCounterIncrementsPerNonce(t *testing.T) {
	nc := NewNonceCounter()
	assert.Equal(t, 1, nc.Next("call-1", "nonce-a", false))
	assert.Equal(t, 2, nc.Next("call-1", "nonce-a", false))
	assert.Equal(t, 3, nc.Next("call-1", "nonce-a", false))

	// A different (Call-ID, nonce) pair tracks independently.
	assert.Equal(t, 1, nc.Next("call-2", "nonce-b", false))
}

func TestNonceCounterStaleResets(t *testing.T) {
	nc := NewNonceCounter()
	nc.Next("call-1", "nonce-a", false)
	nc.Next("call-1", "nonce-a", false)
	assert.Equal(t, 1, nc.Next("call-1", "nonce-a", true))
}

func TestCredentialResolverPriority(t *testing.T) {
	r := NewCredentialResolver()
	r.SetDefault(Credentials{Username: "fallback-user", Password: "fallback-pass"})
	r.SetForRealm("sip.example.com", Credentials{Username: "realm-user", Password: "realm-pass"})
	r.SetForMethodRealm("REGISTER", "sip.example.com", Credentials{Username: "register-user", Password: "register-pass"})

	c, err := r.Resolve("REGISTER", "sip.example.com")
	require.NoError(t, err)
	assert.Equal(t, "register-user", c.Username)

	c, err = r.Resolve("INVITE", "sip.example.com")
	require.NoError(t, err)
	assert.Equal(t, "realm-user", c.Username)

	c, err = r.Resolve("INVITE", "other.example.com")
	require.NoError(t, err)
	assert.Equal(t, "fallback-user", c.Username)
}

func TestCredentialResolverNoMatch(t *testing.T) {
	r := NewCredentialResolver()
	_, err := r.Resolve("INVITE", "sip.example.com")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestAuthorizeBuildsAuthorizationHeader(t *testing.T) {
	res := wwwAuthenticate(`Digest realm="sip.example.com", nonce="abc123", algorithm=MD5, qop="auth"`)
	chal, err := ParseChallenge(res)
	require.NoError(t, err)

	creds := Credentials{Username: "alice", Password: "secret"}
	cnt := NewNonceCounter()

	h, err := Authorize(chal, creds, "REGISTER", "sip:sip.example.com", cnt, "call-1")
	require.NoError(t, err)
	assert.Equal(t, "Authorization", h.Name())
	assert.Contains(t, h.Value(), `username="alice"`)
	assert.Contains(t, h.Value(), `realm="sip.example.com"`)
}

func TestAuthorizeProxy(t *testing.T) {
	res := proxyAuthenticate(`Digest realm="proxy.example.com", nonce="n0nce"`)
	chal, err := ParseChallenge(res)
	require.NoError(t, err)

	creds := Credentials{Username: "bob", Password: "hunter2"}
	cnt := NewNonceCounter()

	h, err := Authorize(chal, creds, "INVITE", "sip:bob@proxy.example.com", cnt, "call-2")
	require.NoError(t, err)
	assert.Equal(t, "Proxy-Authorization", h.Name())
}
