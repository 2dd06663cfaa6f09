// Package auth implements RFC 7616 digest authentication for outgoing SIP
// requests: parsing a 401/407 challenge, computing an Authorization /
// Proxy-Authorization response, and tracking the nonce count. Resending
// the rejected request is left to the caller (package ua).
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/icholy/digest"

	"github.com/sipstack/sipstack/sip"
)

var ErrNoCredentials = errors.New("auth: no credentials available for realm")
var ErrNoChallenge = errors.New("auth: no WWW-Authenticate or Proxy-Authenticate header in response")

// Credentials is one username/password pair, scoped to a realm.
type Credentials struct {
	Username string
	Password string
	Realm    string
}

// Challenge wraps the parsed digest.Challenge with which header it came
// from, so Authorize knows whether to answer with Authorization or
// Proxy-Authorization.
type Challenge struct {
	*digest.Challenge
	Proxy bool
}

// ParseChallenge reads a WWW-Authenticate or Proxy-Authenticate header off
// res, picking the first one whose scheme is "Digest" (RFC 3261 22.2: a
// response may carry more than one challenge). Algorithm is uppercased:
// some servers send lower-case algorithm tokens, which RFC 7616 3.3 treats
// as equivalent but which a literal string match against "MD5"/"SHA-256"
// would miss.
func ParseChallenge(res *sip.Response) (*Challenge, error) {
	for _, h := range res.GetHeaders("WWW-Authenticate") {
		if c, ok := parseDigestChallenge(h.Value(), false); ok {
			return c, nil
		}
	}
	for _, h := range res.GetHeaders("Proxy-Authenticate") {
		if c, ok := parseDigestChallenge(h.Value(), true); ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoChallenge, res.Short())
}

func parseDigestChallenge(value string, proxy bool) (*Challenge, bool) {
	chal, err := digest.ParseChallenge(value)
	if err != nil {
		return nil, false
	}
	chal.Algorithm = strings.ToUpper(chal.Algorithm)
	return &Challenge{Challenge: chal, Proxy: proxy}, true
}

// NonceCounter tracks the "nc" value RFC 7616 3.4 requires to increase by
// one on every request reusing a server nonce, keyed per (Call-ID, nonce)
// so concurrent requests in different dialogs don't share state. A
// stale=true challenge resets the counter for that nonce back to 1.
type NonceCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewNonceCounter() *NonceCounter {
	return &NonceCounter{counts: make(map[string]int)}
}

func (nc *NonceCounter) key(callID, nonce string) string { return callID + "\x00" + nonce }

// Next returns the nc value to use for this request and advances the
// counter. Reset clears it first if stale is true.
func (nc *NonceCounter) Next(callID, nonce string, stale bool) int {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	key := nc.key(callID, nonce)
	if stale {
		delete(nc.counts, key)
	}
	nc.counts[key]++
	return nc.counts[key]
}

// CredentialResolver looks up credentials for a realm with a
// method > realm > default priority (the most specific match wins).
type CredentialResolver struct {
	mu            sync.RWMutex
	byMethodRealm map[string]Credentials // method+"\x00"+realm
	byRealm       map[string]Credentials
	fallback      *Credentials
}

func NewCredentialResolver() *CredentialResolver {
	return &CredentialResolver{
		byMethodRealm: make(map[string]Credentials),
		byRealm:       make(map[string]Credentials),
	}
}

func (r *CredentialResolver) SetDefault(c Credentials) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = &c
}

func (r *CredentialResolver) SetForRealm(realm string, c Credentials) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRealm[realm] = c
}

func (r *CredentialResolver) SetForMethodRealm(method, realm string, c Credentials) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byMethodRealm[method+"\x00"+realm] = c
}

func (r *CredentialResolver) Resolve(method, realm string) (Credentials, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.byMethodRealm[method+"\x00"+realm]; ok {
		return c, nil
	}
	if c, ok := r.byRealm[realm]; ok {
		return c, nil
	}
	if r.fallback != nil {
		return *r.fallback, nil
	}
	return Credentials{}, fmt.Errorf("%w: %s", ErrNoCredentials, realm)
}

// Authorize builds the Authorization (or Proxy-Authorization, if
// chal.Proxy) header answering chal for a request with the given method
// and request-URI, advancing nc on cnt.
func Authorize(chal *Challenge, creds Credentials, method, uri string, cnt *NonceCounter, callID string) (sip.Header, error) {
	nc := cnt.Next(callID, chal.Nonce, chal.Stale)
	cred, err := digest.Digest(chal.Challenge, digest.Options{
		Method:   method,
		URI:      uri,
		Username: creds.Username,
		Password: creds.Password,
		Count:    nc,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: compute digest response: %w", err)
	}

	name := "Authorization"
	if chal.Proxy {
		name = "Proxy-Authorization"
	}
	return sip.NewHeader(name, cred.String()), nil
}
