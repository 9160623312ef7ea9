package auth

// context.go — explicit signing context.
//
// All mutable signing state lives here as one mutex-guarded object that
// is passed to every signing call, so several identities can run in one
// process without trampling each other. Nothing is package-global.

import (
	"sync"

	"github.com/alejandrodnm/polybridge/internal/domain"
)

// Context carries the negotiated signing configuration and the cached
// credentials for one identity. Zero value is not usable; use NewContext.
type Context struct {
	mu           sync.Mutex
	sigType      domain.SignatureType
	useEffective bool
	opts         domain.SigningOptions
	source       domain.CredSource
	creds        domain.Credentials
	haveCreds    bool
	negotiated   bool
}

// NewContext returns a context with the documented defaults: EOA, signer
// address, base64url secret decoding and base64url signature encoding,
// derived credentials.
func NewContext() *Context {
	return &Context{
		sigType: domain.SigTypeEOA,
		opts:    domain.DefaultSigningOptions(),
		source:  domain.CredSourceDerived,
	}
}

// Options returns the signing options every L2 call should use.
func (c *Context) Options() domain.SigningOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// AuthMode returns the negotiated signature type and address choice.
func (c *Context) AuthMode() (domain.SignatureType, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sigType, c.useEffective
}

// Source reports where the active credentials came from.
func (c *Context) Source() domain.CredSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// Negotiated reports whether a ladder rung or matrix cell has been verified
// against the exchange.
func (c *Context) Negotiated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiated
}

// Install records a verified working combination. All subsequent signing in
// the process uses it, bypassing per-call heuristics.
func (c *Context) Install(sigType domain.SignatureType, useEffective bool, opts domain.SigningOptions, source domain.CredSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sigType = sigType
	c.useEffective = useEffective
	c.opts = opts
	c.source = source
	c.negotiated = true
}

// SetCreds caches the working credentials.
func (c *Context) SetCreds(creds domain.Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
	c.haveCreds = true
}

// Creds returns the cached credentials, if any.
func (c *Context) Creds() (domain.Credentials, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds, c.haveCreds
}

// InvalidateCreds drops the cached credentials, forcing the next
// authentication run to derive fresh ones. Used after repeated
// post-success failures.
func (c *Context) InvalidateCreds() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = domain.Credentials{}
	c.haveCreds = false
}
