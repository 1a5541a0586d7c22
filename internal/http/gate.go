package httpx

import "net/http"

// Gate composes the per-route checks in a fixed order regardless of how it
// was built: rate limit, authenticate, authorize, validate input, handler.
// Each stage may answer the request itself and stop the chain.
type Gate struct {
	rateLimit func(http.Handler) http.Handler
	authn     Authenticator
	roles     []string
	validate  []func(http.Handler) http.Handler
}

// NewGate returns an empty Gate that passes requests straight to the handler.
func NewGate() Gate { return Gate{} }

// WithRateLimit sets the rate limit stage.
func (g Gate) WithRateLimit(mw func(http.Handler) http.Handler) Gate {
	g.rateLimit = mw
	return g
}

// WithAuth requires a valid bearer token.
func (g Gate) WithAuth(authn Authenticator) Gate {
	g.authn = authn
	return g
}

// WithRole requires each of roles. It implies WithAuth having been set.
func (g Gate) WithRole(roles ...string) Gate {
	g.roles = append(append([]string(nil), g.roles...), roles...)
	return g
}

// WithValidation appends input validators, run in the order given.
func (g Gate) WithValidation(mw ...func(http.Handler) http.Handler) Gate {
	g.validate = append(append([]func(http.Handler) http.Handler(nil), g.validate...), mw...)
	return g
}

// Then wraps h with the configured stages.
func (g Gate) Then(h http.Handler) http.Handler {
	for i := len(g.validate) - 1; i >= 0; i-- {
		h = g.validate[i](h)
	}
	for i := len(g.roles) - 1; i >= 0; i-- {
		h = RequireRole(g.roles[i])(h)
	}
	if g.authn != nil {
		h = RequireAuth(g.authn)(h)
	}
	if g.rateLimit != nil {
		h = g.rateLimit(h)
	}
	return h
}

// ThenFunc is Then for a handler function.
func (g Gate) ThenFunc(fn http.HandlerFunc) http.Handler {
	return g.Then(fn)
}
