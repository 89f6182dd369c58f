package oauth

import (
	"net/url"
	"strings"
)

// OriginPolicy decides which message origins may deliver an authorization response.
type OriginPolicy struct {
	allowed map[string]struct{}
}

// NewOriginPolicy allows the origin of redirectURI, the caller's own origin and
// any explicitly listed development origins.
func NewOriginPolicy(redirectURI, callerOrigin string, devOrigins []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{})}
	p.add(redirectURI)
	p.add(callerOrigin)
	for _, o := range devOrigins {
		p.add(o)
	}
	return p
}

func (p *OriginPolicy) add(raw string) {
	if o := OriginOf(raw); o != "" {
		p.allowed[o] = struct{}{}
	}
}

// Allows reports whether origin is on the allow-list.
func (p *OriginPolicy) Allows(origin string) bool {
	o := OriginOf(origin)
	if o == "" {
		return false
	}
	_, ok := p.allowed[o]
	return ok
}

// Origins returns the allow-list, for CORS configuration.
func (p *OriginPolicy) Origins() []string {
	out := make([]string, 0, len(p.allowed))
	for o := range p.allowed {
		out = append(out, o)
	}
	return out
}

// OriginOf reduces a URL to scheme://host[:port], lower-cased. Invalid or
// opaque input ("null", "") yields "".
func OriginOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
