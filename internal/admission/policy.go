// Package admission decides whether an incoming connection attempt is
// allowed, based on the Origin it declares. The same Policy backs the CORS
// middleware and the websocket upgrade gate.
package admission

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidPattern is returned for origin patterns that do not compile.
var ErrInvalidPattern = errors.New("invalid origin pattern")

// Policy is an origin allow list plus glob patterns such as
// "https://*.vercel.app". It is safe for concurrent use and can be swapped
// atomically with Replace.
type Policy struct {
	mu         sync.RWMutex
	exact      map[string]struct{}
	patterns   []string
	allowEmpty bool
}

// NewPolicy builds a policy. allowEmpty admits requests without an Origin
// header, which is what non-browser clients send.
func NewPolicy(origins, patterns []string, allowEmpty bool) (*Policy, error) {
	p := &Policy{allowEmpty: allowEmpty}
	if err := p.Replace(origins, patterns); err != nil {
		return nil, err
	}
	return p, nil
}

// Replace swaps the allow list and patterns. On error the previous rules
// stay in place.
func (p *Policy) Replace(origins, patterns []string) error {
	exact := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o = normalize(o); o != "" {
			exact[o] = struct{}{}
		}
	}

	compiled := make([]string, 0, len(patterns))
	for _, pat := range patterns {
		pat = normalize(pat)
		if pat == "" {
			continue
		}
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("%w: %q", ErrInvalidPattern, pat)
		}
		compiled = append(compiled, pat)
	}

	p.mu.Lock()
	p.exact = exact
	p.patterns = compiled
	p.mu.Unlock()
	return nil
}

// Allowed reports whether a connection from origin may proceed.
func (p *Policy) Allowed(origin string) bool {
	origin = normalize(origin)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if origin == "" {
		return p.allowEmpty
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, pat := range p.patterns {
		if ok, _ := doublestar.Match(pat, origin); ok {
			return true
		}
	}
	return false
}

// Origins returns the exact allow list, used for CORS preflight echoes and
// diagnostics.
func (p *Policy) Origins() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.exact))
	for o := range p.exact {
		out = append(out, o)
	}
	return out
}

func normalize(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}
