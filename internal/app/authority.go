/**
 * @description
 * The trigger authority gate. Only identities on the configured allow-list may
 * execute scheduled payments; the gate is checked before any bundle state is
 * read.
 */
package app

import "strings"

// AuthorityGate holds the allow-list of principals permitted to invoke Trigger.
type AuthorityGate struct {
	allowed map[string]struct{}
}

// NewAuthorityGate builds a gate from a comma-separated allow-list, as loaded
// from configuration. Whitespace around entries is ignored; empty entries are
// dropped.
func NewAuthorityGate(allowList string) *AuthorityGate {
	allowed := make(map[string]struct{})
	for _, entry := range strings.Split(allowList, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			allowed[entry] = struct{}{}
		}
	}
	return &AuthorityGate{allowed: allowed}
}

// Permits reports whether the given verified caller identity may trigger
// payments. An empty allow-list permits nobody.
func (g *AuthorityGate) Permits(caller string) bool {
	_, ok := g.allowed[caller]
	return ok
}
