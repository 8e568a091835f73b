// Package coalesce deduplicates concurrent lookups for the same domain
// across a batch. When a 10,000-address batch contains 400 @bigcorp.com
// addresses, this collapses the MX lookup, domain-intel sweep, and DKIM
// selector scan for bigcorp.com down to one in-flight call each instead of
// 400 (spec.md §9's "single-flight / request-coalescing map").
package coalesce

import "golang.org/x/sync/singleflight"

// Kind identifies which evidence-collection pass a coalescing group
// covers. Each kind gets its own singleflight.Group so an MX lookup for
// one domain never blocks behind an unrelated DKIM scan for the same
// domain.
type Kind string

const (
	KindMX    Kind = "mx"
	KindIntel Kind = "intel"
	KindDKIM  Kind = "dkim"
)

// Groups bundles one singleflight.Group per Kind.
type Groups struct {
	groups map[Kind]*singleflight.Group
}

// New builds an empty set of coalescing groups.
func New() *Groups {
	g := &Groups{groups: make(map[Kind]*singleflight.Group)}
	for _, k := range []Kind{KindMX, KindIntel, KindDKIM} {
		g.groups[k] = new(singleflight.Group)
	}
	return g
}

// Do runs fn at most once per (kind, key) among concurrent callers; all
// concurrent callers for the same key receive the same result.
func (g *Groups) Do(kind Kind, key string, fn func() (any, error)) (any, error, bool) {
	return g.groups[kind].Do(key, fn)
}

// Forget drops any in-flight or completed memoized call for key, so the
// next Do call executes fresh. Used when a caller wants to bypass the
// coalescing window (e.g. test setup).
func (g *Groups) Forget(kind Kind, key string) {
	g.groups[kind].Forget(key)
}
