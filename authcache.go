package dsbootstrap

import (
	"context"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/miekg/dns"
)

// AuthCache is the process-wide, grow-only mapping from nameserver
// hostname to its set of A/AAAA addresses (§4.2). A hostname once
// resolved is never re-resolved within a scan run, and entries are
// never evicted (§3 invariant). Grounded on solvere/resolver.go's
// authMap/buildAuthMap, backed by concurrent-map instead of a
// hand-rolled mutex+map because this cache, unlike solvere's own
// cache.go, has no TTL and no eviction (see DESIGN.md).
type AuthCache struct {
	m cmap.ConcurrentMap[string, []string]
}

// NewAuthCache returns an empty, ready-to-use AuthCache. Safe for
// concurrent use by any number of scans.
func NewAuthCache() *AuthCache {
	return &AuthCache{m: cmap.New[[]string]()}
}

// Get returns the cached address set for hostname, and whether it is
// present.
func (c *AuthCache) Get(hostname string) ([]string, bool) {
	return c.m.Get(canon(hostname))
}

// ResolveAuths ensures every hostname not already cached has its
// AAAA/A addresses resolved via the given query function and inserted
// into the cache. Idempotent: hostnames already present are left
// untouched (§4.2 "idempotent; monotonically grows"). Failure to
// resolve a hostname leaves its entry empty rather than absent, so a
// later direct-mode query against it fails visibly instead of being
// silently retried (§4.2 "Failure to resolve leaves the entry empty").
func (c *AuthCache) ResolveAuths(ctx context.Context, hostnames []string, query func(ctx context.Context, owner string, rdtype uint16) (*Response, bool)) {
	for _, host := range hostnames {
		host := canon(host)
		if _, present := c.m.Get(host); present {
			continue
		}
		addrs := resolveOne(ctx, host, query)
		c.m.Set(host, addrs)
	}
}

// resolveOne queries AAAA then A for host and unions the returned
// addresses, AAAA first, matching §4.2's ordering note (only relevant
// for deterministic internal ordering; a downstream direct-mode query
// is agnostic of IP order).
func resolveOne(ctx context.Context, host string, query func(ctx context.Context, owner string, rdtype uint16) (*Response, bool)) []string {
	var addrs []string
	seen := map[string]struct{}{}
	add := func(rrset []dns.RR) {
		for _, rr := range rrset {
			var a string
			switch r := rr.(type) {
			case *dns.AAAA:
				a = r.AAAA.String()
			case *dns.A:
				a = r.A.String()
			default:
				continue
			}
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			addrs = append(addrs, a)
		}
	}
	for _, rdtype := range []uint16{dns.TypeAAAA, dns.TypeA} {
		resp, ok := query(ctx, host, rdtype)
		if !ok || resp == nil {
			continue
		}
		add(resp.RRset)
	}
	return addrs
}
