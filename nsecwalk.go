package dsbootstrap

import (
	"context"
	"strings"

	"github.com/dsec-tools/dsbootstrap/config"
	"github.com/dsec-tools/dsbootstrap/events"
	"github.com/google/uuid"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// Candidate is one discovered signaling child, ready for re-submission
// to Engine.Scan (§4.4 "list of (candidate_child, auths…) tuples").
type Candidate struct {
	Child string
	Auths []string
}

// Walker implements the NSEC Discovery Walker (§4.4): a new component
// with no counterpart in original_source, since zone enumeration by
// NSEC walking is this spec's own addition (see DESIGN.md). Built in
// the teacher's idiom, reusing solvere/nsec.go's dns.Denialer
// type-switch for reading NSEC coverage and resolver.go's per-step
// query shape.
type Walker struct {
	query *Querier
	auths *AuthCache
	cfg   *config.Config
	log   *logrus.Entry
}

// NewWalker returns a ready-to-use Walker.
func NewWalker(query *Querier, auths *AuthCache, cfg *config.Config) *Walker {
	return &Walker{
		query: query,
		auths: auths,
		cfg:   cfg,
		log:   logrus.NewEntry(logrus.StandardLogger()).WithField("component", "nsecwalk"),
	}
}

// Walk enumerates every child name signaled by every nameserver in
// auths under ancestor's _boot subtree, verifies each via checkAuths,
// and returns the verified candidates (§4.4). Candidates failing
// verification are silently dropped, per spec.
func (w *Walker) Walk(ctx context.Context, ancestor string, auths []string) []Candidate {
	ancestor = canon(ancestor)
	scanID := events.NewScanID()

	w.auths.ResolveAuths(ctx, auths, func(ctx context.Context, owner string, rdtype uint16) (*Response, bool) {
		return w.query.Query(ctx, scanID, ancestor, owner, rdtype, nil)
	})

	var perAuth []map[string]struct{}
	for _, auth := range auths {
		addrs, _ := w.auths.Get(auth)
		prefixes, err := w.walkOne(ctx, scanID, ancestor, auth, addrs)
		if err != nil {
			w.log.WithFields(logrus.Fields{"ancestor": ancestor, "auth": auth}).WithError(err).Warn("NSEC walk failed")
			return nil
		}
		perAuth = append(perAuth, prefixes)
	}
	if len(perAuth) == 0 {
		return nil
	}

	candidates := intersectSets(perAuth)
	out := make([]Candidate, 0, len(candidates))
	for prefix := range candidates {
		child := canon(prefix + "." + ancestor)
		if prefix == "" {
			child = ancestor
		}
		if w.checkAuths(ctx, scanID, child, auths) {
			out = append(out, Candidate{Child: child, Auths: auths})
		}
	}
	return out
}

// walkOne walks the NSEC chain rooted at ancestor's entrypoint under a
// single authoritative nameserver, returning the set of relative
// prefixes it discovered (§4.4). Bounded to cfg.WalkStepLimit queries.
func (w *Walker) walkOne(ctx context.Context, scanID uuid.UUID, ancestor, auth string, addrs []string) (map[string]struct{}, error) {
	entry, err := entrypoint(ancestor, auth)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, ErrNoNameservers
	}

	prefixes := make(map[string]struct{})
	visited := make(map[string]struct{})
	prefix := ""
	for step := 0; step < w.cfg.WalkStepLimit; step++ {
		owner := entry
		if prefix != "" {
			owner = canon(prefix + "." + entry)
		}
		if _, already := visited[owner]; already {
			break
		}
		visited[owner] = struct{}{}

		resp, ok := w.query.Query(ctx, scanID, ancestor, owner, dns.TypeNSEC, addrs)
		if !ok {
			break
		}
		nsecSet := extractRRSet(resp.RRset, owner, dns.TypeNSEC)
		if len(nsecSet) == 0 {
			break
		}
		nsec, ok := nsecSet[0].(*dns.NSEC)
		if !ok {
			break
		}
		next := canon(nsec.NextDomain)

		relative, ok := relativePrefix(next, entry)
		if !ok {
			break
		}
		if relative != "" {
			prefixes[relative] = struct{}{}
		}
		prefix = relative
	}
	return prefixes, nil
}

// relativePrefix reports whether name is base or a subdomain of base,
// returning the relative portion (empty if name equals base).
func relativePrefix(name, base string) (string, bool) {
	name, base = canon(name), canon(base)
	if name == base {
		return "", true
	}
	suffix := "." + base
	if !strings.HasSuffix(name, suffix) {
		return "", false
	}
	return strings.TrimSuffix(name, suffix), true
}

// intersectSets returns the intersection of a non-empty slice of sets.
func intersectSets(sets []map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for k := range sets[0] {
		out[k] = struct{}{}
	}
	for _, s := range sets[1:] {
		for k := range out {
			if _, present := s[k]; !present {
				delete(out, k)
			}
		}
	}
	return out
}

// checkAuths verifies a discovered candidate (§4.4 check_auths): the
// candidate's real parent zone (found by querying SOA toward the root)
// must publish an NS RRset delegating candidate, and every one of those
// delegated nameservers that has a known address must answer a
// direct-mode NS query for candidate with exactly expected. Delegated
// hosts with no address are skipped; at least one host must confirm.
// This corroborates the walk-discovered
// candidate against the parent's own delegation, not against the
// candidate's self-reported NS — the two independent views §4.4
// requires check_auths to cross-check.
func (w *Walker) checkAuths(ctx context.Context, scanID uuid.UUID, candidate string, expected []string) bool {
	zone := w.findParentZone(ctx, scanID, candidate)
	if zone == "" {
		return false
	}

	zoneNSResp, ok := w.query.Query(ctx, scanID, candidate, zone, dns.TypeNS, nil)
	if !ok {
		return false
	}
	zoneNS := extractRRSet(zoneNSResp.RRset, zone, dns.TypeNS)
	if len(zoneNS) == 0 {
		return false
	}
	var zoneHosts []string
	for _, rr := range zoneNS {
		ns, ok := rr.(*dns.NS)
		if !ok {
			return false
		}
		zoneHosts = append(zoneHosts, ns.Ns)
	}

	w.auths.ResolveAuths(ctx, zoneHosts, func(ctx context.Context, owner string, rdtype uint16) (*Response, bool) {
		return w.query.Query(ctx, scanID, candidate, owner, rdtype, nil)
	})
	var zoneAddrs []string
	for _, host := range zoneHosts {
		addrs, _ := w.auths.Get(host)
		zoneAddrs = append(zoneAddrs, addrs...)
	}
	if len(zoneAddrs) == 0 {
		return false
	}

	delegationResp, ok := w.query.Query(ctx, scanID, candidate, candidate, dns.TypeNS, zoneAddrs)
	if !ok {
		return false
	}
	delegationNS := extractRRSet(delegationResp.RRset, candidate, dns.TypeNS)
	if len(delegationNS) == 0 {
		return false
	}
	var delegateHosts []string
	for _, rr := range delegationNS {
		ns, ok := rr.(*dns.NS)
		if !ok {
			return false
		}
		delegateHosts = append(delegateHosts, ns.Ns)
	}

	w.auths.ResolveAuths(ctx, delegateHosts, func(ctx context.Context, owner string, rdtype uint16) (*Response, bool) {
		return w.query.Query(ctx, scanID, candidate, owner, rdtype, nil)
	})

	confirmed := 0
	for _, host := range delegateHosts {
		addrs, _ := w.auths.Get(host)
		if len(addrs) == 0 {
			continue
		}
		directResp, ok := w.query.Query(ctx, scanID, candidate, candidate, dns.TypeNS, addrs)
		if !ok {
			return false
		}
		actual := extractRRSet(directResp.RRset, candidate, dns.TypeNS)
		if !nsSetEquals(actual, expected) {
			return false
		}
		confirmed++
	}
	return confirmed > 0
}

// findParentZone climbs from candidate's immediate parent toward the
// root, issuing recursive SOA queries, until one answers (§4.4
// "querying toward the root until SOA is located"). Returns "" if none
// answers before reaching the root.
func (w *Walker) findParentZone(ctx context.Context, scanID uuid.UUID, candidate string) string {
	name := parent(candidate)
	for name != "." {
		resp, ok := w.query.Query(ctx, scanID, candidate, name, dns.TypeSOA, nil)
		if ok && len(extractRRSet(resp.RRset, name, dns.TypeSOA)) > 0 {
			return name
		}
		name = parent(name)
	}
	return ""
}

// nsSetEquals reports whether an NS RRset's target hostnames match
// expected exactly, as sets (order-independent, canonicalized).
func nsSetEquals(actual []dns.RR, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}
	want := make(map[string]struct{}, len(expected))
	for _, e := range expected {
		want[canon(e)] = struct{}{}
	}
	for _, rr := range actual {
		ns, ok := rr.(*dns.NS)
		if !ok {
			return false
		}
		if _, present := want[canon(ns.Ns)]; !present {
			return false
		}
	}
	return true
}
