package dsbootstrap

import (
	"sort"

	"github.com/miekg/dns"
)

// rrPredicate reports whether an RR belongs in an extracted RRset.
type rrPredicate func(dns.RR) bool

// ofType matches any Rrtype in types.
func ofType(types ...uint16) rrPredicate {
	want := make(map[uint16]struct{}, len(types))
	for _, t := range types {
		want[t] = struct{}{}
	}
	return func(r dns.RR) bool {
		_, present := want[r.Header().Rrtype]
		return present
	}
}

// ownedBy matches owner names equal to name under canon, the same
// equality used for every other name comparison in this module (§3).
// An empty name matches anything, owner-agnostic extraction.
func ownedBy(name string) rrPredicate {
	if name == "" {
		return func(dns.RR) bool { return true }
	}
	want := canon(name)
	return func(r dns.RR) bool { return canon(r.Header().Name) == want }
}

// extractRRSet returns the subset of in matching every predicate.
// Grounded on solvere/resolver.go's extractRRSet, restructured as
// composable predicates over the canon-based name equality this module
// uses everywhere else, rather than a raw string comparison.
func extractRRSet(in []dns.RR, name string, types ...uint16) []dns.RR {
	match := []rrPredicate{ofType(types...), ownedBy(name)}
	out := make([]dns.RR, 0, len(in))
	for _, r := range in {
		keep := true
		for _, p := range match {
			if !p(r) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}

// canonicalRdata returns the sorted set of canonical (lowercase,
// TTL-stripped) text representations of an RRset's rdata. Two RRsets
// compare equal iff their canonicalRdata slices are equal, per the §3
// invariant that RRset equality ignores TTL and rdata order. Grounded
// on the original Python's all_equal/fetch_rrset_with_consistency,
// which build a set of rd.to_text() strings per DESIGN NOTES §9.
func canonicalRdata(rrset []dns.RR) []string {
	out := make([]string, 0, len(rrset))
	for _, rr := range rrset {
		cp := dns.Copy(rr)
		cp.Header().Ttl = 0
		cp.Header().Name = canon(cp.Header().Name)
		out = append(out, cp.String())
	}
	sort.Strings(out)
	return out
}

// rrsetEqual reports whether two RRsets are equal by owner name, type,
// class and canonicalized rdata set (§3 invariant), not by TTL or rdata
// order. An empty-vs-empty comparison is true.
func rrsetEqual(a, b []dns.RR) bool {
	an, bn := canonicalRdata(a), canonicalRdata(b)
	if len(an) != len(bn) {
		return false
	}
	for i := range an {
		if an[i] != bn[i] {
			return false
		}
	}
	return true
}

// allRRsetsEqual reports whether every RRset in sets is pairwise equal
// under rrsetEqual. An empty input is vacuously true.
func allRRsetsEqual(sets ...[]dns.RR) bool {
	for i := 1; i < len(sets); i++ {
		if !rrsetEqual(sets[0], sets[i]) {
			return false
		}
	}
	return true
}
