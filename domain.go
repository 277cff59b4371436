// Package dsbootstrap implements a DS-bootstrapping scanner for DNSSEC
// delegations: given a child zone and the hostnames of its authoritative
// nameservers, it decides whether the parent zone can safely publish a
// DS record set for the child, and if so, computes that DS set.
package dsbootstrap

import (
	"strings"

	"github.com/miekg/dns"
)

// canon returns the lowercase, absolute (trailing-dot) form of a domain
// name. All domain names are canonicalized this way before hashing,
// querying, or comparison (§3 invariant).
func canon(name string) string {
	return strings.ToLower(dns.Fqdn(name))
}

// parent returns the immediate parent of an absolute, canonical domain
// name, i.e. everything after the first label. parent(".") is ".".
func parent(name string) string {
	name = canon(name)
	if name == "." {
		return "."
	}
	_, rest, ok := strings.Cut(name, ".")
	if !ok || rest == "" {
		return "."
	}
	return rest
}

// firstLabel returns the leftmost label of an absolute, canonical domain
// name, unescaped of its trailing dot.
func firstLabel(name string) string {
	name = canon(name)
	label, _, _ := strings.Cut(name, ".")
	return label
}

// wireName encodes a domain name in uncompressed DNS wire format, the
// input to the signaling-name hash (§4.3).
func wireName(name string) ([]byte, error) {
	buf := make([]byte, dns.MaxMsgSize)
	n, err := dns.PackDomainName(canon(name), buf, 0, nil, false)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// isSubdomain reports whether child is equal to or a subdomain of
// parent, after canonicalization.
func isSubdomain(child, parentName string) bool {
	return dns.IsSubDomain(canon(parentName), canon(child))
}
