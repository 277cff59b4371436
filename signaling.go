package dsbootstrap

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
)

// hexAlphabet is the NSEC3 "extended-hex" base32 alphabet (RFC 5155
// §3.1.1 points at RFC 4648 §7's "base32hex"), used to encode the
// signaling-name hash (§4.3). Grounded on the original Python's use of
// dns.rdtypes.ANY.NSEC3.b32_normal_to_hex and, for the stdlib-idiom
// choice, johanix-tdns/v0.x/base32_utils.go's own use of
// encoding/base32 for domain-label encoding.
const hexAlphabet = "0123456789abcdefghijklmnopqrstuv"

var hexEncoding = base32.NewEncoding(hexAlphabet).WithPadding(base32.NoPadding)

// signalingHash computes the base32hex-SHA256 digest of name's
// uncompressed wire format, lowercased, with padding stripped (§4.3).
// A pure function: repeated calls on the same name yield byte-identical
// output (§8 invariant).
func signalingHash(name string) (string, error) {
	wire, err := wireName(name)
	if err != nil {
		return "", fmt.Errorf("dsbootstrap: wire-encode %s: %w", name, err)
	}
	digest := sha256.Sum256(wire)
	return hexEncoding.EncodeToString(digest[:]), nil
}

// signalingOwner computes the owner name under which child publishes
// its own CDS/CDNSKEY signal: <firstlabel>.<base32hex-sha256(parent)>
// (§4.3). This is the name prepended to "._boot.<auth>" for each
// authoritative nameserver to form the full signaling FQDN.
func signalingOwner(child string) (string, error) {
	hash, err := signalingHash(parent(child))
	if err != nil {
		return "", err
	}
	return firstLabel(child) + "." + hash, nil
}

// signalingFQDN computes the full signaling name for child's CDS/CDNSKEY
// publication at a specific authoritative nameserver (§4.3):
// <firstlabel>.<base32hex-sha256(parent)>._boot.<auth>
func signalingFQDN(child, auth string) (string, error) {
	owner, err := signalingOwner(child)
	if err != nil {
		return "", err
	}
	return canon(owner + "._boot." + canon(auth)), nil
}

// entrypoint computes the root of the NSEC chain the Discovery Walker
// walks for a given ancestor zone under a given authoritative
// nameserver (§4.4): <signaling_hash(ancestor)>._boot.<auth>
func entrypoint(ancestor, auth string) (string, error) {
	hash, err := signalingHash(ancestor)
	if err != nil {
		return "", err
	}
	return canon(hash + "._boot." + canon(auth)), nil
}
