package dsbootstrap

import (
	"errors"

	"github.com/jmhodges/clock"
	"github.com/miekg/dns"
)

// Errors surfaced internally by the continuity check; all of them
// collapse to a false return and a CONTINUITY_ERR event at the
// Bootstrap Engine (§4.5, §7).
var (
	ErrNoDNSKEYForAlgorithm = errors.New("dsbootstrap: no DNSKEY matches candidate DS for algorithm")
	ErrNoValidSignature     = errors.New("dsbootstrap: no valid RRSIG over DNSKEY RRset by a trust-anchor key")
)

// checkContinuity implements §4.5: partition the candidate DS set by
// algorithm, and for each algorithm require that some DNSKEY in
// dnskeyAnswer both matches key-tag and recomputed-digest with a DS in
// that partition, AND that the DNSKEY RRset is validly signed by at
// least one such key. Returns true iff every algorithm partition
// validates; any failure (including an unsupported algorithm bubbling
// out of ToDS) returns false, never panics. Grounded on
// solvere/dnssec.go's checkDS/verifyRRSIG, generalized per the original
// Python's check_continuity/filter_dnskey_set (partition-by-algorithm,
// not single-DS).
func checkContinuity(candidateDS []dns.RR, dnskeyAnswer []dns.RR, clk clock.Clock) bool {
	dnskeys := extractRRSet(dnskeyAnswer, "", dns.TypeDNSKEY)
	sigs := extractRRSet(dnskeyAnswer, "", dns.TypeRRSIG)

	byAlgorithm := make(map[uint8][]*dns.DS)
	for _, rr := range candidateDS {
		ds, ok := rr.(*dns.DS)
		if !ok {
			continue
		}
		byAlgorithm[ds.Algorithm] = append(byAlgorithm[ds.Algorithm], ds)
	}
	if len(byAlgorithm) == 0 {
		return false
	}

	for alg, dsSet := range byAlgorithm {
		if err := validateAlgorithm(alg, dsSet, dnskeys, sigs, clk); err != nil {
			return false
		}
	}
	return true
}

// validateAlgorithm validates one algorithm's DS partition against the
// DNSKEY/RRSIG answer.
func validateAlgorithm(alg uint8, dsSet []*dns.DS, dnskeys, sigs []dns.RR, clk clock.Clock) error {
	trustAnchors := filterDNSKEYSet(dnskeys, dsSet)
	if len(trustAnchors) == 0 {
		return ErrNoDNSKEYForAlgorithm
	}

	now := clk.Now()
	for _, sigRR := range sigs {
		sig, ok := sigRR.(*dns.RRSIG)
		if !ok || sig.TypeCovered != dns.TypeDNSKEY || sig.Algorithm != alg {
			continue
		}
		key, present := trustAnchors[sig.KeyTag]
		if !present {
			continue
		}
		if err := sig.Verify(key, dnskeys); err != nil {
			continue
		}
		if !sig.ValidityPeriod(now) {
			continue
		}
		return nil
	}
	return ErrNoValidSignature
}

// filterDNSKEYSet returns the subset of dnskeys, keyed by key tag, whose
// key tag matches some DS in dsSet and whose recomputed DS (at that
// DS's digest type) equals it. Grounded on solvere/dnssec.go's
// filter_dnskey_set / checkDS.
func filterDNSKEYSet(dnskeys []dns.RR, dsSet []*dns.DS) map[uint16]*dns.DNSKEY {
	out := make(map[uint16]*dns.DNSKEY)
	for _, rr := range dnskeys {
		dnskey, ok := rr.(*dns.DNSKEY)
		if !ok {
			continue
		}
		tag := dnskey.KeyTag()
		for _, ds := range dsSet {
			if ds.KeyTag != tag {
				continue
			}
			computed := dnskey.ToDS(ds.DigestType)
			if computed == nil {
				continue
			}
			if computed.Digest == ds.Digest {
				out[tag] = dnskey
			}
		}
	}
	return out
}
