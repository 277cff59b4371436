package dsbootstrap

import (
	"context"
	"fmt"
	"sync"

	"github.com/dsec-tools/dsbootstrap/config"
	"github.com/dsec-tools/dsbootstrap/events"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jmhodges/clock"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Engine runs the six-step Bootstrap procedure (§4.3) for one
// (child, auths) tuple at a time. Grounded step-by-step on
// original_source/dsbootstrap/scanner.py's do_scan, restructured into
// named steps with fan-out per golang.org/x/sync/errgroup (grounded on
// semihalev-sdns's parallelLookupV4Nss) where §5 allows it.
type Engine struct {
	query *Querier
	auths *AuthCache
	sink  *events.Sink
	cfg   *config.Config
	clock clock.Clock
	log   *logrus.Entry
}

// NewEngine returns a ready-to-use Engine.
func NewEngine(query *Querier, auths *AuthCache, sink *events.Sink, cfg *config.Config) *Engine {
	return &Engine{
		query: query,
		auths: auths,
		sink:  sink,
		cfg:   cfg,
		clock: clock.Default(),
		log:   logrus.NewEntry(logrus.StandardLogger()).WithField("component", "bootstrap"),
	}
}

// Scan runs the six-step bootstrap procedure for child against its
// authoritative nameservers auths (a non-empty ordered list of
// hostnames). Returns the candidate DS RRset and true on success, or
// (nil, false) with exactly one terminal event recorded explaining the
// classification (§4.3, §7, §8 "at most one terminal event per scan").
func (e *Engine) Scan(ctx context.Context, child string, auths []string) ([]dns.RR, bool) {
	child = canon(child)
	scanID := events.NewScanID()
	log := e.log.WithFields(logrus.Fields{"child": child, "scan_id": scanID})

	// Step 1 — pre-existence check.
	ds, ok := e.query.Query(ctx, scanID, child, child, dns.TypeDS, nil)
	if !ok {
		e.sink.Record(scanID, child, events.DNSFailure)
		return nil, false
	}
	if len(extractRRSet(ds.RRset, child, dns.TypeDS)) > 0 {
		e.sink.Record(scanID, child, events.HaveDS)
		return nil, false
	}

	// Resolve every authoritative nameserver's addresses (§4.2), then
	// use them for every direct-mode query below.
	e.auths.ResolveAuths(ctx, auths, func(ctx context.Context, owner string, rdtype uint16) (*Response, bool) {
		return e.query.Query(ctx, scanID, child, owner, rdtype, nil)
	})
	authAddrs := make(map[string][]string, len(auths))
	for _, auth := range auths {
		addrs, _ := e.auths.Get(auth)
		authAddrs[auth] = addrs
	}

	// Step 2 — child-apex consistency.
	apexCDS, ok := e.fetchWithConsistency(ctx, scanID, child, child, dns.TypeCDS, authAddrs)
	if !ok {
		e.sink.Record(scanID, child, events.ChildCDSInconsistent)
		return nil, false
	}
	apexCDNSKEY, ok := e.fetchWithConsistency(ctx, scanID, child, child, dns.TypeCDNSKEY, authAddrs)
	if !ok {
		e.sink.Record(scanID, child, events.ChildCDNSKEYInconsistent)
		return nil, false
	}

	// Step 3 — signaling-name collection.
	cdsViews := map[string][]dns.RR{apexSentinel: apexCDS}
	cdnskeyViews := map[string][]dns.RR{apexSentinel: apexCDNSKEY}
	// Signaling answers are owned by the signaling FQDN; re-own them at
	// child so Step 4 compares them with the apex view as rdata sets.
	reown := func(rrs []dns.RR) []dns.RR {
		for i, rr := range rrs {
			cp := dns.Copy(rr)
			cp.Header().Name = child
			rrs[i] = cp
		}
		return rrs
	}
	for _, auth := range auths {
		fqdn, err := signalingFQDN(child, auth)
		if err != nil {
			log.WithError(err).Warn("failed to compute signaling name")
			continue
		}
		if resp, ok := e.query.Query(ctx, scanID, child, fqdn, dns.TypeCDS, nil); ok {
			cdsViews[fqdn] = reown(extractRRSet(resp.RRset, fqdn, dns.TypeCDS))
		} else {
			e.sink.Record(scanID, child, events.NoCDS)
		}
		if resp, ok := e.query.Query(ctx, scanID, child, fqdn, dns.TypeCDNSKEY, nil); ok {
			cdnskeyViews[fqdn] = reown(extractRRSet(resp.RRset, fqdn, dns.TypeCDNSKEY))
		} else {
			e.sink.Record(scanID, child, events.NoCDNSKEY)
		}
	}

	// Step 4 — cross-view agreement.
	if !allRRsetsEqual(valuesOf(cdsViews)...) {
		e.sink.Record(scanID, child, events.BootCDSInconsistent)
		return nil, false
	}
	if !allRRsetsEqual(valuesOf(cdnskeyViews)...) {
		e.sink.Record(scanID, child, events.BootCDNSKEYInconsistent)
		return nil, false
	}
	cds := cdsViews[apexSentinel]
	cdnskey := cdnskeyViews[apexSentinel]
	if len(cds) == 0 && len(cdnskey) == 0 {
		e.sink.Record(scanID, child, events.BootNoop)
		return nil, false
	}

	// Step 5 — DS construction. The CDNSKEY set is logged for audit and
	// additionally cross-checked against the CDS set (§9 Open Question
	// 1: "a safer implementation should additionally check that DS
	// computed from the CDNSKEY set equals the CDS set").
	candidateDS := dsFromCDS(child, cds)
	if len(cdnskey) > 0 && !dsMatchesCDNSKEY(candidateDS, cdnskey) {
		log.Warn("DS computed from CDNSKEY set does not match CDS set")
		e.sink.Record(scanID, child, events.BootCDNSKEYInconsistent)
		return nil, false
	}
	log.WithField("cdnskey_count", len(cdnskey)).Debug("CDNSKEY set accepted for audit")

	// Step 6 — continuity check. Query DNSKEY directly from every
	// nameserver and require agreement before trusting any single
	// answer's signatures, same shape as fetchWithConsistency but kept
	// separate since we also need the raw answer (RRSIGs included) for
	// checkContinuity, not just the DNSKEY rdata.
	var (
		mu          sync.Mutex
		sets        [][]dns.RR
		firstAnswer []dns.RR
		failure     *multierror.Error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, auth := range auths {
		auth := auth
		g.Go(func() error {
			resp, ok := e.query.Query(gctx, scanID, child, child, dns.TypeDNSKEY, authAddrs[auth])
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				failure = multierror.Append(failure, fmt.Errorf("dsbootstrap: no DNSKEY answer from %s", auth))
				return nil
			}
			sets = append(sets, extractRRSet(resp.RRset, child, dns.TypeDNSKEY))
			if firstAnswer == nil {
				firstAnswer = resp.RRset
			}
			return nil
		})
	}
	_ = g.Wait()
	if failure.ErrorOrNil() != nil {
		log.WithError(failure).Warn("incomplete DNSKEY answers across nameservers")
		e.sink.Record(scanID, child, events.ChildDNSKEYInconsistent)
		return nil, false
	}
	if !allRRsetsEqual(sets...) {
		e.sink.Record(scanID, child, events.ChildDNSKEYInconsistent)
		return nil, false
	}

	if !checkContinuity(candidateDS, firstAnswer, e.clock) {
		log.Warn("DNSKEY not properly signed by candidate DS")
		e.sink.Record(scanID, child, events.ContinuityErr)
		return nil, false
	}

	return candidateDS, true
}

// apexSentinel is the map key used for the child-apex view in the
// CDS/CDNSKEY cross-view agreement maps (§4.3 "keyed by the sentinel
// apex"); any value distinct from every possible signaling FQDN works,
// since signaling FQDNs always contain "._boot.".
const apexSentinel = "apex"

// fetchWithConsistency queries rdtype at owner independently from every
// nameserver in authAddrs and requires the results to be pairwise
// equal (§4.2 Step 2's fetch_rrset_with_consistency). A nameserver
// whose query fails outright also counts as inconsistency: agreement
// can't be established without its answer.
func (e *Engine) fetchWithConsistency(ctx context.Context, scanID uuid.UUID, domain, owner string, rdtype uint16, authAddrs map[string][]string) ([]dns.RR, bool) {
	type result struct {
		auth  string
		rrset []dns.RR
		ok    bool
	}
	g, gctx := errgroup.WithContext(ctx)
	resultsCh := make(chan result, len(authAddrs))
	for auth, addrs := range authAddrs {
		auth, addrs := auth, addrs
		g.Go(func() error {
			if len(addrs) == 0 {
				resultsCh <- result{auth: auth, ok: false}
				return nil
			}
			resp, ok := e.query.Query(gctx, scanID, domain, owner, rdtype, addrs)
			if !ok {
				resultsCh <- result{auth: auth, ok: false}
				return nil
			}
			resultsCh <- result{auth: auth, rrset: extractRRSet(resp.RRset, owner, rdtype), ok: true}
			return nil
		})
	}
	_ = g.Wait()
	close(resultsCh)

	var sets [][]dns.RR
	for r := range resultsCh {
		if !r.ok {
			return nil, false
		}
		sets = append(sets, r.rrset)
	}
	if !allRRsetsEqual(sets...) {
		return nil, false
	}
	if len(sets) == 0 {
		return nil, true
	}
	return sets[0], true
}

// valuesOf returns the values of an RRset-keyed map, in unspecified
// order — fine for allRRsetsEqual, which is order-independent over its
// arguments as well as within each RRset.
func valuesOf(m map[string][]dns.RR) [][]dns.RR {
	out := make([][]dns.RR, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// dsFromCDS builds the candidate DS RRset for child from a CDS rdata
// set: CDS and DS share wire format (§4.3 Step 5), so each CDS rdata
// becomes a DS rdata with the same fields, owned by child.
func dsFromCDS(child string, cds []dns.RR) []dns.RR {
	out := make([]dns.RR, 0, len(cds))
	for _, rr := range cds {
		c, ok := rr.(*dns.CDS)
		if !ok {
			continue
		}
		out = append(out, &dns.DS{
			Hdr:        dns.RR_Header{Name: canon(child), Rrtype: dns.TypeDS, Class: dns.ClassINET, Ttl: c.Hdr.Ttl},
			KeyTag:     c.KeyTag,
			Algorithm:  c.Algorithm,
			DigestType: c.DigestType,
			Digest:     c.Digest,
		})
	}
	return out
}

// dsMatchesCDNSKEY reports whether computing a DS from every CDNSKEY
// rdata, at the digest type of the correspondingly key-tagged candidate
// DS, yields exactly the candidate DS set (§9 Open Question 1).
func dsMatchesCDNSKEY(candidateDS []dns.RR, cdnskey []dns.RR) bool {
	byTag := make(map[uint16]*dns.CDNSKEY, len(cdnskey))
	for _, rr := range cdnskey {
		if c, ok := rr.(*dns.CDNSKEY); ok {
			byTag[c.KeyTag()] = c
		}
	}
	derived := make([]dns.RR, 0, len(candidateDS))
	used := make(map[uint16]struct{}, len(byTag))
	for _, rr := range candidateDS {
		ds, ok := rr.(*dns.DS)
		if !ok {
			continue
		}
		key, present := byTag[ds.KeyTag]
		if !present {
			return false
		}
		used[ds.KeyTag] = struct{}{}
		computed := key.ToDS(ds.DigestType)
		if computed == nil {
			return false
		}
		computed.Hdr = ds.Hdr
		derived = append(derived, computed)
	}
	if len(used) != len(byTag) {
		return false
	}
	return rrsetEqual(derived, candidateDS)
}
