// Package events implements the Event Sink: a shared, append-only queue
// of (domain, event) pairs produced by many concurrent scans and drained
// only at report time (§4, §9 "Event sink as queue drained at report
// time"). Grounded on original_source/dsbootstrap/stats.py.
package events

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event is one member of the closed, stable-wire-name event taxonomy
// (§6). The string values are the wire names themselves.
type Event string

// The full closed taxonomy, including the reserved-but-currently-unused
// members (§6). Kept as a closed set: no code outside this package may
// construct an Event value that isn't one of these.
const (
	HaveDS  Event = "HAVE_DS"
	HaveCDS Event = "HAVE_CDS" // reserved, unused

	DNSFailure Event = "DNS_FAILURE"
	DNSBogus   Event = "DNS_BOGUS"
	DNSLame    Event = "DNS_LAME"
	DNSTimeout Event = "DNS_TIMEOUT"

	ChildCDSInconsistent     Event = "CHILD_CDS_INCONSISTENT"
	ChildCDNSKEYInconsistent Event = "CHILD_CDNSKEY_INCONSISTENT"
	ChildDNSKEYInconsistent  Event = "CHILD_DNSKEY_INCONSISTENT"

	BootCDSInconsistent     Event = "BOOT_CDS_INCONSISTENT"
	BootCDNSKEYInconsistent Event = "BOOT_CDNSKEY_INCONSISTENT"
	BootNoop                Event = "BOOT_NOOP"

	NoCDS     Event = "NO_CDS"
	NoCDNSKEY Event = "NO_CDNSKEY"

	ContinuityErr Event = "CONTINUITY_ERR"

	// Reserved, not currently emitted by the engine (§6, §9 Open
	// Question 2: the original conflates CDS-delete with BOOT_NOOP).
	OldSig         Event = "OLD_SIG"
	NotSignedByKSK Event = "NOT_SIGNED_BY_KSK"
	CDSDelete      Event = "CDS_DELETE"
	CDSNoop        Event = "CDS_NOOP"
)

// allEvents lists every taxonomy member, in wire-stable order, for the
// count report.
var allEvents = []Event{
	HaveDS, DNSFailure, DNSBogus, DNSLame, DNSTimeout,
	ChildCDSInconsistent, ChildCDNSKEYInconsistent, ChildDNSKEYInconsistent,
	BootCDSInconsistent, BootCDNSKEYInconsistent, BootNoop,
	NoCDS, NoCDNSKEY, ContinuityErr,
	HaveCDS, OldSig, NotSignedByKSK, CDSDelete, CDSNoop,
}

// record is one queued (domain, event) pair tagged with the scan-run id
// that produced it, so a single scan's terminal event is correlatable in
// logs without threading an id through every function signature.
type record struct {
	domain string
	event  Event
	scanID uuid.UUID
}

// Sink is a concurrent, multi-producer/single-consumer Event Sink. The
// zero value is not usable; construct with New.
type Sink struct {
	mu      sync.Mutex
	queue   []record
	log     *logrus.Entry
	byEvent map[Event][]string
}

// New returns an empty Sink. If log is nil, a default logrus entry is
// used (grounded on 0xERR0R-blocky/log's package-level default entry).
func New(log *logrus.Entry) *Sink {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sink{
		log:     log.WithField("component", "events"),
		byEvent: make(map[Event][]string),
	}
}

// Record appends one event for domain to the queue. Safe for concurrent
// use by any number of scans. Never blocks on, or is blocked by, report
// generation beyond a brief mutex hold (§5 "both must be protected by
// internal synchronization").
func (s *Sink) Record(scanID uuid.UUID, domain string, event Event) {
	s.mu.Lock()
	s.queue = append(s.queue, record{domain: domain, event: event, scanID: scanID})
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{
		"domain":  domain,
		"event":   string(event),
		"scan_id": scanID,
	}).Debug("event recorded")
}

// drain folds any queued records into the per-event domain index. Must
// be called with s.mu held.
func (s *Sink) drain() {
	for _, r := range s.queue {
		s.byEvent[r.event] = append(s.byEvent[r.event], r.domain)
	}
	s.queue = s.queue[:0]
}

// Counts returns the count-per-event-kind summary report (§6): a map
// with an entry for every taxonomy member, zero where none was
// recorded, matching the original Python's stats.report_counts.
func (s *Sink) Counts() map[Event]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drain()
	out := make(map[Event]int, len(allEvents))
	for _, e := range allEvents {
		out[e] = len(s.byEvent[e])
	}
	return out
}

// Report returns the full event-kind → list-of-domains mapping (§6),
// matching the original Python's stats.report_domains. The returned map
// and slices are owned by the caller; subsequent Record calls do not
// mutate them.
func (s *Sink) Report() map[Event][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drain()
	out := make(map[Event][]string, len(s.byEvent))
	for e, domains := range s.byEvent {
		cp := make([]string, len(domains))
		copy(cp, domains)
		out[e] = cp
	}
	return out
}

// NewScanID returns a fresh scan-run identifier for tagging one
// (child, auths) scan's event records.
func NewScanID() uuid.UUID {
	return uuid.New()
}
