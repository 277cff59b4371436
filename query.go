package dsbootstrap

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/dsec-tools/dsbootstrap/config"
	"github.com/dsec-tools/dsbootstrap/events"
	"github.com/google/uuid"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

const dnsPort = "53"

// ErrNoNameservers is returned internally when neither recursive
// resolvers nor a nameserver list are available to query against.
var ErrNoNameservers = errors.New("dsbootstrap: no nameservers to query")

// Response is the result of a single query: the answer section (which
// may be empty, for a NOERROR/NODATA response; RRSIGs covering the
// answer are included in it) alongside the raw message for callers that
// need the authority or additional sections too. Grounded on solvere/resolver.go's
// Answer type, trimmed to what the Query Layer itself needs to return.
type Response struct {
	RRset      []dns.RR
	Msg        *dns.Msg
	Nameserver string
}

// Querier issues DNS queries against either the system's recursive
// resolver or directly against caller-supplied nameserver IPs (§4.1).
// Grounded on solvere/resolver.go's query() method and the original
// Python's query_dns(), stripped of the teacher's iterative
// root-chasing (see DESIGN.md).
type Querier struct {
	cfg   *config.Config
	sink  *events.Sink
	log   *logrus.Entry
	clock func() time.Time
}

// NewQuerier returns a Querier using cfg's resolver list/rotation/
// timeout and recording classified failures to sink.
func NewQuerier(cfg *config.Config, sink *events.Sink) *Querier {
	return &Querier{
		cfg:   cfg,
		sink:  sink,
		log:   logrus.NewEntry(logrus.StandardLogger()).WithField("component", "query"),
		clock: time.Now,
	}
}

// Query issues owner/rdtype once, either in recursive mode (nameservers
// is empty: uses the configured resolver list, RD set, relies on the
// resolver for DNSSEC validation) or direct mode (nameservers is
// non-empty: targets those IPs, neither CD nor RD set, no external
// DNSSEC validation occurs). All queries set EDNS0 version 0, DO bit,
// UDP payload size 1200 (§4.1). Returns (nil, false) on any failure,
// having classified and recorded DNS_BOGUS/DNS_LAME/DNS_TIMEOUT as
// appropriate; the caller decides whether to additionally record
// DNS_FAILURE or another domain-scoped event (§4.1, §7).
func (q *Querier) Query(ctx context.Context, scanID uuid.UUID, domain, owner string, rdtype uint16, nameservers []string) (*Response, bool) {
	targets := nameservers
	recursive := len(targets) == 0
	if recursive {
		targets = q.cfg.ResolverAddresses
		if q.cfg.Rotate {
			targets = shuffled(targets)
		}
	}
	if len(targets) == 0 {
		q.log.WithField("domain", owner).Warn("no nameservers available")
		return nil, false
	}

	m := q.buildMsg(owner, rdtype, recursive, false)
	resp, ns, err := q.exchange(ctx, m, targets)
	if err == nil {
		return &Response{RRset: resp.Answer, Msg: resp, Nameserver: ns}, true
	}

	switch {
	case isNoNameservers(err):
		// Retry with CD set: if that succeeds, the original failure was
		// a DNSSEC validation failure (bogus); otherwise it's an
		// operational (lame) failure (§4.1).
		cdMsg := q.buildMsg(owner, rdtype, recursive, true)
		if _, _, cdErr := q.exchange(ctx, cdMsg, targets); cdErr == nil {
			q.log.WithField("domain", owner).Warn("bogus DNSSEC")
			q.sink.Record(scanID, domain, events.DNSBogus)
		} else {
			q.log.WithField("domain", owner).Warn("lame delegation")
			q.sink.Record(scanID, domain, events.DNSLame)
		}
	case errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		q.log.WithField("domain", owner).Warn("query timed out")
		q.sink.Record(scanID, domain, events.DNSTimeout)
	default:
		q.log.WithField("domain", owner).WithError(err).Debug("query failed")
	}
	return nil, false
}

func (q *Querier) buildMsg(owner string, rdtype uint16, recursive, cd bool) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(canon(owner), rdtype)
	m.SetEdns0(1200, true)
	m.RecursionDesired = recursive
	m.CheckingDisabled = cd
	return m
}

// exchange sends m to each target in turn (a fresh *dns.Client per
// call, no shared mutable resolver state across queries, per §4.1
// "Ordering / statelessness") until one replies or all fail.
func (q *Querier) exchange(ctx context.Context, m *dns.Msg, targets []string) (*dns.Msg, string, error) {
	c := &dns.Client{Timeout: q.cfg.QueryTimeout}
	var lastErr error = ErrNoNameservers
	for _, target := range targets {
		addr := withDefaultPort(target, dnsPort)
		r, _, err := c.ExchangeContext(ctx, m, addr)
		if err != nil {
			lastErr = err
			continue
		}
		return r, target, nil
	}
	return nil, "", lastErr
}

// withDefaultPort returns addr unchanged if it already names a port,
// otherwise appends defaultPort. Lets callers (and tests) configure
// either bare IPs (the common case, port 53 implied) or host:port.
func withDefaultPort(addr, defaultPort string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, defaultPort)
}

func shuffled(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isNoNameservers(err error) bool {
	// dns.Client.ExchangeContext surfaces unreachable/refused upstreams
	// as plain net.OpError failures (connection refused, no route),
	// which the original Python's dns.resolver.NoNameservers maps to.
	// Timeouts also arrive as net.OpError and are classified separately.
	if isTimeout(err) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && !ne.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
