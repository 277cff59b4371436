package dsbootstrap

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dsec-tools/dsbootstrap/config"
	"github.com/dsec-tools/dsbootstrap/events"
	"github.com/miekg/dns"
)

// startMockServer starts a UDP DNS server bound to 127.0.0.1:0 running
// handler, returning its address and a stop function. Grounded on
// solvere/dnssec_test.go's mockDNSKEYServer + dns.Server pattern.
func startMockServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %s", err)
	}
	mux := dns.NewServeMux()
	mux.HandleFunc(".", handler)
	srv := &dns.Server{PacketConn: pc, Handler: mux}
	go srv.ActivateAndServe()
	t.Cleanup(func() {
		srv.Shutdown()
	})
	return pc.LocalAddr().String()
}

func newTestQuerier(t *testing.T, addrs []string) (*Querier, *events.Sink) {
	cfg := config.Default()
	cfg.ResolverAddresses = addrs
	cfg.QueryTimeout = 500 * time.Millisecond
	sink := events.New(nil)
	return NewQuerier(cfg, sink), sink
}

func TestQueryRecursiveSuccess(t *testing.T) {
	addr := startMockServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		rr, _ := dns.NewRR("example.test. 300 IN A 1.2.3.4")
		m.Answer = []dns.RR{rr}
		w.WriteMsg(m)
	})
	q, _ := newTestQuerier(t, []string{addr})

	resp, ok := q.Query(context.Background(), events.NewScanID(), "example.test.", "example.test.", dns.TypeA, nil)
	if !ok {
		t.Fatalf("expected success")
	}
	if len(resp.RRset) != 1 {
		t.Fatalf("expected 1 answer RR, got %d", len(resp.RRset))
	}
}

func TestQueryDirectModeSetsNoRD(t *testing.T) {
	var sawRD bool
	addr := startMockServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		sawRD = r.RecursionDesired
		m := new(dns.Msg)
		m.SetReply(r)
		w.WriteMsg(m)
	})
	q, _ := newTestQuerier(t, nil)

	_, ok := q.Query(context.Background(), events.NewScanID(), "example.test.", "example.test.", dns.TypeDNSKEY, []string{addr})
	if !ok {
		t.Fatalf("expected success")
	}
	if sawRD {
		t.Fatalf("direct mode must not set RD")
	}
}

func TestQueryTimeoutRecordsEvent(t *testing.T) {
	// No server listening on this address; dial should fail/timeout.
	q, sink := newTestQuerier(t, []string{"127.0.0.1:1"})
	q.cfg.QueryTimeout = 200 * time.Millisecond

	_, ok := q.Query(context.Background(), events.NewScanID(), "example.test.", "example.test.", dns.TypeA, nil)
	if ok {
		t.Fatalf("expected failure")
	}
	counts := sink.Counts()
	if counts[events.DNSTimeout] == 0 && counts[events.DNSLame] == 0 {
		t.Fatalf("expected either DNS_TIMEOUT or DNS_LAME to be recorded, got %+v", counts)
	}
}

