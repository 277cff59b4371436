package dsbootstrap

import (
	"context"
	"testing"

	"github.com/miekg/dns"
)

func TestResolveAuthsUnionsAAAAAndA(t *testing.T) {
	calls := 0
	query := func(ctx context.Context, owner string, rdtype uint16) (*Response, bool) {
		calls++
		switch rdtype {
		case dns.TypeAAAA:
			return &Response{RRset: []dns.RR{mustRR(t, owner+" 300 IN AAAA ::1")}}, true
		case dns.TypeA:
			return &Response{RRset: []dns.RR{mustRR(t, owner+" 300 IN A 1.2.3.4")}}, true
		}
		return nil, false
	}

	c := NewAuthCache()
	c.ResolveAuths(context.Background(), []string{"ns1.test."}, query)

	addrs, present := c.Get("ns1.test.")
	if !present {
		t.Fatalf("expected ns1.test. to be cached")
	}
	if len(addrs) != 2 {
		t.Fatalf("expected 2 addresses, got %v", addrs)
	}
	if calls != 2 {
		t.Fatalf("expected 2 queries (AAAA, A), got %d", calls)
	}
}

func TestResolveAuthsIsIdempotent(t *testing.T) {
	calls := 0
	query := func(ctx context.Context, owner string, rdtype uint16) (*Response, bool) {
		calls++
		return nil, false
	}

	c := NewAuthCache()
	c.m.Set(canon("ns1.test."), []string{"9.9.9.9"})
	c.ResolveAuths(context.Background(), []string{"ns1.test."}, query)

	if calls != 0 {
		t.Fatalf("expected already-cached hostname to skip resolution, got %d calls", calls)
	}
	addrs, _ := c.Get("ns1.test.")
	if len(addrs) != 1 || addrs[0] != "9.9.9.9" {
		t.Fatalf("expected cached entry untouched, got %v", addrs)
	}
}

func TestResolveAuthsLeavesEmptyEntryOnFailure(t *testing.T) {
	query := func(ctx context.Context, owner string, rdtype uint16) (*Response, bool) {
		return nil, false
	}

	c := NewAuthCache()
	c.ResolveAuths(context.Background(), []string{"unreachable.test."}, query)

	addrs, present := c.Get("unreachable.test.")
	if !present {
		t.Fatalf("expected an entry to be present even on resolution failure")
	}
	if len(addrs) != 0 {
		t.Fatalf("expected empty address set, got %v", addrs)
	}
}
