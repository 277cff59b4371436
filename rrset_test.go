package dsbootstrap

import (
	"testing"

	"github.com/miekg/dns"
)

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	if err != nil {
		t.Fatalf("dns.NewRR(%q): %s", s, err)
	}
	return rr
}

func TestExtractRRSetFiltersByTypeAndOwner(t *testing.T) {
	in := []dns.RR{
		mustRR(t, "a.test. 300 IN A 1.2.3.4"),
		mustRR(t, "a.test. 300 IN AAAA ::1"),
		mustRR(t, "b.test. 300 IN A 5.6.7.8"),
	}
	got := extractRRSet(in, "a.test.", dns.TypeA)
	if len(got) != 1 {
		t.Fatalf("expected 1 RR, got %d", len(got))
	}
}

func TestExtractRRSetMultipleTypes(t *testing.T) {
	in := []dns.RR{
		mustRR(t, "a.test. 300 IN CDS 1 8 2 0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCD"),
		mustRR(t, "a.test. 300 IN RRSIG CDS 8 2 300 20300101000000 20200101000000 1 a.test. AAAA"),
	}
	got := extractRRSet(in, "a.test.", dns.TypeCDS, dns.TypeRRSIG)
	if len(got) != 2 {
		t.Fatalf("expected 2 RRs, got %d", len(got))
	}
}

func TestRRsetEqualIgnoresTTLAndOrder(t *testing.T) {
	a := []dns.RR{
		mustRR(t, "a.test. 300 IN A 1.2.3.4"),
		mustRR(t, "a.test. 300 IN A 5.6.7.8"),
	}
	b := []dns.RR{
		mustRR(t, "a.test. 900 IN A 5.6.7.8"),
		mustRR(t, "a.test. 900 IN A 1.2.3.4"),
	}
	if !rrsetEqual(a, b) {
		t.Fatalf("expected RRsets to be equal modulo TTL/order")
	}
}

func TestRRsetEqualDetectsDifference(t *testing.T) {
	a := []dns.RR{mustRR(t, "a.test. 300 IN A 1.2.3.4")}
	b := []dns.RR{mustRR(t, "a.test. 300 IN A 1.2.3.5")}
	if rrsetEqual(a, b) {
		t.Fatalf("expected RRsets to differ")
	}
}

func TestAllRRsetsEqualVacuousAndPairwise(t *testing.T) {
	if !allRRsetsEqual() {
		t.Fatalf("no sets should be vacuously equal")
	}
	one := []dns.RR{mustRR(t, "a.test. 300 IN A 1.2.3.4")}
	if !allRRsetsEqual(one) {
		t.Fatalf("single set should be trivially equal")
	}
	other := []dns.RR{mustRR(t, "a.test. 300 IN A 9.9.9.9")}
	if allRRsetsEqual(one, one, other) {
		t.Fatalf("expected inequality to be detected across three sets")
	}
}
