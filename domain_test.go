package dsbootstrap

import "testing"

func TestCanon(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"Example.TEST", "example.test."},
		{"example.test.", "example.test."},
		{".", "."},
	} {
		if got := canon(tc.in); got != tc.want {
			t.Fatalf("canon(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParent(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"a.example.test.", "example.test."},
		{"example.test.", "test."},
		{"test.", "."},
		{".", "."},
	} {
		if got := parent(tc.in); got != tc.want {
			t.Fatalf("parent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFirstLabel(t *testing.T) {
	if got := firstLabel("www.example.test."); got != "www" {
		t.Fatalf("firstLabel = %q, want www", got)
	}
}

func TestWireNameRoundTripsLength(t *testing.T) {
	wire, err := wireName("example.test.")
	if err != nil {
		t.Fatalf("wireName: %s", err)
	}
	// "example" (7) + "test" (4) + two length octets + root: 7+1+4+1+1
	if len(wire) != 14 {
		t.Fatalf("unexpected wire length %d", len(wire))
	}
}

func TestIsSubdomain(t *testing.T) {
	if !isSubdomain("a.example.test.", "example.test.") {
		t.Fatalf("expected a.example.test. to be a subdomain of example.test.")
	}
	if !isSubdomain("example.test.", "example.test.") {
		t.Fatalf("a name is its own subdomain")
	}
	if isSubdomain("example.test.", "a.example.test.") {
		t.Fatalf("parent is not a subdomain of its child")
	}
}
