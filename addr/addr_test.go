package addr_test

import (
	"testing"

	"github.com/degirum/gosdk/addr"
	"github.com/degirum/gosdk/cmn"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in        string
		wantHost  string
		wantPort  int
		wantTrans addr.Transport
	}{
		{"myhost", "myhost", addr.DefaultPort, addr.TcpProprietary},
		{"myhost:1234", "myhost", 1234, addr.TcpProprietary},
		{"asio://myhost", "myhost", addr.DefaultPort, addr.TcpProprietary},
		{"asio://myhost:9999", "myhost", 9999, addr.TcpProprietary},
		{"http://myhost", "myhost", addr.DefaultPort, addr.HttpWebsocket},
		{"http://myhost:8080", "myhost", 8080, addr.HttpWebsocket},
	}
	for _, tc := range cases {
		got, err := addr.Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): unexpected error: %v", tc.in, err)
		}
		if got.Host != tc.wantHost || got.Port != tc.wantPort || got.Transport != tc.wantTrans {
			t.Errorf("Parse(%q) = %+v, want {%s %d %s}", tc.in, got, tc.wantHost, tc.wantPort, tc.wantTrans)
		}
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{"", "http://", "asio://", "host:notaport", "host:99999", "host:0"}
	for _, in := range cases {
		_, err := addr.Parse(in)
		if !cmn.Is(err, cmn.BadParameter) {
			t.Errorf("Parse(%q): want BadParameter, got %v", in, err)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	// spec.md §8: ServerAddress::to_string(parse(s)) == s up to
	// normalization (default port explicit, scheme preserved for HTTP,
	// elided for TCP).
	cases := map[string]string{
		"myhost":                  "myhost:8778",
		"myhost:1234":             "myhost:1234",
		"asio://myhost":           "myhost:8778",
		"http://myhost":           "http://myhost:8778",
		"http://myhost:8080":      "http://myhost:8080",
	}
	for in, want := range cases {
		a, err := addr.Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got := a.String(); got != want {
			t.Errorf("Parse(%q).String() = %q, want %q", in, got, want)
		}
		// normalization is idempotent
		a2, err := addr.Parse(a.String())
		if err != nil {
			t.Fatalf("re-parsing %q: %v", a.String(), err)
		}
		if a2.String() != a.String() {
			t.Errorf("round-trip not idempotent: %q -> %q", a.String(), a2.String())
		}
	}
}

func TestHostPort(t *testing.T) {
	a, err := addr.Parse("http://example.com:9000")
	if err != nil {
		t.Fatal(err)
	}
	if got := a.HostPort(); got != "example.com:9000" {
		t.Errorf("HostPort() = %q, want %q", got, "example.com:9000")
	}
}
