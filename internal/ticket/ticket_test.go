package ticket

import (
	"net/url"
	"testing"
)

func TestNewTokenUnique(t *testing.T) {
	const n = 20000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		tok, err := NewToken()
		if err != nil {
			t.Fatalf("NewToken failed: %v", err)
		}
		if len(tok) != TokenBytes*2 {
			t.Fatalf("unexpected token length %d", len(tok))
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token after %d draws", i)
		}
		seen[tok] = struct{}{}
	}
}

func TestQRCodeURL(t *testing.T) {
	raw := QRCodeURL("", "a b&c", 0)

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid url %q: %v", raw, err)
	}
	if u.Host != "api.qrserver.com" {
		t.Errorf("unexpected host %q", u.Host)
	}
	if got := u.Query().Get("data"); got != "a b&c" {
		t.Errorf("token not round-tripped through query: %q", got)
	}
	if got := u.Query().Get("size"); got != "200x200" {
		t.Errorf("unexpected size %q", got)
	}
}

func TestQRCodeURLCustomBase(t *testing.T) {
	raw := QRCodeURL("https://qr.example.com/render?format=png", "tok", 300)

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.Query().Get("format") != "png" || u.Query().Get("data") != "tok" || u.Query().Get("size") != "300x300" {
		t.Errorf("unexpected query %q", u.RawQuery)
	}
}
