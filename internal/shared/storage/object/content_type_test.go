package object

import (
	"io"
	"strings"
	"testing"
)

func TestContentTypeByExtension(t *testing.T) {
	cases := map[string]string{
		"orders.csv":  ContentTypeCSV,
		"ORDERS.CSV":  ContentTypeCSV,
		"orders.xlsx": ContentTypeXLSX,
		"notes.txt":   "text/plain; charset=utf-8",
	}
	for name, want := range cases {
		if got := ContentType(name, []byte("a,b\n1,2\n")); got != want {
			t.Fatalf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestSniffReplaysHead(t *testing.T) {
	payload := strings.Repeat("order_id,amount\n", 100)
	body, mime, err := Sniff("orders.csv", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("Sniff: %v", err)
	}
	if mime != ContentTypeCSV {
		t.Fatalf("unexpected mime %q", mime)
	}
	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != payload {
		t.Fatalf("payload altered: %d bytes, want %d", len(got), len(payload))
	}
}

func TestNewKeyNamespacesAndSanitizes(t *testing.T) {
	key, err := NewKey("203.0.113.7", "Q1 orders.csv")
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	parts := strings.Split(key, "/")
	if len(parts) != 2 || len(parts[0]) != 64 {
		t.Fatalf("unexpected key layout %q", key)
	}
	if !strings.HasSuffix(parts[1], "_Q1_orders.csv") {
		t.Fatalf("unexpected object name %q", parts[1])
	}
	if _, err := NewKey("ns", "../x.csv"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}
