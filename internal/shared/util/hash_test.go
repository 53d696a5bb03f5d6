package util

import (
	"strings"
	"testing"
)

func TestHashKey(t *testing.T) {
	id := "203.0.113.7"
	got := HashKey(id)
	if got != HashKey(id) {
		t.Fatalf("expected stable hash, got %s", got)
	}
	for _, ch := range got {
		if !((ch >= 'a' && ch <= 'f') || (ch >= '0' && ch <= '9')) {
			t.Fatalf("hash contains non-hex character: %c", ch)
		}
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(got))
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "orders.csv", want: "orders.csv"},
		{in: " reports/2024\\q1.xlsx ", want: "reports_2024_q1.xlsx"},
		{in: "../etc/passwd", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "Q1 sales.csv", want: "Q1_sales.csv"},
		{in: "bell\x07.csv", want: "bell.csv"},
		{in: "._", wantErr: true},
	}
	for _, tt := range tests {
		got, err := SanitizeFileName(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("SanitizeFileName(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("SanitizeFileName(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestSanitizeFileNameKeepsExtensionWhenShortened(t *testing.T) {
	long := strings.Repeat("x", 300) + ".xlsx"
	got, err := SanitizeFileName(long)
	if err != nil {
		t.Fatalf("SanitizeFileName: %v", err)
	}
	if len(got) != maxFileNameLen || !strings.HasSuffix(got, ".xlsx") {
		t.Fatalf("unexpected shortened name %q (%d)", got, len(got))
	}
}
