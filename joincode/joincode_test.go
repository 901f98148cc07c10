/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package joincode

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"ABC123":     "abc123",
		"XyZ789":     "xyz789",
		"  abc123  ": "abc123",
		"\tabc\n":    "abc",
		"  ABC123  ": "abc123",
		"":           "",
		"   ":        "",
	}

	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerate(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 200; i++ {
		code, err := Generate()
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}
		if len(code) != Length {
			t.Fatalf("expected %d characters, got %q", Length, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(Alphabet, r) {
				t.Fatalf("code %q contains %q outside the alphabet", code, r)
			}
		}
		if !Valid(code) {
			t.Fatalf("generated code %q is not valid", code)
		}
		seen[code] = true
	}

	if len(seen) < 190 {
		t.Errorf("expected generated codes to be mostly unique, got %d distinct of 200", len(seen))
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"abc234", true},
		{" ABC234 ", true},
		{"", false},
		{"   ", false},
		{"abc 234", false},
		{"abc-234", false},
		{"../etc", false},
		{strings.Repeat("a", 65), false},
	}

	for _, tc := range cases {
		if got := Valid(tc.code); got != tc.want {
			t.Errorf("Valid(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestPickIsUniform(t *testing.T) {
	counts := make(map[byte]int)

	for b := 0; b < 256; b++ {
		c, ok := pick(byte(b))
		if b >= unbiased {
			if ok {
				t.Fatalf("expected byte %d to be rejected", b)
			}
			continue
		}
		if !ok {
			t.Fatalf("expected byte %d to be accepted", b)
		}
		counts[c]++
	}

	if len(counts) != len(Alphabet) {
		t.Fatalf("expected every letter to be reachable, got %d", len(counts))
	}
	for c, n := range counts {
		if n != unbiased/len(Alphabet) {
			t.Errorf("letter %q drawn by %d bytes, want %d", c, n, unbiased/len(Alphabet))
		}
	}
}
