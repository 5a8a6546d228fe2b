package language

import (
	"reflect"
	"testing"
)

func TestCanonical(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"en", "en-US"},
		{"en-US", "en-US"},
		{"en-GB", "en-GB"},
		{"english", "en-US"},
		{"German", "de-DE"},
		{"pt", "pt-BR"},
		{"", ""},
		{"xx-invalid-!!", ""},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			if got := Canonical(tc.in); got != tc.want {
				t.Fatalf("Canonical(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeCandidates(t *testing.T) {
	got := NormalizeCandidates([]string{"en", "english", "fr", "", "bogus-!!"})
	want := []string{"en-US", "fr-FR"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeCandidates = %v, want %v", got, want)
	}
	if NormalizeCandidates(nil) != nil {
		t.Fatal("nil input should return nil")
	}
}

func TestDisplay(t *testing.T) {
	if got := Display("de-DE"); got != "German" {
		t.Fatalf("Display(de-DE) = %q", got)
	}
}
