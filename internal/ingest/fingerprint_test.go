package ingest

import "testing"

func TestFingerprintStable(t *testing.T) {
	text := "pragma solidity ^0.8.0;\ncontract A {}"
	if Fingerprint(text) != Fingerprint(text) {
		t.Fatal("same text produced different fingerprints")
	}
}

func TestFingerprintDistinct(t *testing.T) {
	a := Fingerprint("contract A {}")
	b := Fingerprint("contract B {}")
	if a == b {
		t.Fatalf("different texts collided: %s", a)
	}
}

func TestFingerprintShape(t *testing.T) {
	fp := Fingerprint("")
	if len(fp) != 64 {
		t.Fatalf("expected 64 hex chars, got %d (%s)", len(fp), fp)
	}
	for _, c := range fp {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Fatalf("unexpected digest character %q in %s", c, fp)
		}
	}
}

func TestFingerprintWhitespaceSensitive(t *testing.T) {
	if Fingerprint("contract A {}") == Fingerprint("contract A {} ") {
		t.Fatal("trailing whitespace should change the fingerprint")
	}
}
