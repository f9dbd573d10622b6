package security

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := "exchange-api-secret-123"

	sealed, err := EncryptString(plaintext)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if sealed == plaintext {
		t.Fatal("ciphertext must differ from plaintext")
	}

	// Nonces are random: two encryptions never collide.
	sealed2, err := EncryptString(plaintext)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if sealed == sealed2 {
		t.Fatal("expected unique nonce per encryption")
	}

	got, err := DecryptString(sealed)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if got != plaintext {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	if _, err := DecryptString("not-base64!!"); err == nil {
		t.Fatal("expected error for invalid encoding")
	}
	if _, err := DecryptString("AAAA"); err == nil {
		t.Fatal("expected error for truncated ciphertext")
	}
}
