package security

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plain := "api-key-0042-secret"

	sealed, err := EncryptString(plain)
	if err != nil {
		t.Fatalf("expected encrypt to succeed, got %v", err)
	}

	if sealed == plain {
		t.Fatal("ciphertext must differ from plaintext")
	}

	opened, err := DecryptString(sealed)
	if err != nil {
		t.Fatalf("expected decrypt to succeed, got %v", err)
	}

	if opened != plain {
		t.Fatalf("round trip mismatch: got %q want %q", opened, plain)
	}
}

func TestDecryptStringRejectsGarbage(t *testing.T) {
	if _, err := DecryptString("not-base64!!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}

	// Valid base64 but too short to contain a nonce.
	if _, err := DecryptString("YWJj"); err == nil {
		t.Fatal("expected error for truncated credential")
	}
}
