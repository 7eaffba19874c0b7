package encryption

import (
	"testing"

	"github.com/rescale-labs/termscp/internal/ferrors"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() failed: %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("expected key length %d, got %d", KeySize, len(key))
	}
}

func TestSealUnsealRoundTrip(t *testing.T) {
	cleartexts := []string{"s3cr3t", "", "a longer password with spaces and símböls!"}
	for _, want := range cleartexts {
		sealed, err := Seal(want)
		if err != nil {
			t.Fatalf("Seal(%q) failed: %v", want, err)
		}
		got, err := Unseal(sealed)
		if err != nil {
			t.Fatalf("Unseal failed for %q: %v", want, err)
		}
		if got != want {
			t.Errorf("round trip mismatch: want %q got %q", want, got)
		}
	}
}

func TestSealIsDeterministic(t *testing.T) {
	a, err := Seal("s3cr3t")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Seal("s3cr3t")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("Seal is not deterministic: %q != %q", a, b)
	}
}

func TestUnsealRejectsCorruptCiphertext(t *testing.T) {
	_, err := Unseal("not-valid-base64!!")
	if !ferrors.Is(err, ferrors.SealFailure) {
		t.Fatalf("expected SealFailure, got %v", err)
	}

	_, err = Unseal("QQ==") // valid base64, single byte, not block-aligned
	if !ferrors.Is(err, ferrors.SealFailure) {
		t.Fatalf("expected SealFailure for misaligned ciphertext, got %v", err)
	}
}
