package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestGeneratePKCECodes(t *testing.T) {
	t.Parallel()

	codes, err := GeneratePKCECodes()
	if err != nil {
		t.Fatalf("GeneratePKCECodes() error = %v", err)
	}

	if got := len(codes.CodeVerifier); got != 128 {
		t.Errorf("code verifier length = %d, want 128", got)
	}

	hash := sha256.Sum256([]byte(codes.CodeVerifier))
	want := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(hash[:])
	if codes.CodeChallenge != want {
		t.Errorf("code challenge = %s, want %s", codes.CodeChallenge, want)
	}

	other, err := GeneratePKCECodes()
	if err != nil {
		t.Fatalf("GeneratePKCECodes() error = %v", err)
	}
	if other.CodeVerifier == codes.CodeVerifier {
		t.Error("two generated verifiers are identical")
	}
}
