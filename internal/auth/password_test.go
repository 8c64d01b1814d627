package auth

import (
	"encoding/base64"
	"testing"

	"golang.org/x/crypto/argon2"
)

func TestBcryptVerifier(t *testing.T) {
	hash := mustHash(t, "s3cret")
	if err := (BcryptVerifier{}).Verify("s3cret", hash); err != nil {
		t.Fatalf("expected match: %v", err)
	}
	if err := (BcryptVerifier{}).Verify("wrong", hash); err == nil {
		t.Fatal("expected mismatch")
	}
	if err := (BcryptVerifier{}).Verify("s3cret", ""); err == nil {
		t.Fatal("empty stored value must not match")
	}
}

func encodeArgon2(t *testing.T, password string) string {
	t.Helper()
	salt := []byte("0123456789abcdef")
	key := argon2.IDKey([]byte(password), salt, 2, 64*1024, 1, 32)
	return "$argon2id$v=19$m=65536,t=2,p=1$" +
		base64.RawStdEncoding.EncodeToString(salt) + "$" +
		base64.RawStdEncoding.EncodeToString(key)
}

func TestArgon2Verifier(t *testing.T) {
	stored := encodeArgon2(t, "s3cret")
	if err := (Argon2Verifier{}).Verify("s3cret", stored); err != nil {
		t.Fatalf("expected match: %v", err)
	}
	if err := (Argon2Verifier{}).Verify("wrong", stored); err == nil {
		t.Fatal("expected mismatch")
	}
	if err := (Argon2Verifier{}).Verify("s3cret", "$argon2id$v=19$garbage"); err == nil {
		t.Fatal("malformed encoding must not match")
	}
}

func TestLegacyVerifier(t *testing.T) {
	if err := (LegacyVerifier{}).Verify("plain", "plain"); err != nil {
		t.Fatalf("expected match: %v", err)
	}
	if err := (LegacyVerifier{}).Verify("plain", "other"); err == nil {
		t.Fatal("expected mismatch")
	}
}

func TestAutoVerifierDispatch(t *testing.T) {
	cases := []struct {
		name   string
		stored string
	}{
		{"bcrypt", mustHash(t, "s3cret")},
		{"argon2", encodeArgon2(t, "s3cret")},
		{"legacy", "s3cret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := (AutoVerifier{}).Verify("s3cret", tc.stored); err != nil {
				t.Fatalf("expected match: %v", err)
			}
			if err := (AutoVerifier{}).Verify("wrong", tc.stored); err == nil {
				t.Fatal("expected mismatch")
			}
		})
	}
}
