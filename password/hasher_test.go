package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func fastConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(fastConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(t)

	hash, err := h.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := h.Verify("P@ssw0rd-Ascii", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed, got %v %v", ok, err)
	}

	ok, err = h.Verify("wrong-password", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got %v %v", ok, err)
	}
}

func TestHashesAreSalted(t *testing.T) {
	h := newTestHasher(t)
	a, _ := h.Hash("same-password")
	b, _ := h.Hash("same-password")
	if a == b {
		t.Fatal("expected distinct salts")
	}
}

func TestVerifyAcceptsBcrypt(t *testing.T) {
	h := newTestHasher(t)
	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	ok, err := h.Verify("legacy-secret", string(legacy))
	if err != nil || !ok {
		t.Fatalf("expected bcrypt hash to verify, got %v %v", ok, err)
	}
	ok, err = h.Verify("other", string(legacy))
	if err != nil || ok {
		t.Fatalf("expected bcrypt mismatch, got %v %v", ok, err)
	}
	if !h.NeedsRehash(string(legacy)) {
		t.Fatal("expected bcrypt hash to need rehash")
	}
}

func TestVerifyRejectsPlaintextStoredValue(t *testing.T) {
	h := newTestHasher(t)
	ok, err := h.Verify("hunter2", "hunter2")
	if ok || !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected plaintext stored value to be rejected, got %v %v", ok, err)
	}
}

func TestVerifyMalformedArgon2(t *testing.T) {
	h := newTestHasher(t)
	for _, bad := range []string{
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	} {
		if ok, err := h.Verify("x", bad); ok || err == nil {
			t.Fatalf("expected %q to fail, got %v %v", bad, ok, err)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := newTestHasher(t)
	hash, _ := weak.Hash("upgrade-me-please")

	if weak.NeedsRehash(hash) {
		t.Fatal("expected same parameters not to need rehash")
	}

	stronger := fastConfig()
	stronger.Time = 2
	strong, err := NewHasher(stronger)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	if !strong.NeedsRehash(hash) {
		t.Fatal("expected weaker hash to need rehash")
	}
}

func TestNewHasherRejectsWeakConfig(t *testing.T) {
	cfg := fastConfig()
	cfg.SaltLength = 8
	if _, err := NewHasher(cfg); err == nil {
		t.Fatal("expected short salt to be rejected")
	}
}

func TestHashTooLong(t *testing.T) {
	h := newTestHasher(t)
	if _, err := h.Hash(strings.Repeat("a", maxPassBytes+1)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}
