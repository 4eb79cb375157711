package auth

import (
	"strings"
	"testing"
)

func TestHashVerify(t *testing.T) {
	h, err := HashPassword("Secret-123")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if !strings.HasPrefix(h, "$argon2id$v=19$") {
		t.Fatalf("unexpected encoding %q", h)
	}
	if !VerifyPassword(h, "Secret-123") {
		t.Fatalf("expected verify to pass")
	}
	if VerifyPassword(h, "secret-123") {
		t.Fatalf("expected verify to fail")
	}
	if NeedsRehash(h) {
		t.Fatalf("fresh hash must not need rehash")
	}
}

func TestWeakParamsNeedRehash(t *testing.T) {
	weak := DefaultParams
	weak.Iterations = 1
	h, err := HashPasswordWith(weak, "pw")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if !VerifyPassword(h, "pw") {
		t.Fatalf("weak hash must still verify")
	}
	if !NeedsRehash(h) {
		t.Fatalf("expected rehash for weaker params")
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	for _, h := range []string{"", "plain", "$argon2id$v=19$m=x$salt$key", "$bcrypt$v=1$m=1,t=1,p=1$c2FsdA$a2V5"} {
		if VerifyPassword(h, "pw") {
			t.Fatalf("malformed hash %q verified", h)
		}
	}
}

func TestTokens(t *testing.T) {
	raw, hash, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if HashToken(raw) != hash || len(hash) != 64 {
		t.Fatalf("hash mismatch")
	}
	hx, err := RandomHex(16)
	if err != nil || len(hx) != 32 {
		t.Fatalf("random hex: %q %v", hx, err)
	}
	if !EqualTokens(hx, hx) || EqualTokens(hx, "") || EqualTokens("", "") {
		t.Fatalf("EqualTokens semantics broken")
	}
}
