package auth

import "testing"

func TestCheck(t *testing.T) {
	if !Check("secret", "secret") {
		t.Fatalf("expected exact match")
	}
	for _, tok := range []string{"", "Secret", "secret ", "secre"} {
		if Check("secret", tok) {
			t.Fatalf("expected %q to be rejected", tok)
		}
	}
	if Check("", "") {
		t.Fatalf("empty secret must reject")
	}
}

func TestTokenFromRequest(t *testing.T) {
	if got := TokenFromRequest("Bearer abc", "xyz"); got != "abc" {
		t.Fatalf("expected header token, got %q", got)
	}
	if got := TokenFromRequest("Basic abc", "xyz"); got != "xyz" {
		t.Fatalf("expected query fallback, got %q", got)
	}
	if got := TokenFromRequest("", ""); got != "" {
		t.Fatalf("expected empty")
	}
}
