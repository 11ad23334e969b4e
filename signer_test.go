package blogvault

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	s := NewURLSigner("blog-images", "account-key", time.Hour)

	signed := s.Sign("https://store.example.com/blog-images/123.jpg", "123.jpg")
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("signed URL unparseable: %v", err)
	}

	q := u.Query()
	if q.Get("sp") != "r" {
		t.Errorf("sp = %q, want r", q.Get("sp"))
	}
	if q.Get("se") == "" || q.Get("sig") == "" {
		t.Fatalf("missing token parameters in %q", signed)
	}
	if !s.Verify("123.jpg", q) {
		t.Error("freshly signed URL should verify")
	}
}

func TestVerifyRejectsWrongObject(t *testing.T) {
	s := NewURLSigner("blog-images", "account-key", time.Hour)

	signed := s.Sign("https://store.example.com/blog-images/123.jpg", "123.jpg")
	u, _ := url.Parse(signed)

	if s.Verify("456.jpg", u.Query()) {
		t.Error("token for one object must not verify for another")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	s := NewURLSigner("blog-images", "account-key", time.Hour)

	signed := s.Sign("https://store.example.com/blog-images/123.jpg", "123.jpg")
	u, _ := url.Parse(signed)
	q := u.Query()
	q.Set("sig", q.Get("sig")+"x")

	if s.Verify("123.jpg", q) {
		t.Error("tampered signature must not verify")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	s := NewURLSigner("blog-images", "account-key", -time.Minute)

	signed := s.Sign("https://store.example.com/blog-images/123.jpg", "123.jpg")
	u, _ := url.Parse(signed)

	if s.Verify("123.jpg", u.Query()) {
		t.Error("expired token must not verify")
	}
}

func TestVerifyRejectsKeyMismatch(t *testing.T) {
	signer := NewURLSigner("blog-images", "key-one", time.Hour)
	verifier := NewURLSigner("blog-images", "key-two", time.Hour)

	signed := signer.Sign("https://store.example.com/blog-images/123.jpg", "123.jpg")
	u, _ := url.Parse(signed)

	if verifier.Verify("123.jpg", u.Query()) {
		t.Error("token signed with a different key must not verify")
	}
}

func TestSignerDisabledWithoutKey(t *testing.T) {
	s := NewURLSigner("images", "", time.Hour)

	base := "http://localhost:3000/images/123.jpg"
	if signed := s.Sign(base, "123.jpg"); signed != base {
		t.Errorf("Sign without a key = %q, want the bare URL", signed)
	}
	if strings.Contains(s.Sign(base, "123.jpg"), "sig=") {
		t.Error("no signature expected without a key")
	}
	if !s.Verify("123.jpg", url.Values{}) {
		t.Error("Verify without a key should accept everything")
	}
}
