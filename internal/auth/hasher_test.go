package auth_test

import (
	"testing"

	"github.com/technosupport/ts-license/internal/auth"
)

func TestHashAndCheck(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}

	match, err := auth.CheckPassword("correct horse battery staple", hash)
	if err != nil || !match {
		t.Errorf("expected match, got match=%v err=%v", match, err)
	}

	match, err = auth.CheckPassword("wrong password", hash)
	if err != nil {
		t.Fatal(err)
	}
	if match {
		t.Error("wrong password must not match")
	}
}

func TestCheck_MalformedHash(t *testing.T) {
	if _, err := auth.CheckPassword("x", "not-a-hash"); err == nil {
		t.Error("malformed hash should error")
	}
}

func TestHash_Salted(t *testing.T) {
	h1, _ := auth.HashPassword("same")
	h2, _ := auth.HashPassword("same")
	if h1 == h2 {
		t.Error("two hashes of the same password must differ (random salt)")
	}
}
