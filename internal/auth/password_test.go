package auth

import (
	"strings"
	"testing"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "" || hash == "correct horse battery staple" {
		t.Fatalf("hash looks wrong: %q", hash)
	}

	if !CheckPassword("correct horse battery staple", hash) {
		t.Fatalf("expected password to verify")
	}
	if CheckPassword("wrong password", hash) {
		t.Fatalf("expected wrong password to fail")
	}
}

func TestHashPassword_LongInput(t *testing.T) {
	// bcrypt rejects inputs over 72 bytes; normalization has to keep long
	// passwords working and distinguishable past that boundary.
	long := strings.Repeat("a", 100)
	hash, err := HashPassword(long)
	if err != nil {
		t.Fatalf("hash long password: %v", err)
	}
	if !CheckPassword(long, hash) {
		t.Fatalf("expected long password to verify")
	}
	if CheckPassword(strings.Repeat("a", 80), hash) {
		t.Fatalf("passwords differing after byte 72 must not collide")
	}
}

func TestHashPassword_SaltedPerCall(t *testing.T) {
	h1, err := HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("expected distinct salted hashes")
	}
}
