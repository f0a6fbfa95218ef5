package group

import "testing"

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "secret" {
		t.Fatal("hash must not equal plaintext")
	}

	match, err := ComparePassword("secret", hash)
	if err != nil {
		t.Fatalf("ComparePassword failed: %v", err)
	}
	if !match {
		t.Error("correct password must match")
	}

	match, err = ComparePassword("wrong", hash)
	if err != nil {
		t.Fatal(err)
	}
	if match {
		t.Error("wrong password must not match")
	}
}

func TestPasswordSalted(t *testing.T) {
	h1, err := HashPassword("same")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashPassword("same")
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same password must differ (random salt)")
	}
}

func TestComparePasswordBadHash(t *testing.T) {
	if _, err := ComparePassword("x", "not-a-hash"); err == nil {
		t.Error("expected error for malformed hash")
	}
}
