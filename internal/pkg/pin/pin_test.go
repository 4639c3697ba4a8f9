package pin

import (
	"errors"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("4821")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if hash == "4821" {
		t.Fatal("pin stored in plaintext")
	}
	if !Verify("4821", hash) {
		t.Fatal("correct pin rejected")
	}
	if Verify("4822", hash) {
		t.Fatal("wrong pin accepted")
	}
}

func TestHashRejectsBadFormat(t *testing.T) {
	cases := []string{"", "12", "123", "1234567", "12ab", "abcd"}
	for _, c := range cases {
		if _, err := Hash(c); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("Hash(%q): expected ErrInvalidFormat, got %v", c, err)
		}
	}
}

func TestHashAcceptsSixDigits(t *testing.T) {
	hash, err := Hash("038215")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !Verify("038215", hash) {
		t.Fatal("correct 6-digit pin rejected")
	}
}
