package reference

import (
	"crypto/rand"
	"fmt"
	"time"
)

const suffixLength = 6

const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// New generates a human-readable reference like "TXN-1735689600123-K4N2P7".
// Uniqueness is enforced by the caller (unique index + retry on collision).
func New(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), randomSuffix(suffixLength))
}

// NewAccountNumber generates a wallet account number like "SOKO-83619427105".
func NewAccountNumber() string {
	const digits = "0123456789"
	b := make([]byte, 11)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = digits[int(b[i])%len(digits)]
	}
	return "SOKO-" + string(b)
}

func randomSuffix(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b)
}
