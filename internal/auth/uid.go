package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// The number of random digits a UID starts with
	numRandomDigits = 7
	// The number of checksum digits appended (digit sum of the random part,
	// zero-padded; max sum is 9*7=63, so two digits)
	numSecurityDigits = 2

	// UIDLength is the total length of an external user identifier
	UIDLength = numRandomDigits + numSecurityDigits
)

// GenerateUID produces a fresh external user identifier: a random digit
// segment followed by its zero-padded digit sum as a cheap transcription check
func GenerateUID() (string, error) {
	low := pow10(numRandomDigits - 1)
	span := pow10(numRandomDigits) - low

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return "", fmt.Errorf("failed to generate UID: %w", err)
	}
	segment := n.Int64() + low

	digitSum := 0
	for v := segment; v > 0; v /= 10 {
		digitSum += int(v % 10)
	}

	return fmt.Sprintf("%d%0*d", segment, numSecurityDigits, digitSum), nil
}

// ValidUID reports whether the UID has the right shape and a matching digit sum
func ValidUID(uid string) bool {
	if len(uid) != UIDLength {
		return false
	}
	digitSum := 0
	for _, c := range uid[:numRandomDigits] {
		if c < '0' || c > '9' {
			return false
		}
		digitSum += int(c - '0')
	}
	return fmt.Sprintf("%0*d", numSecurityDigits, digitSum) == uid[numRandomDigits:]
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
