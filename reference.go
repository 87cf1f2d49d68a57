package solpay

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ReferenceSize is the number of random bytes in a payment reference.
const ReferenceSize = 32

// GenerateReference returns a random 64-character lowercase hex tag used to
// correlate a payment attempt independently of its transaction signature.
func GenerateReference() (string, error) {
	buf := make([]byte, ReferenceSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
