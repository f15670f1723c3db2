package ecpay

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// The processor caps merchant trade numbers at 20 alphanumeric characters.
const maxTradeNoLen = 20

// NewTradeNo generates a merchant trade number: prefix + UTC timestamp +
// random suffix. Uniqueness is ultimately enforced by the database; a
// collision inside the same second is retried by the caller.
func NewTradeNo(prefix string, now time.Time) (string, error) {
	prefix = strings.ToUpper(prefix)
	ts := now.UTC().Format("20060102150405")

	suffixLen := (maxTradeNoLen - len(prefix) - len(ts)) / 2
	if suffixLen < 1 {
		return "", fmt.Errorf("trade number prefix %q too long", prefix)
	}
	b := make([]byte, suffixLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand failed: %w", err)
	}

	return prefix + ts + strings.ToUpper(hex.EncodeToString(b)), nil
}
