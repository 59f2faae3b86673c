package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateOrderNumber returns PREFIX-YYYYMMDD-NNNN with a crypto-random suffix.
// Uniqueness is enforced by the store; callers retry on conflict.
func GenerateOrderNumber(prefix string, now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		// fallback: time-based entropy
		n = big.NewInt(now.UnixNano() % 10000)
	}

	return fmt.Sprintf("%s-%s-%04d", prefix, now.Format("20060102"), n.Int64())
}
