package utils

import (
	"crypto/rand"
	"io"
	"math/big"
)

const (
	ReferralCodeLength = 8
	referralAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateReferralCode draws ReferralCodeLength symbols uniformly from
// [A-Z0-9] using src, or crypto/rand when src is nil.
func GenerateReferralCode(src io.Reader) (string, error) {
	if src == nil {
		src = rand.Reader
	}
	max := big.NewInt(int64(len(referralAlphabet)))
	b := make([]byte, ReferralCodeLength)
	for i := range b {
		n, err := rand.Int(src, max)
		if err != nil {
			return "", err
		}
		b[i] = referralAlphabet[n.Int64()]
	}
	return string(b), nil
}

// IsReferralCode reports whether code has the shape of an issued code.
func IsReferralCode(code string) bool {
	if len(code) != ReferralCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
