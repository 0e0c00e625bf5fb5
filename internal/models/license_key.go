package models

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	LicenseKeyPrefix     = "FIGMA"
	TestLicenseKeyPrefix = "TEST"
)

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateLicenseKey builds PREFIX-NNNNNN-XXXX-XXXX where NNNNNN is the tail
// of the millisecond timestamp. Keys are a readability convention only.
func GenerateLicenseKey(now time.Time) string {
	return fmt.Sprintf("%s-%s-%s-%s", LicenseKeyPrefix, timeSegment(now), randomSegment(4), randomSegment(4))
}

// GenerateTestLicenseKey builds TEST-NNNNNN-XXXX for locally minted demo subscriptions.
func GenerateTestLicenseKey(now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", TestLicenseKeyPrefix, timeSegment(now), randomSegment(4))
}

func timeSegment(now time.Time) string {
	return fmt.Sprintf("%06d", now.UnixMilli()%1_000_000)
}

func randomSegment(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(keyAlphabet[rand.IntN(len(keyAlphabet))])
	}
	return b.String()
}
