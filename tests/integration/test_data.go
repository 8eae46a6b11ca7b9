//go:build integration

package integration

import (
	"fmt"
	"regexp"
	"time"
)

var magicKeyPattern = regexp.MustCompile(`magic-login\?key=([0-9a-f]+)`)

// TestEmail generates a unique customer email using the clock
func TestEmail(suffix string) string {
	return fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), suffix)
}

// ExtractMagicKey pulls the key out of a magic-link email body
func ExtractMagicKey(emailBody string) string {
	m := magicKeyPattern.FindStringSubmatch(emailBody)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
