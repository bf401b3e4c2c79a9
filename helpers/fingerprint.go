package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeviceFingerprint returns a stable hash over the client attributes a
// request exposes. The same device yields the same hash across requests.
func DeviceFingerprint(userAgent, ipAddress, acceptLanguage string) string {
	raw := strings.Join([]string{userAgent, ipAddress, acceptLanguage}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
