package message

import (
	"crypto/sha256"
	"encoding/hex"
)

// BodyFingerprint returns the sha256 hex digest of a message body. The
// correlation record carries this instead of the raw text.
func BodyFingerprint(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
