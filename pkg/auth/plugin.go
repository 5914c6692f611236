package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// VerifyPluginDigest computes the SHA-256 digest of the bundle at path.
// When verify is false the check is a no-op (mirrors PLUGIN_VERIFY_SHA=false,
// the default); when true a read failure is reported as an error rather than
// silently treated as verified.
func VerifyPluginDigest(path string, verify bool) (string, error) {
	if !verify {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read plugin bundle %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
