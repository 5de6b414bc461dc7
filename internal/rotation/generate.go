package rotation

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// entropyBytes is the raw randomness drawn per encoding block. 32 bytes is
// 256 bits, comfortably above the 128-bit floor even after stripping.
const entropyBytes = 32

// GenerateSecret produces a new high-entropy secret of at least length
// alphanumeric characters. The value is base64 URL encoding of CSPRNG bytes
// with the non-alphanumeric characters removed, so it can never contain
// '=', '+' or '/' and is safe to pass through HTTP and shell contexts.
func GenerateSecret(length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("secret length must be positive, got %d", length)
	}

	var b strings.Builder
	for b.Len() < length {
		raw := make([]byte, entropyBytes)
		if _, err := rand.Read(raw); err != nil {
			return "", fmt.Errorf("cannot read random bytes: %w", err)
		}
		encoded := base64.RawURLEncoding.EncodeToString(raw)
		for _, r := range encoded {
			if r == '-' || r == '_' {
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()[:length], nil
}
