package rotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecretProperties(t *testing.T) {
	t.Parallel()

	const samples = 10000
	seen := make(map[string]struct{}, samples)

	for i := 0; i < samples; i++ {
		secret, err := GenerateSecret(25)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(secret), 25)

		for _, r := range secret {
			isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			require.True(t, isAlnum, "secret contains non-alphanumeric character %q", r)
		}

		_, collision := seen[secret]
		require.False(t, collision, "generated secrets collided after %d samples", i)
		seen[secret] = struct{}{}
	}
}

func TestGenerateSecretLength(t *testing.T) {
	t.Parallel()

	for _, length := range []int{25, 32, 64, 100} {
		secret, err := GenerateSecret(length)
		require.NoError(t, err)
		assert.Len(t, secret, length)
	}
}

func TestGenerateSecretRejectsNonPositiveLength(t *testing.T) {
	t.Parallel()

	_, err := GenerateSecret(0)
	assert.Error(t, err)

	_, err = GenerateSecret(-5)
	assert.Error(t, err)
}

func TestGenerateSecretNeverContainsUnsafeCharacters(t *testing.T) {
	t.Parallel()

	for i := 0; i < 1000; i++ {
		secret, err := GenerateSecret(40)
		require.NoError(t, err)
		assert.NotContains(t, secret, "=")
		assert.NotContains(t, secret, "+")
		assert.NotContains(t, secret, "/")
		assert.NotContains(t, secret, "-")
		assert.NotContains(t, secret, "_")
	}
}
