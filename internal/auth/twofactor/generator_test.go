package twofactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateCodeShape(t *testing.T) {
	seen := make(map[string]struct{})

	for i := 0; i < 200; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			require.Truef(t, r >= '0' && r <= '9', "unexpected rune %q in code %q", r, code)
		}
		seen[code] = struct{}{}
	}

	// 200 draws from a million-value space colliding down to a handful would
	// point at a broken random source.
	require.Greater(t, len(seen), 190)
}
