package crypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvKeyManager_RoundTrip(t *testing.T) {
	km, err := NewEnvKeyManager("0123456789abcdef-secret", "chainvend")
	require.NoError(t, err)
	ctx := context.Background()

	secret := []byte("4c0883a69102937d6231471b5dbb6204fe512961708279f2e3e8a5d4b8e3e0f1")
	ct1, err := km.Encrypt(ctx, secret)
	require.NoError(t, err)
	ct2, err := km.Encrypt(ctx, secret)
	require.NoError(t, err)

	assert.NotEqual(t, ct1, ct2, "nonce must differ per call")
	assert.NotContains(t, ct1, string(secret))

	plain, err := km.Decrypt(ctx, ct1)
	require.NoError(t, err)
	assert.Equal(t, secret, plain)

	Zero(plain)
	assert.Equal(t, make([]byte, len(secret)), plain)
}

func TestEnvKeyManager_Rejects(t *testing.T) {
	km, err := NewEnvKeyManager("0123456789abcdef-secret", "chainvend")
	require.NoError(t, err)
	other, err := NewEnvKeyManager("another-secret-0123456", "chainvend")
	require.NoError(t, err)
	ctx := context.Background()

	ct, err := km.Encrypt(ctx, []byte("k"))
	require.NoError(t, err)

	_, err = other.Decrypt(ctx, ct)
	assert.Error(t, err, "wrong key must fail authentication")

	for _, bad := range []string{"", "deadbeef", "v1:zz", "v1:00"} {
		_, err := km.Decrypt(ctx, bad)
		assert.ErrorIs(t, err, ErrCiphertext, bad)
	}

	_, err = NewEnvKeyManager("short", "salt")
	assert.Error(t, err)
}
