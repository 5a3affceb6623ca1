package security

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecretsManager(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{name: "valid 32-byte key", key: make([]byte, 32)},
		{name: "invalid short key", key: make([]byte, 16), wantErr: true},
		{name: "invalid long key", key: make([]byte, 64), wantErr: true},
		{name: "empty key", key: []byte{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, err := NewSecretsManager(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, sm)
		})
	}
}

func TestDeriveKey(t *testing.T) {
	key := DeriveKey("correct horse", "prod")
	assert.Len(t, key, KeySize)
	assert.Equal(t, key, DeriveKey("correct horse", "prod"), "derivation is deterministic")
	assert.NotEqual(t, key, DeriveKey("correct horse", "staging"))
	assert.NotEqual(t, key, DeriveKey("battery staple", "prod"))
}

func TestSealOpen(t *testing.T) {
	sm, err := NewSecretsManager(bytes.Repeat([]byte{7}, KeySize))
	require.NoError(t, err)

	plaintext := []byte(`["key-1","key-2","key-3"]`)
	ad := []byte("prod/vault/unseal-keys")

	ciphertext, err := sm.Seal(plaintext, ad)
	require.NoError(t, err)
	assert.NotContains(t, string(ciphertext), "key-1")

	again, err := sm.Seal(plaintext, ad)
	require.NoError(t, err)
	assert.NotEqual(t, ciphertext, again, "every seal uses a fresh nonce")

	opened, err := sm.Open(ciphertext, ad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)

	_, err = sm.Open(ciphertext, []byte("prod/swarm/worker-token"))
	assert.ErrorIs(t, err, ErrDecrypt)

	tampered := append([]byte(nil), ciphertext...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = sm.Open(tampered, ad)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = sm.Open([]byte("short"), ad)
	assert.ErrorIs(t, err, ErrDecrypt)
	_, err = sm.Seal(nil, ad)
	assert.Error(t, err)
}

func TestClusterIsolation(t *testing.T) {
	prod, err := NewClusterSecretsManager("passphrase", "prod")
	require.NoError(t, err)
	staging, err := NewClusterSecretsManager("passphrase", "staging")
	require.NoError(t, err)

	secret, err := prod.CreateSecret("prod", SecretVaultRootToken, []byte("hvs.root"))
	require.NoError(t, err)
	_, err = staging.GetSecretData(secret)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = NewClusterSecretsManager("", "prod")
	assert.Error(t, err)
}

func TestCreateSecret(t *testing.T) {
	sm, err := NewClusterSecretsManager("passphrase", "prod")
	require.NoError(t, err)

	secret, err := sm.CreateSecret("prod", SecretSwarmWorkerToken, []byte("SWMTKN-1-abc"))
	require.NoError(t, err)
	assert.Equal(t, "prod", secret.Cluster)
	assert.Equal(t, SecretSwarmWorkerToken, secret.Name)
	assert.Equal(t, SecretID("prod", SecretSwarmWorkerToken), secret.ID)
	assert.False(t, secret.CreatedAt.IsZero())

	data, err := sm.GetSecretData(secret)
	require.NoError(t, err)
	assert.Equal(t, "SWMTKN-1-abc", string(data))

	// The ciphertext is bound to its name
	secret.Name = SecretSwarmManagerToken
	_, err = sm.GetSecretData(secret)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = sm.CreateSecret("prod", "", []byte("x"))
	assert.Error(t, err)
	_, err = sm.GetSecretData(nil)
	assert.Error(t, err)
}

func TestSecretID(t *testing.T) {
	assert.Equal(t, SecretID("prod", "a"), SecretID("prod", "a"))
	assert.NotEqual(t, SecretID("prod", "a"), SecretID("staging", "a"))
	assert.NotEqual(t, SecretID("prod", "a"), SecretID("prod", "b"))
}
