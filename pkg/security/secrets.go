package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/cuemby/stevedore/pkg/types"
)

// Well-known secret names
const (
	SecretVaultUnsealKeys   = "vault/unseal-keys"
	SecretVaultRootToken    = "vault/root-token"
	SecretSwarmManagerToken = "swarm/manager-token"
	SecretSwarmWorkerToken  = "swarm/worker-token"
)

// KeySize is the AES-256 key length
const KeySize = 32

// argon2id parameters for passphrase-derived keys
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
)

// ErrDecrypt is returned for ciphertext that fails authentication: a wrong
// passphrase, another cluster's data or a tampered store
var ErrDecrypt = errors.New("secret cannot be decrypted")

// SecretsManager seals secrets with AES-256-GCM. Ciphertext is the nonce
// followed by the sealed data.
type SecretsManager struct {
	aead cipher.AEAD
}

// NewSecretsManager creates a manager for a 32-byte key
func NewSecretsManager(key []byte) (*SecretsManager, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes for AES-256, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &SecretsManager{aead: aead}, nil
}

// NewClusterSecretsManager derives the key from passphrase and the cluster
// name, so ciphertext from one cluster never decrypts under another
func NewClusterSecretsManager(passphrase, cluster string) (*SecretsManager, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	return NewSecretsManager(DeriveKey(passphrase, cluster))
}

// DeriveKey stretches passphrase with argon2id, salted by the cluster name
func DeriveKey(passphrase, cluster string) []byte {
	salt := []byte("stevedore/cluster/" + cluster)
	return argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, KeySize)
}

// Seal encrypts plaintext. associated must be presented again to Open.
func (sm *SecretsManager) Seal(plaintext, associated []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("cannot encrypt empty data")
	}
	nonce := make([]byte, sm.aead.NonceSize(), sm.aead.NonceSize()+len(plaintext)+sm.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return sm.aead.Seal(nonce, nonce, plaintext, associated), nil
}

// Open decrypts data produced by Seal with the same associated data
func (sm *SecretsManager) Open(ciphertext, associated []byte) ([]byte, error) {
	n := sm.aead.NonceSize()
	if len(ciphertext) < n+sm.aead.Overhead() {
		return nil, fmt.Errorf("ciphertext too short: %w", ErrDecrypt)
	}
	plaintext, err := sm.aead.Open(nil, ciphertext[:n], ciphertext[n:], associated)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// CreateSecret seals plaintext as the named secret of cluster. The ciphertext
// is bound to the name: copying it under another name makes it unreadable.
func (sm *SecretsManager) CreateSecret(cluster, name string, plaintext []byte) (*types.Secret, error) {
	if name == "" {
		return nil, fmt.Errorf("secret name cannot be empty")
	}
	data, err := sm.Seal(plaintext, secretLabel(cluster, name))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret %s: %w", name, err)
	}
	return &types.Secret{
		ID:        SecretID(cluster, name),
		Cluster:   cluster,
		Name:      name,
		Data:      data,
		CreatedAt: time.Now(),
	}, nil
}

// GetSecretData opens a secret made by CreateSecret
func (sm *SecretsManager) GetSecretData(secret *types.Secret) ([]byte, error) {
	if secret == nil {
		return nil, fmt.Errorf("secret cannot be nil")
	}
	return sm.Open(secret.Data, secretLabel(secret.Cluster, secret.Name))
}

func secretLabel(cluster, name string) []byte {
	return []byte(cluster + "/" + name)
}

// SecretID returns the stable identifier of a cluster's named secret
func SecretID(cluster, name string) string {
	hash := sha256.Sum256(secretLabel(cluster, name))
	return base64.RawURLEncoding.EncodeToString(hash[:16])
}
