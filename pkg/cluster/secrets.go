package cluster

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/stevedore/pkg/security"
	"github.com/cuemby/stevedore/pkg/storage"
)

// Secrets keeps a cluster's key material encrypted in the local state store
type Secrets struct {
	cluster string
	store   storage.Store
	sm      *security.SecretsManager
}

// NewSecrets binds store to cluster under a key derived from passphrase
func NewSecrets(store storage.Store, passphrase, cluster string) (*Secrets, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("STEVEDORE_SECRET_KEY must be set to store cluster secrets")
	}
	sm, err := security.NewClusterSecretsManager(passphrase, cluster)
	if err != nil {
		return nil, err
	}
	return &Secrets{cluster: cluster, store: store, sm: sm}, nil
}

// Put encrypts v as JSON under name
func (s *Secrets) Put(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode secret %s: %w", name, err)
	}
	secret, err := s.sm.CreateSecret(s.cluster, name, data)
	if err != nil {
		return err
	}
	return s.store.PutSecret(secret)
}

// Get decrypts name into v
func (s *Secrets) Get(name string, v any) error {
	secret, err := s.store.GetSecret(s.cluster, name)
	if err != nil {
		return err
	}
	data, err := s.sm.GetSecretData(secret)
	if err != nil {
		return fmt.Errorf("secret %s: %w", name, err)
	}
	return json.Unmarshal(data, v)
}

// SaveVaultInit stores the unseal keys and root token
func (s *Secrets) SaveVaultInit(init *VaultInit) error {
	if err := s.Put(security.SecretVaultUnsealKeys, init.Keys); err != nil {
		return err
	}
	return s.Put(security.SecretVaultRootToken, init.RootToken)
}

// UnsealKeys returns the stored unseal key shares
func (s *Secrets) UnsealKeys() ([]string, error) {
	var keys []string
	if err := s.Get(security.SecretVaultUnsealKeys, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// SaveJoinTokens stores both swarm join tokens
func (s *Secrets) SaveJoinTokens(t *JoinTokens) error {
	if err := s.Put(security.SecretSwarmManagerToken, t.Manager.Token); err != nil {
		return err
	}
	return s.Put(security.SecretSwarmWorkerToken, t.Worker.Token)
}
