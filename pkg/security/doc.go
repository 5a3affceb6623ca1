/*
Package security encrypts the cluster secrets stevedore keeps on the operator
host: Vault unseal keys and root token, and the swarm join tokens.

Secrets are sealed with AES-256-GCM. The key is derived from the operator's
passphrase (STEVEDORE_SECRET_KEY) and the cluster name, so the same
passphrase yields a different key per cluster:

	key        = argon2id(passphrase, salt = "stevedore/cluster/" + cluster)
	ciphertext = nonce (12 bytes) || GCM seal(plaintext, ad = cluster + "/" + name)

The secret's cluster and name are the GCM associated data, so a blob copied
under another name fails to open with ErrDecrypt.

The resulting types.Secret is what pkg/storage persists; plaintext never
touches disk.

# Usage

	sm, err := security.NewClusterSecretsManager(rt.SecretPassphrase, def.Name)
	if err != nil {
		return err
	}
	secret, err := sm.CreateSecret(def.Name, security.SecretVaultRootToken, []byte(token))
	if err != nil {
		return err
	}
	if err := store.PutSecret(secret); err != nil {
		return err
	}
*/
package security
