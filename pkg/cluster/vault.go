package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cuemby/stevedore/pkg/bundle"
	"github.com/cuemby/stevedore/pkg/node"
	"github.com/cuemby/stevedore/pkg/retry"
)

// vault status exit codes
const (
	vaultUnsealed = 0
	vaultSealed   = 2
)

// ErrVaultInitialized is returned by InitVault when Vault already has keys
var ErrVaultInitialized = errors.New("vault is already initialized")

// VaultStatus is the subset of `vault status -format=json` stevedore reads
type VaultStatus struct {
	Initialized bool `json:"initialized"`
	Sealed      bool `json:"sealed"`
	Threshold   int  `json:"t"`
	Shares      int  `json:"n"`
	Progress    int  `json:"progress"`
}

// VaultInit holds the key material produced by `vault operator init`
type VaultInit struct {
	Keys      []string `json:"unseal_keys_b64"`
	RootToken string   `json:"root_token"`
}

func (p *Proxy) vaultCommand(args string) string {
	return fmt.Sprintf("VAULT_ADDR=http://127.0.0.1:%d vault %s", p.def.Vault.Port, args)
}

// VaultStatus reads the seal state of the Vault instance on h
func (p *Proxy) VaultStatus(ctx context.Context, h *node.Handle) (*VaultStatus, error) {
	res, err := h.Run(ctx, p.vaultCommand("status -format=json"), node.Quiet())
	if err != nil {
		return nil, err
	}
	if res.ExitCode != vaultUnsealed && res.ExitCode != vaultSealed {
		return nil, fmt.Errorf("node %s: vault status exited with code %d: %s", h.Name(), res.ExitCode, res.ErrorText())
	}
	var st VaultStatus
	if err := json.Unmarshal(res.Stdout, &st); err != nil {
		return nil, fmt.Errorf("node %s: failed to parse vault status: %w", h.Name(), err)
	}
	return &st, nil
}

// WaitVaultReady polls until Vault on h answers status requests, sealed or not
func (p *Proxy) WaitVaultReady(ctx context.Context, h *node.Handle) error {
	_, err := retry.Poll(ctx, "vault ready on "+h.Name(), p.rt.Readiness, func(ctx context.Context) (bool, error) {
		_, err := p.VaultStatus(ctx, h)
		return err == nil, err
	})
	return err
}

// InitVault initializes Vault on the primary manager with the share/threshold
// split from the definition.
func (p *Proxy) InitVault(ctx context.Context) (*VaultInit, error) {
	h := p.Manager()
	st, err := p.VaultStatus(ctx, h)
	if err != nil {
		return nil, err
	}
	if st.Initialized {
		return nil, ErrVaultInitialized
	}

	cmd := p.vaultCommand(fmt.Sprintf("operator init -format=json -key-shares=%d -key-threshold=%d",
		p.def.Vault.KeyShares, p.def.Vault.KeyThreshold))
	res, err := h.Run(ctx, cmd, node.Sensitive(), node.FaultOnError())
	if err != nil {
		return nil, err
	}
	var init VaultInit
	if err := json.Unmarshal(res.Stdout, &init); err != nil {
		return nil, fmt.Errorf("node %s: failed to parse vault init output: %w", h.Name(), err)
	}
	if len(init.Keys) != p.def.Vault.KeyShares || init.RootToken == "" {
		return nil, fmt.Errorf("node %s: vault init returned %d keys, expected %d", h.Name(), len(init.Keys), p.def.Vault.KeyShares)
	}
	return &init, nil
}

// Unseal unseals Vault on every manager in turn. Each sealed manager is fed
// key shares until the definition's threshold has been accepted; one that
// cannot get there is faulted and fails the whole operation. Key shares never
// appear on a command line.
func (p *Proxy) Unseal(ctx context.Context, keys []string) (*FleetResult, error) {
	threshold := p.def.Vault.KeyThreshold
	if len(keys) < threshold {
		return nil, fmt.Errorf("unseal needs %d key shares, have %d", threshold, len(keys))
	}

	fr := &FleetResult{}
	for _, h := range p.Managers() {
		if h.Faulted() {
			fr.add(h, nil, fmt.Errorf("node %s: faulted: %s", h.Name(), h.FaultMessage()))
			continue
		}
		err := p.unsealManager(ctx, h, keys, threshold)
		if err != nil {
			h.Fault(err.Error())
		}
		fr.add(h, nil, err)
	}
	return fr, fr.Err()
}

func (p *Proxy) unsealManager(ctx context.Context, h *node.Handle, keys []string, threshold int) error {
	h.SetStatus("vault: status")
	st, err := p.VaultStatus(ctx, h)
	if err != nil {
		return err
	}
	if !st.Initialized {
		return fmt.Errorf("node %s: vault is not initialized", h.Name())
	}
	if !st.Sealed {
		h.SetStatus("vault: unsealed")
		return nil
	}

	accepted := 0
	for i, key := range keys {
		if accepted >= threshold {
			break
		}
		h.SetStatus(fmt.Sprintf("vault: unseal %d/%d", accepted+1, threshold))
		st, err := p.submitKey(ctx, h, key)
		if err != nil {
			p.logger.Warn().Str("node", h.Name()).Int("share", i+1).Err(err).Msg("Key share rejected")
			continue
		}
		accepted++
		if !st.Sealed {
			h.SetStatus("vault: unsealed")
			p.logger.Info().Str("node", h.Name()).Int("shares", accepted).Msg("Vault unsealed")
			return nil
		}
	}
	return fmt.Errorf("node %s: vault still sealed after %d of %d key shares accepted", h.Name(), accepted, threshold)
}

// submitKey stages the share as a 0600 file and feeds it to vault on stdin
func (p *Proxy) submitKey(ctx context.Context, h *node.Handle, key string) (*VaultStatus, error) {
	b := bundle.New(p.vaultCommand("operator unseal -format=json - < unseal.key"))
	if err := b.AddFile("unseal.key", []byte(key+"\n"), false, 0600); err != nil {
		return nil, err
	}
	res, err := h.RunBundle(ctx, b, node.Sensitive(), node.Quiet())
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("vault operator unseal exited with code %d", res.ExitCode)
	}
	var st VaultStatus
	if err := json.Unmarshal(res.Stdout, &st); err != nil {
		return nil, fmt.Errorf("failed to parse unseal output: %w", err)
	}
	return &st, nil
}
