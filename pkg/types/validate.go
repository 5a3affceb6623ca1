package types

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

const (
	DefaultSSHUser       = "root"
	DefaultSSHPort       = 22
	DefaultConsulPort    = 8500
	DefaultVaultPort     = 8200
	DefaultKeyShares     = 5
	DefaultKeyThreshold  = 3
	DefaultConsulDC      = "dc1"
	DefaultProxyImage    = "traefik:v3.1"
	DefaultDockerVersion = "latest"
)

// ApplyDefaults fills unset settings
func (c *Cluster) ApplyDefaults() {
	if c.SSH.User == "" {
		c.SSH.User = DefaultSSHUser
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = DefaultSSHPort
	}
	if c.Docker.Version == "" {
		c.Docker.Version = DefaultDockerVersion
	}
	if c.Consul.Datacenter == "" {
		c.Consul.Datacenter = DefaultConsulDC
	}
	if c.Consul.HTTPPort == 0 {
		c.Consul.HTTPPort = DefaultConsulPort
	}
	if c.Vault.Port == 0 {
		c.Vault.Port = DefaultVaultPort
	}
	if c.Vault.KeyShares == 0 {
		c.Vault.KeyShares = DefaultKeyShares
	}
	if c.Vault.KeyThreshold == 0 {
		c.Vault.KeyThreshold = DefaultKeyThreshold
		if c.Vault.KeyThreshold > c.Vault.KeyShares {
			c.Vault.KeyThreshold = c.Vault.KeyShares
		}
	}
	if c.Proxy.Image == "" {
		c.Proxy.Image = DefaultProxyImage
	}
	for _, n := range c.Nodes {
		if n.Labels == nil {
			n.Labels = make(map[string]string)
		}
	}
}

// Validate checks the definition and returns every problem found
func (c *Cluster) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, errors.New("cluster name is required"))
	}
	if len(c.Nodes) == 0 {
		errs = append(errs, errors.New("at least one node is required"))
	}

	names := make(map[string]bool)
	addresses := make(map[string]bool)
	managers := 0
	for i, n := range c.Nodes {
		if n == nil {
			errs = append(errs, fmt.Errorf("node %d is empty", i))
			continue
		}
		if n.Name == "" {
			errs = append(errs, fmt.Errorf("node %d: name is required", i))
		} else if names[n.Name] {
			errs = append(errs, fmt.Errorf("node %s: duplicate name", n.Name))
		}
		names[n.Name] = true

		if n.Address == "" {
			errs = append(errs, fmt.Errorf("node %s: address is required", n.Name))
		} else if _, _, err := net.SplitHostPort(n.Address); err == nil {
			errs = append(errs, fmt.Errorf("node %s: address %s must not carry a port, set ssh.port instead", n.Name, n.Address))
		} else if addresses[n.Address] {
			errs = append(errs, fmt.Errorf("node %s: duplicate address %s", n.Name, n.Address))
		}
		addresses[n.Address] = true

		switch n.Role {
		case NodeRoleManager:
			managers++
		case NodeRoleWorker:
		default:
			errs = append(errs, fmt.Errorf("node %s: unknown role %q", n.Name, n.Role))
		}
	}

	if len(c.Nodes) > 0 && managers == 0 {
		errs = append(errs, errors.New("at least one manager is required"))
	}
	if managers > 0 && managers%2 == 0 {
		errs = append(errs, fmt.Errorf("manager count must be odd for quorum, got %d", managers))
	}

	if c.Vault.KeyShares < 1 {
		errs = append(errs, fmt.Errorf("vault keyShares must be positive, got %d", c.Vault.KeyShares))
	}
	if c.Vault.KeyThreshold < 1 || c.Vault.KeyThreshold > c.Vault.KeyShares {
		errs = append(errs, fmt.Errorf("vault keyThreshold must be between 1 and keyShares (%d), got %d",
			c.Vault.KeyShares, c.Vault.KeyThreshold))
	}

	return errors.Join(errs...)
}

// Managers returns the manager entries in inventory order
func (c *Cluster) Managers() []*Node {
	return c.byRole(NodeRoleManager)
}

// Workers returns the worker entries in inventory order
func (c *Cluster) Workers() []*Node {
	return c.byRole(NodeRoleWorker)
}

func (c *Cluster) byRole(role NodeRole) []*Node {
	var nodes []*Node
	for _, n := range c.Nodes {
		if n.Role == role {
			nodes = append(nodes, n)
		}
	}
	return nodes
}
