package types

import (
	"encoding/json"
	"time"
)

// Cluster is a validated cluster definition: the node inventory plus cluster-wide
// settings. It is consumed by the core, never mutated by it.
type Cluster struct {
	Name   string         `yaml:"name" json:"name"`
	Domain string         `yaml:"domain,omitempty" json:"domain,omitempty"`
	SSH    SSHConfig      `yaml:"ssh" json:"ssh"`
	Nodes  []*Node        `yaml:"nodes" json:"nodes"`
	Docker DockerSettings `yaml:"docker" json:"docker"`
	Consul ConsulSettings `yaml:"consul" json:"consul"`
	Vault  VaultSettings  `yaml:"vault" json:"vault"`
	Proxy  ProxySettings  `yaml:"proxy" json:"proxy"`
}

// Node represents one inventory entry
type Node struct {
	Name    string            `yaml:"name" json:"name"`
	Address string            `yaml:"address" json:"address"` // DNS name or IP
	Role    NodeRole          `yaml:"role" json:"role"`
	Labels  map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	SSH     *SSHConfig        `yaml:"ssh,omitempty" json:"ssh,omitempty"` // Per-node override
}

// NodeRole defines the role of a node
type NodeRole string

const (
	NodeRoleManager NodeRole = "manager"
	NodeRoleWorker  NodeRole = "worker"
)

// IsManager reports whether the node is a swarm manager
func (n *Node) IsManager() bool {
	return n.Role == NodeRoleManager
}

// SSHConfig holds remote login settings
type SSHConfig struct {
	User           string `yaml:"user,omitempty" json:"user,omitempty"`
	Port           int    `yaml:"port,omitempty" json:"port,omitempty"`
	PrivateKeyPath string `yaml:"privateKeyPath,omitempty" json:"privateKeyPath,omitempty"`
	Password       string `yaml:"password,omitempty" json:"-"`
}

// Merge returns s with empty fields filled from base
func (s *SSHConfig) Merge(base SSHConfig) SSHConfig {
	if s == nil {
		return base
	}
	out := *s
	if out.User == "" {
		out.User = base.User
	}
	if out.Port == 0 {
		out.Port = base.Port
	}
	if out.PrivateKeyPath == "" {
		out.PrivateKeyPath = base.PrivateKeyPath
	}
	if out.Password == "" {
		out.Password = base.Password
	}
	return out
}

// DockerSettings controls the container engine install
type DockerSettings struct {
	Version  string   `yaml:"version,omitempty" json:"version,omitempty"`
	Registry string   `yaml:"registry,omitempty" json:"registry,omitempty"`
	Networks []string `yaml:"networks,omitempty" json:"networks,omitempty"` // Overlay networks created after swarm init
}

// ConsulSettings controls the service discovery layer
type ConsulSettings struct {
	Version    string `yaml:"version,omitempty" json:"version,omitempty"`
	Datacenter string `yaml:"datacenter,omitempty" json:"datacenter,omitempty"`
	HTTPPort   int    `yaml:"httpPort,omitempty" json:"httpPort,omitempty"`
}

// VaultSettings controls the secrets layer
type VaultSettings struct {
	Version      string `yaml:"version,omitempty" json:"version,omitempty"`
	Port         int    `yaml:"port,omitempty" json:"port,omitempty"`
	KeyShares    int    `yaml:"keyShares,omitempty" json:"keyShares,omitempty"`
	KeyThreshold int    `yaml:"keyThreshold,omitempty" json:"keyThreshold,omitempty"`
}

// ProxySettings carries the reverse-proxy configuration. Routes and settings are
// opaque JSON blobs; the core only uploads them.
type ProxySettings struct {
	Image    string          `yaml:"image,omitempty" json:"image,omitempty"`
	Routes   json.RawMessage `yaml:"-" json:"routes,omitempty"`
	Settings json.RawMessage `yaml:"-" json:"settings,omitempty"`
}

// RunRecord is the persisted summary of one orchestrated run
type RunRecord struct {
	ID         string        `json:"id"`
	Cluster    string        `json:"cluster"`
	Command    string        `json:"command"`
	Success    bool          `json:"success"`
	Aborted    bool          `json:"aborted"`
	Failure    string        `json:"failure,omitempty"` // Global step failure, if any
	Nodes      []NodeOutcome `json:"nodes"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// NodeOutcome is one node's terminal state in a RunRecord
type NodeOutcome struct {
	Name    string   `json:"name"`
	Role    NodeRole `json:"role"`
	Ready   bool     `json:"ready"`
	Faulted bool     `json:"faulted"`
	Message string   `json:"message,omitempty"`
	Status  string   `json:"status,omitempty"`
}

// Duration returns how long the run took
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Secret is an encrypted value kept in the local state store, such as Vault
// unseal keys or swarm join tokens. Data is AES-256-GCM ciphertext.
type Secret struct {
	ID        string    `json:"id"`
	Cluster   string    `json:"cluster"`
	Name      string    `json:"name"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}
