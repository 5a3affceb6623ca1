package consul

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/cuemby/stevedore/pkg/types"
)

// memberAlive is serf's status code for a live member
const memberAlive = 1

// Probe queries a Consul agent's HTTP API for raft and serf membership.
type Probe struct {
	cli  *consulapi.Client
	addr string
}

// NewProbe creates a probe against the agent at addr (host:port). An empty
// token leaves the client anonymous.
func NewProbe(addr, token string) (*Probe, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	if token != "" {
		cfg.Token = token
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client for %s: %w", addr, err)
	}
	return &Probe{cli: cli, addr: cfg.Address}, nil
}

// DialFunc opens a connection the way net.Dialer.DialContext does
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// NewTunneledProbe creates a probe against the agent bound to the loopback of
// a remote host, with every request carried over dial.
func NewTunneledProbe(dial DialFunc, port int) (*Probe, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	cfg.Transport = &http.Transport{
		DialContext:         dial,
		MaxIdleConnsPerHost: 1,
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client for %s: %w", cfg.Address, err)
	}
	return &Probe{cli: cli, addr: cfg.Address}, nil
}

// NewNodeProbe creates a probe against the Consul agent running on a node
func NewNodeProbe(node *types.Node, settings types.ConsulSettings) (*Probe, error) {
	return NewProbe(net.JoinHostPort(node.Address, strconv.Itoa(settings.HTTPPort)), "")
}

// Addr returns the agent address being probed
func (p *Probe) Addr() string { return p.addr }

// Leader returns the raft leader address, empty while there is none.
func (p *Probe) Leader(ctx context.Context) (string, error) {
	q := (&consulapi.QueryOptions{}).WithContext(ctx)
	leader, err := p.cli.Status().LeaderWithQueryOptions(q)
	if err != nil {
		return "", fmt.Errorf("consul leader on %s: %w", p.addr, err)
	}
	return leader, nil
}

// Peers returns the raft peer set of the server cluster.
func (p *Probe) Peers(ctx context.Context) ([]string, error) {
	q := (&consulapi.QueryOptions{}).WithContext(ctx)
	peers, err := p.cli.Status().PeersWithQueryOptions(q)
	if err != nil {
		return nil, fmt.Errorf("consul peers on %s: %w", p.addr, err)
	}
	return peers, nil
}

// ServerQuorum reports the number of raft peers, or zero while no leader is
// elected. It has the shape of a quorum probe.
func (p *Probe) ServerQuorum(ctx context.Context) (int, error) {
	leader, err := p.Leader(ctx)
	if err != nil {
		return 0, err
	}
	if leader == "" {
		return 0, nil
	}
	peers, err := p.Peers(ctx)
	if err != nil {
		return 0, err
	}
	return len(peers), nil
}

// AliveMembers counts LAN gossip members, servers and clients, that are alive.
// It has the shape of a quorum probe.
func (p *Probe) AliveMembers(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	members, err := p.cli.Agent().Members(false)
	if err != nil {
		return 0, fmt.Errorf("consul members on %s: %w", p.addr, err)
	}
	alive := 0
	for _, m := range members {
		if m.Status == memberAlive {
			alive++
		}
	}
	return alive, nil
}
