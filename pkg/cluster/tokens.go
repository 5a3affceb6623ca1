package cluster

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cuemby/stevedore/pkg/node"
	"github.com/cuemby/stevedore/pkg/types"
)

// SwarmPort is the swarm cluster management port
const SwarmPort = "2377"

// JoinToken is a swarm join token for one role
type JoinToken struct {
	Token       string
	Role        types.NodeRole
	RetrievedAt time.Time
}

// JoinTokens are the tokens and the address new nodes join through
type JoinTokens struct {
	Manager JoinToken
	Worker  JoinToken
	Address string
}

// For returns the token for role
func (t *JoinTokens) For(role types.NodeRole) JoinToken {
	if role == types.NodeRoleManager {
		return t.Manager
	}
	return t.Worker
}

// JoinTokens reads the manager and worker join tokens from the primary manager
func (p *Proxy) JoinTokens(ctx context.Context) (*JoinTokens, error) {
	h := p.Manager()
	if h == nil {
		return nil, fmt.Errorf("cluster %s has no manager", p.def.Name)
	}

	tokens := &JoinTokens{Address: net.JoinHostPort(h.Metadata().Address, SwarmPort)}
	for _, role := range []types.NodeRole{types.NodeRoleManager, types.NodeRoleWorker} {
		res, err := h.RunElevated(ctx, "docker swarm join-token -q "+string(role), node.Sensitive(), node.FaultOnError())
		if err != nil {
			return nil, err
		}
		token := strings.TrimSpace(res.OutputText())
		if token == "" {
			return nil, fmt.Errorf("node %s: empty %s join token", h.Name(), role)
		}
		jt := JoinToken{Token: token, Role: role, RetrievedAt: time.Now()}
		if role == types.NodeRoleManager {
			tokens.Manager = jt
		} else {
			tokens.Worker = jt
		}
	}
	return tokens, nil
}
