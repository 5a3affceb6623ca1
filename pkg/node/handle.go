package node

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/stevedore/pkg/log"
	"github.com/cuemby/stevedore/pkg/remote"
	"github.com/cuemby/stevedore/pkg/retry"
	"github.com/cuemby/stevedore/pkg/types"
)

// Status values set by the handle itself. Actions may set any other text.
const (
	StatusPending    = "pending"
	StatusConnecting = "connecting"
	StatusOnline     = "online"
	StatusRebooting  = "rebooting"
	StatusOffline    = "offline"
)

// Metadata identifies a node in the inventory
type Metadata struct {
	Name    string
	Address string
	Role    types.NodeRole
	Labels  map[string]string
}

// IsManager reports whether the node is a swarm manager
func (m Metadata) IsManager() bool {
	return m.Role == types.NodeRoleManager
}

// MetadataFrom copies the identity of an inventory entry
func MetadataFrom(n *types.Node) Metadata {
	labels := make(map[string]string, len(n.Labels))
	for k, v := range n.Labels {
		labels[k] = v
	}
	return Metadata{
		Name:    n.Name,
		Address: n.Address,
		Role:    n.Role,
		Labels:  labels,
	}
}

// Handle is the controller-side representation of one remote host. It owns one
// session, serializes the commands sent through it and carries the node's live
// status and terminal fault.
type Handle struct {
	meta      Metadata
	endpoint  remote.Endpoint
	transport remote.Transport
	logger    zerolog.Logger

	rebootPolicy retry.Policy
	rebootGrace  time.Duration

	// cmdMu serializes everything that talks to the transport
	cmdMu sync.Mutex

	mu           sync.RWMutex
	status       string
	faulted      bool
	faultMessage string
	ready        bool
}

// New creates a handle over an unconnected transport
func New(meta Metadata, endpoint remote.Endpoint, transport remote.Transport, opts ...Option) *Handle {
	h := &Handle{
		meta:         meta,
		endpoint:     endpoint,
		transport:    transport,
		logger:       log.WithNode(meta.Name),
		rebootPolicy: retry.Policy{Interval: 5 * time.Second, Timeout: 10 * time.Minute},
		rebootGrace:  30 * time.Second,
		status:       StatusPending,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Factory builds a handle for an inventory entry
type Factory func(meta Metadata, endpoint remote.Endpoint, opts ...Option) (*Handle, error)

// NewFactory returns a Factory that opens transports with transports
func NewFactory(transports remote.Factory) Factory {
	return func(meta Metadata, endpoint remote.Endpoint, opts ...Option) (*Handle, error) {
		tr, err := transports(endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create transport for node %s: %w", meta.Name, err)
		}
		return New(meta, endpoint, tr, opts...), nil
	}
}

func (h *Handle) Name() string              { return h.meta.Name }
func (h *Handle) Metadata() Metadata        { return h.meta }
func (h *Handle) Endpoint() remote.Endpoint { return h.endpoint }

// Status returns the last status text
func (h *Handle) Status() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// SetStatus records what the node is doing
func (h *Handle) SetStatus(status string) {
	h.mu.Lock()
	h.status = status
	h.mu.Unlock()
	h.logger.Trace().Str("status", status).Msg("Node status")
}

// Fault marks the node as failed. Only the first message is kept.
func (h *Handle) Fault(msg string) {
	h.mu.Lock()
	if h.faulted {
		h.mu.Unlock()
		return
	}
	h.faulted = true
	h.faultMessage = msg
	h.mu.Unlock()

	h.logger.Error().Str("fault", msg).Msg("Node faulted")
}

// Faulted reports whether the node has failed
func (h *Handle) Faulted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.faulted
}

// FaultMessage returns the first fault message, empty when not faulted
func (h *Handle) FaultMessage() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.faultMessage
}

// Ready reports whether the node has been confirmed reachable
func (h *Handle) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

func (h *Handle) setReady(ready bool) {
	h.mu.Lock()
	h.ready = ready
	h.mu.Unlock()
}

// Connect establishes the session. A live session is reused, a dead one is
// re-dialed.
func (h *Handle) Connect(ctx context.Context) error {
	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()
	return h.connectLocked(ctx)
}

func (h *Handle) connectLocked(ctx context.Context) error {
	if err := h.transport.Connect(ctx); err != nil {
		h.setReady(false)
		return &ConnectionError{Node: h.meta.Name, Address: h.endpoint.Addr(), Err: err}
	}
	h.setReady(true)
	return nil
}

// Close drops the session. The handle can reconnect later.
func (h *Handle) Close() error {
	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()
	h.setReady(false)
	return h.transport.Close()
}

// Dial opens a TCP connection to addr from the node, for talking to services
// bound to the node's loopback. Not every transport can do this.
func (h *Handle) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	d, ok := h.transport.(remote.Dialer)
	if !ok {
		return nil, fmt.Errorf("node %s: transport cannot forward connections", h.meta.Name)
	}
	if err := h.Connect(ctx); err != nil {
		return nil, err
	}
	return d.DialContext(ctx, network, addr)
}
