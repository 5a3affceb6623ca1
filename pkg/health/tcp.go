package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker passes when Address accepts a connection
type TCPChecker struct {
	Label   string
	Address string
	Timeout time.Duration
}

// NewTCPChecker checks address with a five second dial timeout
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Label: "tcp " + address, Address: address, Timeout: 5 * time.Second}
}

func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	conn, err := (&net.Dialer{Timeout: t.Timeout}).DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return outcome(start, false, fmt.Sprintf("connection failed: %v", err))
	}
	_ = conn.Close()
	return outcome(start, true, "accepting connections on "+t.Address)
}

func (t *TCPChecker) Type() CheckType { return CheckTypeTCP }
func (t *TCPChecker) Name() string    { return t.Label }

// Named sets the label shown in reports
func (t *TCPChecker) Named(label string) *TCPChecker {
	t.Label = label
	return t
}

// WithTimeout sets the dial timeout
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}
