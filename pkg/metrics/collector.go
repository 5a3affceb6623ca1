package metrics

import (
	"sync"
	"time"
)

// NodeState is one node's role and state as seen by the collector
type NodeState struct {
	Role  string
	State string
}

// Collector periodically refreshes the node gauges from a source
type Collector struct {
	source   func() []NodeState
	interval time.Duration
	stopCh   chan struct{}
	once     sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(source func() []NodeState, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector after one final collection
func (c *Collector) Stop() {
	c.once.Do(func() {
		close(c.stopCh)
		c.Collect()
	})
}

// Collect recomputes the node gauges from the source
func (c *Collector) Collect() {
	counts := make(map[NodeState]int)
	for _, s := range c.source() {
		counts[s]++
	}

	NodesTotal.Reset()
	for s, n := range counts {
		NodesTotal.WithLabelValues(s.Role, s.State).Set(float64(n))
	}
}
