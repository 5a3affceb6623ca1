package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name string
	ok   bool
}

func (s stubChecker) Check(context.Context) Result {
	return Result{Healthy: s.ok, Message: s.name}
}
func (s stubChecker) Type() CheckType { return CheckTypeRemote }
func (s stubChecker) Name() string    { return s.name }

func TestRun(t *testing.T) {
	results := Run(context.Background(), []Checker{
		stubChecker{name: "docker", ok: false},
		stubChecker{name: "swarm", ok: true},
		stubChecker{name: "consul", ok: false},
	})

	require.Len(t, results, 3, "a failing check does not stop the rest")
	assert.Equal(t, "docker", results[0].Check)
	assert.Equal(t, CheckTypeRemote, results[0].Type)

	failed := Failed(results)
	require.Len(t, failed, 2)
	assert.Equal(t, "consul", failed[1].Check)
	assert.Empty(t, Failed(results[1:2]))
}

func TestCheckerNames(t *testing.T) {
	assert.Equal(t, "tcp 10.0.0.11:22", NewTCPChecker("10.0.0.11:22").Name())
	assert.Equal(t, "ssh", NewTCPChecker("10.0.0.11:22").Named("ssh").Name())
	assert.Equal(t, "vault-http", NewVaultChecker("10.0.0.11", 8200).Name())
	assert.Equal(t, "consul-leader", NewConsulLeaderChecker("10.0.0.11", 8500).Name())
}
