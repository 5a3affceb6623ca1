package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/stevedore/pkg/retry"
	"github.com/cuemby/stevedore/pkg/types"
)

const sampleDefinition = `
name: prod
ssh:
  user: ubuntu
  privateKeyPath: ~/.ssh/id_ed25519
nodes:
  - name: m1
    address: 10.0.0.11
    role: manager
    labels:
      zone: a
  - name: w1
    address: 10.0.0.21
    role: worker
    ssh:
      user: admin
      port: 2222
vault:
  keyShares: 5
  keyThreshold: 3
`

func TestParse(t *testing.T) {
	cluster, err := Parse([]byte(sampleDefinition))
	require.NoError(t, err)

	assert.Equal(t, "prod", cluster.Name)
	require.Len(t, cluster.Nodes, 2)
	assert.Equal(t, types.NodeRoleManager, cluster.Nodes[0].Role)
	assert.Equal(t, "a", cluster.Nodes[0].Labels["zone"])
	assert.Equal(t, 22, cluster.SSH.Port, "defaults applied")
	assert.Equal(t, 3, cluster.Vault.KeyThreshold)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "malformed yaml", data: "name: [", wantErr: "failed to parse cluster definition"},
		{name: "no managers", data: "name: x\nnodes:\n  - {name: w1, address: 10.0.0.1, role: worker}\n", wantErr: "invalid cluster definition"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDefinition), 0o600))

	cluster, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", cluster.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read cluster definition")
}

func TestLoadRuntime_Defaults(t *testing.T) {
	rt, err := LoadRuntime("")
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxParallel, rt.MaxParallel)
	assert.Equal(t, 5*time.Second, rt.Online.Interval)
	assert.Equal(t, 5*time.Minute, rt.Online.Timeout)
	assert.Equal(t, 10*time.Minute, rt.Reboot.Timeout)
	assert.Equal(t, 2*time.Minute, rt.Quorum.Timeout)
	assert.Equal(t, 2*time.Second, rt.Readiness.Interval)
}

func TestLoadRuntime_Env(t *testing.T) {
	t.Setenv("STEVEDORE_MAX_PARALLEL", "2")
	t.Setenv("STEVEDORE_QUORUM_TIMEOUT", "90s")
	t.Setenv("STEVEDORE_QUORUM_INTERVAL", "3s")
	t.Setenv("STEVEDORE_ONLINE_TIMEOUT", "not-a-duration")
	t.Setenv("STEVEDORE_STATE_DIR", "/var/lib/stevedore")
	t.Setenv("STEVEDORE_SECRET_KEY", "hunter2")

	rt, err := LoadRuntime("")
	require.NoError(t, err)

	assert.Equal(t, 2, rt.MaxParallel)
	assert.Equal(t, 90*time.Second, rt.Quorum.Timeout)
	assert.Equal(t, 3*time.Second, rt.Quorum.Interval)
	assert.Equal(t, 5*time.Minute, rt.Online.Timeout, "invalid value falls back to default")
	assert.Equal(t, "/var/lib/stevedore", rt.StateDir)
	assert.Equal(t, "hunter2", rt.SecretPassphrase)
}

func TestLoadRuntime_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STEVEDORE_SSH_USER=deploy\n"), 0o600))
	t.Setenv("STEVEDORE_SSH_USER", "")
	require.NoError(t, os.Unsetenv("STEVEDORE_SSH_USER"))

	rt, err := LoadRuntime(path)
	require.NoError(t, err)
	assert.Equal(t, "deploy", rt.SSHUser)

	_, err = LoadRuntime(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err, "a missing env file is not an error")
}

func TestRuntime_Endpoint(t *testing.T) {
	cluster, err := Parse([]byte(sampleDefinition))
	require.NoError(t, err)

	rt := DefaultRuntime()
	ep := rt.Endpoint(cluster, cluster.Nodes[0])
	assert.Equal(t, "10.0.0.11", ep.Host)
	assert.Equal(t, 22, ep.Port)
	assert.Equal(t, "ubuntu", ep.Credentials.User)
	assert.Equal(t, "~/.ssh/id_ed25519", ep.Credentials.PrivateKeyPath)

	ep = rt.Endpoint(cluster, cluster.Nodes[1])
	assert.Equal(t, "admin", ep.Credentials.User)
	assert.Equal(t, 2222, ep.Port)

	rt.SSHPassword = "secret"
	rt.SSHUser = "root"
	ep = rt.Endpoint(cluster, cluster.Nodes[1])
	assert.Equal(t, "root", ep.Credentials.User)
	assert.Equal(t, "secret", ep.Credentials.Password)
}

func TestRuntime_WithClock(t *testing.T) {
	clock := retry.NewFakeClock(time.Unix(0, 0))
	rt := DefaultRuntime().WithClock(clock)

	assert.Same(t, clock, rt.Online.Clock)
	assert.Same(t, clock, rt.Quorum.Clock)
	assert.Equal(t, 5*time.Minute, rt.Online.Timeout)
}
