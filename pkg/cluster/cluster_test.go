package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/stevedore/pkg/bundle"
	"github.com/cuemby/stevedore/pkg/config"
	"github.com/cuemby/stevedore/pkg/health"
	"github.com/cuemby/stevedore/pkg/node"
	"github.com/cuemby/stevedore/pkg/remote"
	"github.com/cuemby/stevedore/pkg/remote/remotetest"
	"github.com/cuemby/stevedore/pkg/report"
	"github.com/cuemby/stevedore/pkg/retry"
	"github.com/cuemby/stevedore/pkg/storage"
	"github.com/cuemby/stevedore/pkg/types"
)

type fixture struct {
	proxy *Proxy
	fleet *remotetest.Fleet
	clock *retry.FakeClock
}

// newFixture builds a proxy over fake hosts. Names starting with "m" are
// managers. Addresses equal names.
func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	def := &types.Cluster{Name: "prod"}
	for _, name := range names {
		role := types.NodeRoleWorker
		if name[0] == 'm' {
			role = types.NodeRoleManager
		}
		def.Nodes = append(def.Nodes, &types.Node{Name: name, Address: name, Role: role})
	}
	def.ApplyDefaults()

	f := &fixture{
		fleet: remotetest.NewFleet(),
		clock: retry.NewFakeClock(time.Unix(0, 0)),
	}
	rt := config.DefaultRuntime().WithClock(f.clock)
	p, err := New(def, node.NewFactory(f.fleet.Factory()), rt)
	require.NoError(t, err)
	f.proxy = p
	return f
}

func handleNames(hs []*node.Handle) []string {
	return names(hs)
}

func TestNew_Queries(t *testing.T) {
	f := newFixture(t, "m1", "w1", "m2", "w2", "m3")
	p := f.proxy

	assert.Equal(t, []string{"m1", "w1", "m2", "w2", "m3"}, handleNames(p.Nodes()))
	assert.Equal(t, []string{"m1", "m2", "m3"}, handleNames(p.Managers()))
	assert.Equal(t, []string{"w1", "w2"}, handleNames(p.Workers()))
	assert.Equal(t, "m1", p.Manager().Name())
	assert.Equal(t, "prod", p.Name())
	assert.Same(t, p.Definition(), p.Definition())
	assert.NotNil(t, p.Runtime())

	h, ok := p.Node("w2")
	require.True(t, ok)
	assert.Equal(t, types.NodeRoleWorker, h.Metadata().Role)
	assert.Equal(t, "w2", h.Endpoint().Host)

	_, ok = p.Node("nope")
	assert.False(t, ok)

	assert.NoError(t, p.Close())
}

func TestNew_FactoryError(t *testing.T) {
	def := &types.Cluster{Name: "prod", Nodes: []*types.Node{{Name: "m1", Address: "m1", Role: types.NodeRoleManager}}}
	factory := node.NewFactory(func(remote.Endpoint) (remote.Transport, error) {
		return nil, errors.New("no key")
	})
	_, err := New(def, factory, nil)
	assert.ErrorContains(t, err, "failed to create transport for node m1")

	_, err = New(nil, factory, nil)
	assert.Error(t, err)
}

func TestFleetCommand(t *testing.T) {
	f := newFixture(t, "m1", "m2", "m3", "w1")
	f.fleet.Host("m2").On("docker info", remote.Result{ExitCode: 1, Stderr: []byte("daemon down")})

	fr := f.proxy.FleetCommand(context.Background(), "docker info")
	assert.False(t, fr.OK())
	require.Len(t, fr.Members, 3)
	require.Len(t, fr.Failed(), 1)
	assert.Equal(t, "m2", fr.Failed()[0].Node)
	assert.ErrorContains(t, fr.Err(), "node m2: exited with code 1")

	// A failure does not stop later managers, and workers are never touched
	assert.True(t, f.fleet.Host("m3").Ran("docker info"))
	assert.False(t, f.fleet.Host("w1").Ran("docker info"))
}

func TestFleetCommand_AllOK(t *testing.T) {
	f := newFixture(t, "m1", "m2", "m3")
	fr := f.proxy.FleetCommand(context.Background(), "true")
	assert.True(t, fr.OK())
	assert.NoError(t, fr.Err())
}

func sealedStatus(progress int) remote.Result {
	return remote.Result{
		ExitCode: vaultSealed,
		Stdout:   []byte(fmt.Sprintf(`{"initialized":true,"sealed":true,"t":3,"n":5,"progress":%d}`, progress)),
	}
}

var unsealedStatus = remote.Result{Stdout: []byte(`{"initialized":true,"sealed":false,"t":3,"n":5}`)}

// acceptShares answers unseal submissions with increasing progress until the
// threshold unseals the vault
func acceptShares(threshold int, calls *atomic.Int32) remotetest.Handler {
	return func(string, string) (*remote.Result, error) {
		n := int(calls.Add(1))
		if n >= threshold {
			r := unsealedStatus
			return &r, nil
		}
		r := sealedStatus(n)
		r.ExitCode = 0
		return &r, nil
	}
}

func TestUnseal(t *testing.T) {
	f := newFixture(t, "m1", "m2", "m3", "w1")
	keys := []string{"k1", "k2", "k3", "k4", "k5"}

	// m1 is already unsealed
	f.fleet.Host("m1").On("vault status", unsealedStatus)

	// m2 unseals after three shares
	var m2Calls atomic.Int32
	f.fleet.Host("m2").On("vault status", sealedStatus(0))
	f.fleet.Host("m2").OnFunc("operator unseal", acceptShares(3, &m2Calls))

	// m3 rejects the first share, then accepts
	var m3Calls atomic.Int32
	rejected := false
	f.fleet.Host("m3").On("vault status", sealedStatus(0))
	f.fleet.Host("m3").OnFunc("operator unseal", func(cmd, in string) (*remote.Result, error) {
		if !rejected {
			rejected = true
			return &remote.Result{ExitCode: 2, Stderr: []byte("invalid key")}, nil
		}
		return acceptShares(3, &m3Calls)(cmd, in)
	})

	fr, err := f.proxy.Unseal(context.Background(), keys)
	require.NoError(t, err)
	assert.True(t, fr.OK())
	assert.Len(t, fr.Members, 3)

	assert.False(t, f.fleet.Host("m1").Ran("operator unseal"))
	assert.Equal(t, int32(3), m2Calls.Load())
	assert.Equal(t, int32(3), m3Calls.Load())
	assert.False(t, f.fleet.Host("w1").Ran("vault"))

	// Shares travel in a staged file, never on the command line
	for _, host := range []string{"m2", "m3"} {
		for _, cmd := range f.fleet.Host(host).Commands() {
			for _, k := range keys {
				assert.NotContains(t, cmd, " "+k)
			}
		}
		assert.Empty(t, f.fleet.Host(host).Files(), "staging dirs are removed")
	}
	for _, h := range f.proxy.Managers() {
		assert.False(t, h.Faulted())
		assert.Equal(t, "vault: unsealed", h.Status())
	}
}

func TestUnseal_ManagerBelowThreshold(t *testing.T) {
	f := newFixture(t, "m1", "m2", "m3")
	var calls atomic.Int32
	for _, m := range []string{"m1", "m3"} {
		f.fleet.Host(m).On("vault status", unsealedStatus)
	}
	f.fleet.Host("m2").On("vault status", sealedStatus(0))
	f.fleet.Host("m2").OnFunc("operator unseal", func(string, string) (*remote.Result, error) {
		calls.Add(1)
		return &remote.Result{ExitCode: 2}, nil
	})

	fr, err := f.proxy.Unseal(context.Background(), []string{"k1", "k2", "k3", "k4", "k5"})
	require.Error(t, err)
	assert.False(t, fr.OK())
	assert.Equal(t, int32(5), calls.Load(), "every share is tried")

	m2, _ := f.proxy.Node("m2")
	assert.True(t, m2.Faulted())
	assert.Contains(t, m2.FaultMessage(), "vault still sealed after 0 of 3 key shares accepted")

	// The manager after the failing one is still processed
	assert.True(t, f.fleet.Host("m3").Ran("vault status"))
}

func TestUnseal_NotEnoughKeys(t *testing.T) {
	f := newFixture(t, "m1")
	_, err := f.proxy.Unseal(context.Background(), []string{"k1"})
	assert.ErrorContains(t, err, "needs 3 key shares, have 1")
	assert.Empty(t, f.fleet.Host("m1").Commands())
}

func TestInitVault(t *testing.T) {
	f := newFixture(t, "m1", "m2", "m3")
	m1 := f.fleet.Host("m1")
	m1.On("vault status", remote.Result{ExitCode: vaultSealed, Stdout: []byte(`{"initialized":false,"sealed":true}`)})
	m1.On("operator init", remote.Result{Stdout: []byte(`{"unseal_keys_b64":["a","b","c","d","e"],"root_token":"hvs.root"}`)})

	init, err := f.proxy.InitVault(context.Background())
	require.NoError(t, err)
	assert.Len(t, init.Keys, 5)
	assert.Equal(t, "hvs.root", init.RootToken)
	assert.True(t, m1.Ran("-key-shares=5 -key-threshold=3"))

	m1.On("vault status", unsealedStatus)
	_, err = f.proxy.InitVault(context.Background())
	assert.ErrorIs(t, err, ErrVaultInitialized)
}

func TestWaitVaultReady(t *testing.T) {
	f := newFixture(t, "m1")
	var calls atomic.Int32
	f.fleet.Host("m1").OnFunc("vault status", func(string, string) (*remote.Result, error) {
		if calls.Add(1) < 3 {
			return &remote.Result{ExitCode: 1, Stderr: []byte("connection refused")}, nil
		}
		r := sealedStatus(0)
		return &r, nil
	})
	require.NoError(t, f.proxy.WaitVaultReady(context.Background(), f.proxy.Manager()))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2, f.clock.Sleeps())
}

// Three managers must join; the probe sees 1, 2, 2 and then 3 members.
func TestWaitForQuorum_SucceedsOnFourthAttempt(t *testing.T) {
	f := newFixture(t, "m1", "m2", "m3")
	seen := []int{1, 2, 2, 3}
	var calls atomic.Int32
	probe := func(ctx context.Context) (int, error) {
		n := calls.Add(1)
		return seen[n-1], nil
	}
	policy := retry.Policy{Interval: 5 * time.Second, Timeout: 2 * time.Minute, Clock: f.clock}

	err := f.proxy.WaitForQuorum(context.Background(), "swarm managers", probe, 3, policy)
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, 3, f.clock.Sleeps())
	for _, h := range f.proxy.Nodes() {
		assert.False(t, h.Faulted())
	}
}

func TestWaitForQuorum_Timeout(t *testing.T) {
	f := newFixture(t, "m1", "m2", "m3")
	probe := func(ctx context.Context) (int, error) { return 0, errors.New("connection refused") }
	policy := retry.Policy{Interval: 5 * time.Second, Timeout: 20 * time.Second, Clock: f.clock}

	err := f.proxy.WaitForQuorum(context.Background(), "consul", probe, 3, policy)
	require.Error(t, err)
	assert.True(t, retry.IsTimeout(err))
	assert.ErrorContains(t, err, "connection refused")
}

func TestSwarmProbes(t *testing.T) {
	f := newFixture(t, "m1")
	m1 := f.fleet.Host("m1")
	m1.On("--filter role=manager", remote.Result{Stdout: []byte("Leader\nReachable\nUnreachable\n")})
	m1.On("{{.Status}}", remote.Result{Stdout: []byte("Ready\nReady\nDown\nReady\n")})

	n, err := SwarmManagers(f.proxy.Manager())(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = SwarmReadyNodes(f.proxy.Manager())(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	m1.On("{{.Status}}", remote.Result{ExitCode: 1})
	_, err = SwarmReadyNodes(f.proxy.Manager())(context.Background())
	assert.Error(t, err)
}

func TestDeploy_Rolling(t *testing.T) {
	f := newFixture(t, "m1", "m2", "m3", "w1")
	routes := bundle.File{Name: "routes.json", Data: []byte(`{"routes":[]}`)}

	fr := f.proxy.Deploy(context.Background(), "proxy.sh", "#!/bin/sh\necho ok\n",
		WithFiles(routes), WithDelay(10*time.Second))
	require.True(t, fr.OK(), fr.Err())
	assert.Len(t, fr.Members, 3)
	assert.Equal(t, 2, f.clock.Sleeps(), "delay only between managers")

	for _, m := range []string{"m1", "m2", "m3"} {
		assert.True(t, f.fleet.Host(m).Ran("./proxy.sh"))
	}
	assert.False(t, f.fleet.Host("w1").Ran("proxy.sh"))
}

func TestDeploy_StopsAtFirstFailure(t *testing.T) {
	f := newFixture(t, "m1", "m2", "m3")
	f.fleet.Host("m2").On("./proxy.sh", remote.Result{ExitCode: 3, Stderr: []byte("bad routes")})

	fr := f.proxy.Deploy(context.Background(), "proxy.sh", "exit 0")
	assert.False(t, fr.OK())
	assert.Equal(t, []string{"m3"}, fr.Skipped)
	assert.False(t, f.fleet.Host("m3").Ran("proxy.sh"))

	m2, _ := f.proxy.Node("m2")
	assert.True(t, m2.Faulted())
	assert.Contains(t, m2.FaultMessage(), "bad routes")
	assert.ErrorContains(t, fr.Err(), "node m3: skipped")
}

func TestJoinTokens(t *testing.T) {
	f := newFixture(t, "m1", "w1")
	m1 := f.fleet.Host("m1")
	m1.On("join-token -q manager", remote.Result{Stdout: []byte("SWMTKN-1-mgr\n")})
	m1.On("join-token -q worker", remote.Result{Stdout: []byte("SWMTKN-1-wrk\n")})

	tokens, err := f.proxy.JoinTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SWMTKN-1-mgr", tokens.Manager.Token)
	assert.Equal(t, "SWMTKN-1-wrk", tokens.For(types.NodeRoleWorker).Token)
	assert.Equal(t, "m1:2377", tokens.Address)

	m1.On("join-token -q worker", remote.Result{})
	_, err = f.proxy.JoinTokens(context.Background())
	assert.ErrorContains(t, err, "empty worker join token")
}

func TestCheckHealth_Independent(t *testing.T) {
	f := newFixture(t, "m1", "w1", "w2")
	f.fleet.Host("w1").SetUnreachable(errors.New("no route to host"))
	f.fleet.Host("w2").On("systemctl is-active docker", remote.Result{ExitCode: 3, Stdout: []byte("inactive")})

	results := f.proxy.CheckHealth(context.Background(), func(h *node.Handle) []health.Checker {
		return []health.Checker{health.NewRemoteChecker(h, "systemctl is-active docker")}
	})
	require.Len(t, results, 3)
	assert.True(t, results[0].Healthy())
	assert.False(t, results[1].Healthy())
	assert.False(t, results[2].Healthy())

	for _, h := range f.proxy.Nodes() {
		assert.False(t, h.Faulted(), "health checks never fault")
	}

	table := HealthTable("prod", results)
	assert.False(t, table.Success)
	assert.Equal(t, "2 of 3 nodes unhealthy", table.Footer)
	assert.Equal(t, report.StateOK, table.Rows[0].State)
	assert.Equal(t, report.StateFailed, table.Rows[1].State)
	assert.Equal(t, "1 of 1 checks failed", table.Rows[2].Status)
	assert.Contains(t, table.Rows[2].Detail, "systemctl is-active docker: ")
}

func TestSecrets(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = NewSecrets(store, "", "prod")
	assert.Error(t, err)

	s, err := NewSecrets(store, "passphrase", "prod")
	require.NoError(t, err)
	require.NoError(t, s.SaveVaultInit(&VaultInit{Keys: []string{"a", "b", "c"}, RootToken: "hvs.root"}))

	keys, err := s.UnsealKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	require.NoError(t, s.SaveJoinTokens(&JoinTokens{
		Manager: JoinToken{Token: "mgr"},
		Worker:  JoinToken{Token: "wrk"},
	}))
	var worker string
	require.NoError(t, s.Get("swarm/worker-token", &worker))
	assert.Equal(t, "wrk", worker)

	wrong, err := NewSecrets(store, "other", "prod")
	require.NoError(t, err)
	_, err = wrong.UnsealKeys()
	assert.Error(t, err)

	_, err = s.store.GetSecret("staging", "vault/unseal-keys")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
