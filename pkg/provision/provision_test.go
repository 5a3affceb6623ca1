package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/stevedore/pkg/cluster"
	"github.com/cuemby/stevedore/pkg/config"
	"github.com/cuemby/stevedore/pkg/health"
	"github.com/cuemby/stevedore/pkg/node"
	"github.com/cuemby/stevedore/pkg/orchestrator"
	"github.com/cuemby/stevedore/pkg/remote"
	"github.com/cuemby/stevedore/pkg/remote/remotetest"
	"github.com/cuemby/stevedore/pkg/retry"
	"github.com/cuemby/stevedore/pkg/storage"
)

const testDefinition = `
name: prod
docker:
  registry: https://mirror.internal
  networks: [backend, frontend]
consul:
  version: "1.19"
vault:
  keyShares: 5
  keyThreshold: 3
proxy:
  routes:
    - host: app.example.com
      service: app
nodes:
  - {name: m1, address: m1, role: manager, labels: {zone: a}}
  - {name: m2, address: m2, role: manager}
  - {name: m3, address: m3, role: manager}
  - {name: w1, address: w1, role: worker}
`

type fixture struct {
	proxy   *cluster.Proxy
	fleet   *remotetest.Fleet
	clock   *retry.FakeClock
	secrets *cluster.Secrets
	rt      *config.Runtime
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	def, err := config.Parse([]byte(testDefinition))
	require.NoError(t, err)

	f := &fixture{
		fleet: remotetest.NewFleet(),
		clock: retry.NewFakeClock(time.Unix(0, 0)),
	}
	f.rt = config.DefaultRuntime().WithClock(f.clock)
	f.proxy, err = cluster.New(def, node.NewFactory(f.fleet.Factory()), f.rt)
	require.NoError(t, err)

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	f.secrets, err = cluster.NewSecrets(store, "passphrase", "prod")
	require.NoError(t, err)
	return f
}

func (f *fixture) orchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(f.proxy.Nodes(), f.rt, orchestrator.WithClock(f.clock))
}

// fakeVault simulates Vault on every manager, sharing one Consul backend
type fakeVault struct {
	mu          sync.Mutex
	initialized bool
	progress    map[string]int
}

func newFakeVault(f *fixture) *fakeVault {
	v := &fakeVault{progress: make(map[string]int)}
	for _, m := range []string{"m1", "m2", "m3"} {
		host := m
		tr := f.fleet.Host(host)
		tr.OnFunc("vault status", func(string, string) (*remote.Result, error) {
			return v.status(host, false), nil
		})
		tr.OnFunc("operator init", func(string, string) (*remote.Result, error) {
			v.mu.Lock()
			v.initialized = true
			v.mu.Unlock()
			return &remote.Result{Stdout: []byte(`{"unseal_keys_b64":["k1","k2","k3","k4","k5"],"root_token":"hvs.root"}`)}, nil
		})
		tr.OnFunc("operator unseal", func(string, string) (*remote.Result, error) {
			return v.status(host, true), nil
		})
	}
	return v
}

func (v *fakeVault) status(host string, submit bool) *remote.Result {
	v.mu.Lock()
	defer v.mu.Unlock()
	if submit {
		v.progress[host]++
	}
	sealed := v.progress[host] < 3
	code := 0
	if sealed && !submit {
		code = 2
	}
	body := fmt.Sprintf(`{"initialized":%t,"sealed":%t,"t":3,"n":5,"progress":%d}`, v.initialized, sealed, v.progress[host])
	return &remote.Result{ExitCode: code, Stdout: []byte(body)}
}

func (f *fixture) scriptTokens() {
	m1 := f.fleet.Host("m1")
	m1.On("join-token -q manager", remote.Result{Stdout: []byte("SWMTKN-mgr\n")})
	m1.On("join-token -q worker", remote.Result{Stdout: []byte("SWMTKN-wrk\n")})
}

func fixedProbe(n int) ProbeFunc {
	return func(*node.Handle) (cluster.QuorumProbe, error) {
		return func(context.Context) (int, error) { return n, nil }, nil
	}
}

func TestRender_AllScripts(t *testing.T) {
	f := newFixture(t)
	def := f.proxy.Definition()

	for _, name := range Names() {
		for _, n := range def.Nodes {
			data := NewData(def, n)
			data.JoinAddress = "m1:2377"
			text, err := Render(name, data)
			require.NoError(t, err, "%s on %s", name, n.Name)
			assert.True(t, strings.HasPrefix(text, "#!/bin/sh\n"), name)
			assert.NotContains(t, text, "<no value>", name)
		}
	}
	assert.Contains(t, Names(), "swarm-join.sh")
}

func TestRender_Details(t *testing.T) {
	f := newFixture(t)
	def := f.proxy.Definition()
	m1, _ := f.proxy.NodeDefinition("m1")
	w1, _ := f.proxy.NodeDefinition("w1")

	docker, err := Render("install-docker.sh", NewData(def, m1))
	require.NoError(t, err)
	assert.Contains(t, docker, `"registry-mirrors": ["https://mirror.internal"]`)
	assert.Contains(t, docker, `"labels": ["zone=a"]`)

	server, err := Render("consul.sh", NewData(def, m1))
	require.NoError(t, err)
	assert.Contains(t, server, `"bootstrap_expect": 3`)
	assert.Contains(t, server, `"retry_join": ["m1", "m2", "m3"]`)
	assert.Contains(t, server, "hashicorp/consul:1.19")

	agent, err := Render("consul.sh", NewData(def, w1))
	require.NoError(t, err)
	assert.NotContains(t, agent, "bootstrap_expect")

	vault, err := Render("vault.sh", NewData(def, m1))
	require.NoError(t, err)
	assert.Contains(t, vault, `cluster_addr = "http://m1:8201"`)

	init, err := Render("swarm-init.sh", NewData(def, m1))
	require.NoError(t, err)
	assert.Contains(t, init, "--format '{{.Swarm.LocalNodeState}}'")
	assert.Contains(t, init, "--advertise-addr m1")

	networks, err := Render("networks.sh", NewData(def, m1))
	require.NoError(t, err)
	assert.Contains(t, networks, "--attachable backend")
	assert.Contains(t, networks, "--attachable frontend")

	_, err = Render("missing.sh", NewData(def, m1))
	assert.Error(t, err)
}

func TestScript_Bundle(t *testing.T) {
	f := newFixture(t)
	def := f.proxy.Definition()
	m1, _ := f.proxy.NodeDefinition("m1")

	b, err := Script("prepare-host.sh", NewData(def, m1))
	require.NoError(t, err)
	assert.Equal(t, "./prepare-host.sh", b.Command())
	require.Len(t, b.Files(), 1)
	assert.True(t, b.Files()[0].Executable)
}

func TestSetup_EndToEnd(t *testing.T) {
	f := newFixture(t)
	f.scriptTokens()
	newFakeVault(f)

	setup := NewSetup(f.proxy, f.secrets)
	setup.SwarmProbe = fixedProbe(4)
	setup.ConsulProbe = fixedProbe(3)

	o := f.orchestrator()
	setup.Register(o)
	ok := o.Run(context.Background())

	var buf bytes.Buffer
	require.NoError(t, o.Report(&buf))
	require.True(t, ok, buf.String())

	for _, h := range f.proxy.Nodes() {
		assert.True(t, h.Ready(), h.Name())
		assert.False(t, h.Faulted(), h.Name())
		tr := f.fleet.Host(h.Name())
		assert.True(t, tr.Ran("./prepare-host.sh"), h.Name())
		assert.True(t, tr.Ran("./install-docker.sh"), h.Name())
		assert.True(t, tr.Ran("./consul.sh"), h.Name())
		assert.Empty(t, tr.Files(), "staging dirs removed on %s", h.Name())
	}

	assert.True(t, f.fleet.Host("m1").Ran("./swarm-init.sh"))
	assert.False(t, f.fleet.Host("m1").Ran("./swarm-join.sh"))
	assert.True(t, f.fleet.Host("m2").Ran("./swarm-join.sh"))
	assert.True(t, f.fleet.Host("w1").Ran("./swarm-join.sh"))
	assert.False(t, f.fleet.Host("w1").Ran("vault"))
	assert.True(t, f.fleet.Host("m1").Ran("./networks.sh"))
	assert.True(t, f.fleet.Host("m3").Ran("./proxy.sh"))

	keys, err := f.secrets.UnsealKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2", "k3", "k4", "k5"}, keys)

	var worker string
	require.NoError(t, f.secrets.Get("swarm/worker-token", &worker))
	assert.Equal(t, "SWMTKN-wrk", worker)

	steps := o.Result().Steps
	assert.Equal(t, "wait-until-online", steps[0].Name)
	assert.Equal(t, "proxy-deploy", steps[len(steps)-1].Name)
}

func TestSetup_WorkerFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.scriptTokens()
	newFakeVault(f)
	f.fleet.Host("w1").On("./install-docker.sh", remote.Result{ExitCode: 100, Stderr: []byte("E: Unable to locate package")})

	setup := NewSetup(f.proxy, f.secrets)
	setup.SwarmProbe = fixedProbe(3)
	setup.ConsulProbe = fixedProbe(3)

	o := f.orchestrator()
	setup.Register(o)
	assert.False(t, o.Run(context.Background()))

	res := o.Result()
	assert.False(t, res.Aborted)
	w1, ok := res.Node("w1")
	require.True(t, ok)
	assert.True(t, w1.Faulted)
	assert.Contains(t, w1.Message, "Unable to locate package")
	assert.Equal(t, "install-docker", w1.Step)

	assert.False(t, f.fleet.Host("w1").Ran("./swarm-join.sh"))
	assert.False(t, f.fleet.Host("w1").Ran("./consul.sh"))
	for _, m := range []string{"m1", "m2", "m3"} {
		n, _ := res.Node(m)
		assert.True(t, n.Succeeded(), m)
		assert.True(t, f.fleet.Host(m).Ran("./proxy.sh"), m)
	}
}

func TestSetup_ConsulQuorumTimeoutAborts(t *testing.T) {
	f := newFixture(t)
	f.scriptTokens()

	setup := NewSetup(f.proxy, f.secrets)
	setup.SwarmProbe = fixedProbe(4)
	setup.ConsulProbe = fixedProbe(2)

	o := f.orchestrator()
	setup.Register(o)
	assert.False(t, o.Run(context.Background()))

	res := o.Result()
	assert.True(t, res.Aborted)
	require.NotNil(t, res.Failure)
	assert.Equal(t, "consul-quorum", res.Failure.Step)
	assert.True(t, retry.IsTimeout(res.Failure), res.Failure.Error())
	for _, m := range []string{"m1", "m2", "m3"} {
		assert.False(t, f.fleet.Host(m).Ran("./vault.sh"), m)
	}
}

func TestSetup_RerunKeepsStoredVaultKeys(t *testing.T) {
	f := newFixture(t)
	f.scriptTokens()
	v := newFakeVault(f)
	v.initialized = true
	stored := &cluster.VaultInit{Keys: []string{"a", "b", "c", "d", "e"}, RootToken: "t"}
	require.NoError(t, f.secrets.SaveVaultInit(stored))

	setup := NewSetup(f.proxy, f.secrets)
	setup.SwarmProbe = fixedProbe(4)
	setup.ConsulProbe = fixedProbe(3)

	o := f.orchestrator()
	setup.Register(o)
	ok := o.Run(context.Background())

	var buf bytes.Buffer
	require.NoError(t, o.Report(&buf))
	require.True(t, ok, buf.String())

	assert.False(t, f.fleet.Host("m1").Ran("operator init"))
	keys, err := f.secrets.UnsealKeys()
	require.NoError(t, err)
	assert.Equal(t, stored.Keys, keys)
}

func TestRegisterUnseal(t *testing.T) {
	f := newFixture(t)
	v := newFakeVault(f)
	v.initialized = true
	require.NoError(t, f.secrets.SaveVaultInit(&cluster.VaultInit{Keys: []string{"a", "b", "c", "d", "e"}, RootToken: "t"}))

	o := f.orchestrator()
	RegisterUnseal(o, f.proxy, f.secrets)
	assert.True(t, o.Run(context.Background()))
	assert.False(t, f.fleet.Host("w1").Connected())
	for _, m := range []string{"m1", "m2", "m3"} {
		assert.Equal(t, 3, v.progress[m], m)
	}
}

func TestRegisterUnseal_NoKeys(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()
	RegisterUnseal(o, f.proxy, f.secrets)
	assert.False(t, o.Run(context.Background()))
	require.NotNil(t, o.Result().Failure)
	assert.ErrorContains(t, o.Result().Failure, "failed to load unseal keys")
}

func TestRegisterProxyDeploy(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()
	RegisterProxyDeploy(o, f.proxy, 30*time.Second)
	require.True(t, o.Run(context.Background()))

	for _, m := range []string{"m1", "m2", "m3"} {
		assert.True(t, f.fleet.Host(m).Ran("./proxy.sh"), m)
	}
	assert.False(t, f.fleet.Host("w1").Ran("proxy.sh"))
	assert.Equal(t, 2, f.clock.Sleeps())
}

func TestJSONOrEmpty(t *testing.T) {
	assert.Equal(t, "{}\n", string(jsonOrEmpty(nil)))
	raw := json.RawMessage(`{"a":1}`)
	assert.Equal(t, "{\"a\":1}\n", string(jsonOrEmpty(raw)))
	assert.Equal(t, `{"a":1}`, string(raw), "input is not modified")
}

func TestRegisterReboot(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()
	RegisterReboot(o, orchestrator.Workers, false)
	require.True(t, o.Run(context.Background()))
	assert.True(t, f.fleet.Host("w1").Ran("reboot"))
	assert.False(t, f.fleet.Host("m1").Ran("reboot"))
}

func TestRegisterExec(t *testing.T) {
	f := newFixture(t)
	f.fleet.Host("m2").On("uptime", remote.Result{ExitCode: 1, Stderr: []byte("boom")})
	f.fleet.Host("m1").On("uptime", remote.Result{Stdout: []byte("up 3 days")})

	out := NewOutputs()
	o := f.orchestrator()
	RegisterExec(o, orchestrator.Managers, "uptime", false, out)
	assert.False(t, o.Run(context.Background()))

	res, ok := out.Get("m1")
	require.True(t, ok)
	assert.Equal(t, "up 3 days", res.OutputText())
	res, ok = out.Get("m2")
	require.True(t, ok)
	assert.Equal(t, 1, res.ExitCode)
	_, ok = out.Get("w1")
	assert.False(t, ok)
}

func TestHealthChecks(t *testing.T) {
	f := newFixture(t)
	checks := HealthChecks(f.proxy, false)
	m1, _ := f.proxy.Node("m1")
	w1, _ := f.proxy.Node("w1")
	assert.Len(t, checks(m1), 5)
	assert.Len(t, checks(w1), 4)

	ssh, ok := checks(m1)[0].(*health.TCPChecker)
	require.True(t, ok)
	assert.Equal(t, "ssh", ssh.Name())
	assert.Equal(t, m1.Endpoint().Addr(), ssh.Address)
	assert.Equal(t, "m1:22", ssh.Address)

	direct := HealthChecks(f.proxy, true)
	assert.Len(t, direct(m1), 7)
	assert.Len(t, direct(w1), 5)
}
