package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuemby/stevedore/pkg/remote"
	"github.com/cuemby/stevedore/pkg/retry"
	"github.com/cuemby/stevedore/pkg/types"
)

const (
	DefaultMaxParallel = 5
	DefaultStateDir    = ".stevedore"
)

// Runtime is the execution context for one CLI invocation. It is built once and
// passed to the cluster proxy and the orchestrator; nothing reads these values from
// package-level state.
type Runtime struct {
	// MaxParallel bounds concurrent node actions per step unless the step overrides
	// it. Zero or less means unbounded.
	MaxParallel int

	Online    retry.Policy // wait-until-online
	Reboot    retry.Policy // reconnect after reboot
	Quorum    retry.Policy // consul/swarm joins
	Readiness retry.Policy // service readiness (vault, docker)

	// RebootGrace is how long to wait for a rebooting host to drop its session
	RebootGrace time.Duration

	// SSH overrides applied on top of the cluster definition
	SSHUser     string
	SSHPassword string
	SSHKeyPath  string

	// SecretPassphrase protects unseal keys and tokens in the state store
	SecretPassphrase string

	StateDir string
}

// DefaultRuntime returns a Runtime with built-in defaults and no env lookups
func DefaultRuntime() *Runtime {
	return &Runtime{
		MaxParallel: DefaultMaxParallel,
		Online:      retry.Policy{Interval: 5 * time.Second, Timeout: 5 * time.Minute},
		Reboot:      retry.Policy{Interval: 5 * time.Second, Timeout: 10 * time.Minute},
		Quorum:      retry.Policy{Interval: 5 * time.Second, Timeout: 2 * time.Minute},
		Readiness:   retry.Policy{Interval: 2 * time.Second, Timeout: 2 * time.Minute},
		RebootGrace: 30 * time.Second,
		StateDir:    defaultStateDir(),
	}
}

// LoadRuntime loads an optional .env file and then reads STEVEDORE_* variables.
// Variables already set in the environment win over the file.
//
// Environment Variables:
//   - STEVEDORE_MAX_PARALLEL (default: 5)
//   - STEVEDORE_ONLINE_TIMEOUT / STEVEDORE_ONLINE_INTERVAL (default: 5m / 5s)
//   - STEVEDORE_REBOOT_TIMEOUT / STEVEDORE_REBOOT_INTERVAL (default: 10m / 5s)
//   - STEVEDORE_QUORUM_TIMEOUT / STEVEDORE_QUORUM_INTERVAL (default: 2m / 5s)
//   - STEVEDORE_READY_TIMEOUT / STEVEDORE_READY_INTERVAL (default: 2m / 2s)
//   - STEVEDORE_SSH_USER, STEVEDORE_SSH_PASSWORD, STEVEDORE_SSH_KEY
//   - STEVEDORE_SECRET_KEY
//   - STEVEDORE_STATE_DIR (default: ~/.stevedore)
func LoadRuntime(envFile string) (*Runtime, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	rt := DefaultRuntime()
	rt.MaxParallel = parseInt("STEVEDORE_MAX_PARALLEL", rt.MaxParallel)
	rt.Online = parsePolicy("STEVEDORE_ONLINE", rt.Online)
	rt.Reboot = parsePolicy("STEVEDORE_REBOOT", rt.Reboot)
	rt.Quorum = parsePolicy("STEVEDORE_QUORUM", rt.Quorum)
	rt.Readiness = parsePolicy("STEVEDORE_READY", rt.Readiness)
	rt.SSHUser = os.Getenv("STEVEDORE_SSH_USER")
	rt.SSHPassword = os.Getenv("STEVEDORE_SSH_PASSWORD")
	rt.SSHKeyPath = os.Getenv("STEVEDORE_SSH_KEY")
	rt.SecretPassphrase = os.Getenv("STEVEDORE_SECRET_KEY")
	if dir := os.Getenv("STEVEDORE_STATE_DIR"); dir != "" {
		rt.StateDir = dir
	}
	return rt, nil
}

// WithClock points every bounded wait at clock
func (rt *Runtime) WithClock(clock retry.Clock) *Runtime {
	rt.Online = rt.Online.WithClock(clock)
	rt.Reboot = rt.Reboot.WithClock(clock)
	rt.Quorum = rt.Quorum.WithClock(clock)
	rt.Readiness = rt.Readiness.WithClock(clock)
	return rt
}

// Endpoint resolves the remote endpoint for a node: per-node SSH settings over the
// cluster defaults, then runtime overrides on top.
func (rt *Runtime) Endpoint(cluster *types.Cluster, node *types.Node) remote.Endpoint {
	ssh := node.SSH.Merge(cluster.SSH)
	creds := remote.Credentials{
		User:           ssh.User,
		Password:       ssh.Password,
		PrivateKeyPath: ssh.PrivateKeyPath,
	}
	if rt.SSHUser != "" {
		creds.User = rt.SSHUser
	}
	if rt.SSHPassword != "" {
		creds.Password = rt.SSHPassword
	}
	if rt.SSHKeyPath != "" {
		creds.PrivateKeyPath = rt.SSHKeyPath
	}
	return remote.Endpoint{
		Host:        node.Address,
		Port:        ssh.Port,
		Credentials: creds,
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultStateDir
	}
	return filepath.Join(home, DefaultStateDir)
}

func parsePolicy(prefix string, def retry.Policy) retry.Policy {
	return retry.Policy{
		Interval: parseDuration(prefix+"_INTERVAL", def.Interval),
		Timeout:  parseDuration(prefix+"_TIMEOUT", def.Timeout),
		Clock:    def.Clock,
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}
