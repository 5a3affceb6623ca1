package remote

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
)

// Credentials authenticate against a remote host
type Credentials struct {
	User           string
	Password       string
	PrivateKey     []byte
	PrivateKeyPath string
}

// IsRoot reports whether commands already run as root
func (c Credentials) IsRoot() bool {
	return c.User == "root"
}

// LoadKey reads PrivateKeyPath into PrivateKey when no key is set
func (c *Credentials) LoadKey() error {
	if len(c.PrivateKey) > 0 || c.PrivateKeyPath == "" {
		return nil
	}
	path := c.PrivateKeyPath
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	key, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read private key %s: %w", path, err)
	}
	c.PrivateKey = key
	return nil
}

// Endpoint identifies one remote host
type Endpoint struct {
	Host        string
	Port        int
	Credentials Credentials
	DialTimeout time.Duration
}

// Addr returns host:port, defaulting the port to 22
func (e Endpoint) Addr() string {
	port := e.Port
	if port == 0 {
		port = defaultPort
	}
	if _, _, err := net.SplitHostPort(e.Host); err == nil {
		return e.Host
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}
