// Package config loads the two inputs of every stevedore command: the cluster
// definition (a YAML file decoded into types.Cluster) and the Runtime, the explicit
// execution context holding parallelism, bounded-wait policies, SSH overrides and
// the secret passphrase. Runtime values come from STEVEDORE_* environment variables,
// optionally seeded from a .env file.
package config
