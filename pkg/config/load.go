package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/stevedore/pkg/types"
)

// Load reads a cluster definition, applies defaults and validates it
func Load(path string) (*types.Cluster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster definition: %w", err)
	}
	return Parse(data)
}

// Parse decodes a cluster definition from YAML
func Parse(data []byte) (*types.Cluster, error) {
	var cluster types.Cluster
	if err := yaml.Unmarshal(data, &cluster); err != nil {
		return nil, fmt.Errorf("failed to parse cluster definition: %w", err)
	}

	cluster.ApplyDefaults()
	if err := cluster.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cluster definition: %w", err)
	}
	return &cluster, nil
}
