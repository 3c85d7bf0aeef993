// Package clusterconfig parses the YAML cluster topology file fpmasctl
// validates and a gRPC-deployed Environment dials from: the cluster size,
// the sync mode, and every rank's listen address.
package clusterconfig

import (
	"fmt"
	"os"

	"github.com/fpmas-go/fpmas/comm/grpctransport"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk cluster topology.
type Config struct {
	Size int               `yaml:"size"`
	Mode string            `yaml:"mode"` // "ghost", "global_ghost", or "hard"
	Addr map[int32]string  `yaml:"addr"`
	Log  string            `yaml:"log,omitempty"`
	Tags map[string]string `yaml:"tags,omitempty"`
}

// Load reads and validates a cluster config file.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("clusterconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("clusterconfig: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks internal consistency: size is positive, mode is one of
// the three recognized sync modes, and every rank in [0, size) has an
// address.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("clusterconfig: size must be positive, got %d", c.Size)
	}
	switch c.Mode {
	case "ghost", "global_ghost", "hard":
	default:
		return fmt.Errorf("clusterconfig: unrecognized mode %q (want ghost, global_ghost, or hard)", c.Mode)
	}
	for r := int32(0); r < int32(c.Size); r++ {
		if _, ok := c.Addr[r]; !ok {
			return fmt.Errorf("clusterconfig: missing address for rank %d", r)
		}
	}
	return nil
}

// Peers returns every address except rank's own, ready to pass to
// grpctransport.Dial.
func (c Config) Peers(rank int32) grpctransport.Peers {
	peers := make(grpctransport.Peers, len(c.Addr)-1)
	for r, addr := range c.Addr {
		if r == rank {
			continue
		}
		peers[r] = addr
	}
	return peers
}
