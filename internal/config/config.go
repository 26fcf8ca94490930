// Package config loads node configuration from YAML, the format
// orbas1-Synnergy's own config loading standardizes on. Config loading
// is an external collaborator to the consensus core (spec §1), but its
// types are depended on by cmd/duskledgerd to assemble the core's
// components.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"duskledger/internal/errs"
)

// Peer is one UNL (or merely known) peer entry.
type Peer struct {
	ID        string `yaml:"id"`
	Address   string `yaml:"address"`
	UNLMember bool   `yaml:"unl_member"`
}

// Consensus mirrors ConsensusParams' quorum percentage and round timing
// constants, grounded on
// original_source/src/Consensus/ConsensusParams.hpp. The UNL member list
// is not part of it: it comes from the Peers entries marked unl_member.
type Consensus struct {
	QuorumPercent   float64       `yaml:"quorum_percent"`
	IdleResetAfter  time.Duration `yaml:"idle_reset_after"`
	DisputeMaxAge   time.Duration `yaml:"dispute_max_age"`
	MinRoundTime    time.Duration `yaml:"min_round_time"`
}

// Config is the node's full startup configuration.
type Config struct {
	ListenAddress   string    `yaml:"listen_address"`
	DataDir         string    `yaml:"data_dir"`
	SignatureScheme string    `yaml:"signature_scheme"`
	GenesisPath     string    `yaml:"genesis_path"`
	Peers           []Peer    `yaml:"peers"`
	Consensus       Consensus `yaml:"consensus"`
}

// Default mirrors the values spec §6 calls out explicitly (port 8330,
// 80% quorum, the 20 s dispute timeout and 3 s idle reset from §4.F/§5).
func Default() Config {
	return Config{
		ListenAddress:   ":8330",
		DataDir:         "./data",
		SignatureScheme: "ed25519",
		Consensus: Consensus{
			QuorumPercent:  0.8,
			IdleResetAfter: 3 * time.Second,
			DisputeMaxAge:  20 * time.Second,
			MinRoundTime:   5 * time.Second,
		},
	}
}

// Load reads and parses path, starting from Default() so an omitted
// field keeps its default rather than zeroing out.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.Init(fmt.Errorf("config: read %s: %w", path, err))
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errs.Init(fmt.Errorf("config: parse %s: %w", path, err))
	}
	return cfg, nil
}

// UNLSize counts peers flagged as UNL members.
func (c Config) UNLSize() int {
	n := 0
	for _, p := range c.Peers {
		if p.UNLMember {
			n++
		}
	}
	return n
}
