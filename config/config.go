// Package config loads the node's on-disk configuration. Grounded on
// the teacher's pkg/config package (yaml-tagged ProtocolConfiguration/
// OracleConfiguration structs); this package additionally supplies the
// loader the teacher's tags imply but never wires itself, using
// gopkg.in/yaml.v2 the way the rest of the neo-go CLI tooling does.
package config

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// NodeConfig is the root configuration document.
type NodeConfig struct {
	Protocol ProtocolConfig `yaml:"Protocol"`
	Store    StoreConfig    `yaml:"Store"`
	LogPath  string         `yaml:"LogPath"`
	LogLevel string         `yaml:"LogLevel"`
}

// ProtocolConfig mirrors the teacher's ProtocolConfiguration, renamed
// to this spec's networking concerns: magic value, seed peers, and
// the knobs the filter chain and peer manager consult.
type ProtocolConfig struct {
	Magic               uint32        `yaml:"Magic"`
	ProtocolVersion     int32         `yaml:"ProtocolVersion"`
	UserAgent           string        `yaml:"UserAgent"`
	Services            uint64        `yaml:"Services"`
	SeedList            []string      `yaml:"SeedList"`
	MaxOutboundPeers    int           `yaml:"MaxOutboundPeers"`
	MaxInboundPeers     int           `yaml:"MaxInboundPeers"`
	ListenAddress       string        `yaml:"ListenAddress"`
	PingInterval        time.Duration `yaml:"PingInterval"`
	VerifierWorkers     int           `yaml:"VerifierWorkers"`
	RelayAlertPublicKey string        `yaml:"RelayAlertPublicKey"`
}

// StoreConfig selects and configures the chain-store backend, mirroring
// the teacher's DBConfiguration (Type plus per-backend options struct).
type StoreConfig struct {
	Type              string `yaml:"Type"`
	DataDirectoryPath string `yaml:"DataDirectoryPath"`
}

// Load reads and unmarshals a YAML document at path into a NodeConfig.
func Load(path string) (*NodeConfig, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config file")
	}
	return cfg, nil
}

// Default returns the configuration a freshly initialized node runs
// with absent any config file overrides (testnet magic).
func Default() *NodeConfig {
	return &NodeConfig{
		Protocol: ProtocolConfig{
			Magic:            0x0709110b,
			ProtocolVersion:  70002,
			UserAgent:        "/libcoin:0.1.0/",
			MaxOutboundPeers: 8,
			MaxInboundPeers:  117,
			ListenAddress:    "0.0.0.0:8333",
			PingInterval:     2 * time.Minute,
			VerifierWorkers:  0,
		},
		Store: StoreConfig{
			Type:              "memory",
			DataDirectoryPath: "./chaindata",
		},
		LogLevel: "info",
	}
}
