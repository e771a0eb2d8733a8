package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models pactline.yml.
type Config struct {
	Pact struct {
		ID      string   `yaml:"id"`
		Parties []string `yaml:"parties"`
	} `yaml:"pact"`
	Gate struct {
		Owner string `yaml:"owner"`
	} `yaml:"gate"`
	Treasury struct {
		Withdrawers []string `yaml:"withdrawers"`
	} `yaml:"treasury"`
	Governance struct {
		VotingPeriod string `yaml:"voting_period"`
		Quorum       int64  `yaml:"quorum"`
	} `yaml:"governance"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with pact config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Pact.ID == "" {
		return fmt.Errorf("config.pact.id is required")
	}
	if len(c.Pact.Parties) != 2 {
		return fmt.Errorf("config.pact.parties must name exactly two participants")
	}
	if c.Pact.Parties[0] == "" || c.Pact.Parties[1] == "" {
		return fmt.Errorf("config.pact.parties contains empty participant id")
	}
	if c.Pact.Parties[0] == c.Pact.Parties[1] {
		return fmt.Errorf("config.pact.parties must be distinct")
	}
	if c.Gate.Owner == "" {
		return fmt.Errorf("config.gate.owner is required")
	}
	for _, w := range c.Treasury.Withdrawers {
		if w == "" {
			return fmt.Errorf("config.treasury.withdrawers contains empty participant id")
		}
	}
	if _, err := c.VotingPeriod(); err != nil {
		return err
	}
	if c.Governance.Quorum < 1 {
		return fmt.Errorf("config.governance.quorum must be at least 1")
	}
	return nil
}

// VotingPeriod parses the governance voting window duration.
func (c *Config) VotingPeriod() (time.Duration, error) {
	if c.Governance.VotingPeriod == "" {
		return 0, fmt.Errorf("config.governance.voting_period is required")
	}
	d, err := time.ParseDuration(c.Governance.VotingPeriod)
	if err != nil {
		return 0, fmt.Errorf("config.governance.voting_period: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config.governance.voting_period must be positive")
	}
	return d, nil
}

// IsParty reports whether id is one of the two gate parties.
func (c *Config) IsParty(id string) bool {
	for _, p := range c.Pact.Parties {
		if p == id {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "pactline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(pactID, partyA, partyB string) string {
	return fmt.Sprintf(defaultTemplate, pactID, partyA, partyB)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a pact.
func Default(pactID, partyA, partyB string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(pactID, partyA, partyB))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `pact:
  id: %s
  parties:
    - %s
    - %s

gate:
  owner: gate

treasury:
  withdrawers: []

governance:
  voting_period: 168h
  quorum: 2
`
