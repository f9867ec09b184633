package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MaxFeeBps caps the platform fee at 10%.
const MaxFeeBps = 1000

// Config models escrowline.yml.
type Config struct {
	Ledger struct {
		Owner      string `yaml:"owner"`
		Treasury   string `yaml:"treasury"`
		FeeBps     int64  `yaml:"fee_bps"`
		KarmaAward int64  `yaml:"karma_award"`
	} `yaml:"ledger"`
	Tokens struct {
		Catalog map[string]struct {
			Symbol      string `yaml:"symbol"`
			Description string `yaml:"description"`
		} `yaml:"catalog"`
	} `yaml:"tokens"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with el init", path)
		}
		return nil, err
	}
	return FromYAML(data)
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

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Ledger.Owner == "" {
		return fmt.Errorf("config.ledger.owner is required")
	}
	if c.Ledger.Treasury == "" {
		return fmt.Errorf("config.ledger.treasury is required")
	}
	if c.Ledger.FeeBps < 0 || c.Ledger.FeeBps > MaxFeeBps {
		return fmt.Errorf("config.ledger.fee_bps must be between 0 and %d", MaxFeeBps)
	}
	if c.Ledger.KarmaAward <= 0 {
		return fmt.Errorf("config.ledger.karma_award must be positive")
	}
	for id, tok := range c.Tokens.Catalog {
		if id == "" {
			return fmt.Errorf("config.tokens.catalog contains empty token id")
		}
		if tok.Symbol == "" {
			return fmt.Errorf("token %s has empty symbol", id)
		}
	}
	return nil
}

// KnownToken reports whether token is native currency or listed in the
// catalog. An empty catalog accepts any denomination.
func (c *Config) KnownToken(token string) bool {
	if token == "" {
		return true
	}
	if len(c.Tokens.Catalog) == 0 {
		return true
	}
	_, ok := c.Tokens.Catalog[token]
	return ok
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "escrowline.yml")
}

// GenerateDefault returns default config YAML for the given owner and
// treasury addresses.
func GenerateDefault(owner, treasury string) string {
	return fmt.Sprintf(defaultTemplate, owner, treasury)
}

// Default returns the default Config struct.
func Default(owner, treasury string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(owner, treasury)), &cfg)
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

const defaultTemplate = `ledger:
  owner: %s
  treasury: %s
  fee_bps: 200
  karma_award: 100

tokens:
  catalog: {}
`
