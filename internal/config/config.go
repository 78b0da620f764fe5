// Package config provides configuration loading for spendcat.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/spendcat/internal/classifier"
	"github.com/fyrsmithlabs/spendcat/internal/embeddings"
	"github.com/fyrsmithlabs/spendcat/internal/logging"
	"github.com/fyrsmithlabs/spendcat/internal/oracle"
)

// DatabaseConfig locates the classifier SQLite database.
type DatabaseConfig struct {
	// Path is the database file. Default: ~/.config/spendcat/spendcat.db
	Path string `koanf:"path"`
}

// RulesConfig locates the optional YAML rules file.
type RulesConfig struct {
	// Path is the rules file. Empty means the built-in rule table.
	Path string `koanf:"path"`

	// Watch enables hot reload of the rules file.
	Watch bool `koanf:"watch"`
}

// Config is the root configuration.
type Config struct {
	Logging    logging.Config        `koanf:"logging"`
	Database   DatabaseConfig        `koanf:"database"`
	Embeddings embeddings.Config     `koanf:"embeddings"`
	Oracle     oracle.Config         `koanf:"oracle"`
	Rules      RulesConfig           `koanf:"rules"`
	Thresholds classifier.Thresholds `koanf:"thresholds"`

	// Categories overrides the built-in category set offered to the
	// oracle. Empty means the default set.
	Categories []string `koanf:"categories"`
}

// ApplyDefaults fills unset fields with defaults.
func (c *Config) ApplyDefaults() error {
	c.Logging.ApplyDefaults()
	c.Oracle.ApplyDefaults()

	if c.Database.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory: %w", err)
		}
		c.Database.Path = filepath.Join(home, ".config", "spendcat", "spendcat.db")
	}
	if c.Embeddings.BaseURL == "" || c.Embeddings.Model == "" {
		env := embeddings.ConfigFromEnv()
		if c.Embeddings.BaseURL == "" {
			c.Embeddings.BaseURL = env.BaseURL
		}
		if c.Embeddings.Model == "" {
			c.Embeddings.Model = env.Model
		}
		if c.Embeddings.APIKey == "" {
			c.Embeddings.APIKey = env.APIKey
		}
	}
	if c.Thresholds == (classifier.Thresholds{}) {
		c.Thresholds = classifier.DefaultThresholds()
	}
	return nil
}

// Validate validates the full configuration.
func (c Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Embeddings.Validate(); err != nil {
		return fmt.Errorf("embeddings: %w", err)
	}
	if err := c.Oracle.Validate(); err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	t := c.Thresholds
	for _, v := range []float64{t.AutoApply, t.Group, t.Propagate, t.MinPropagationConfidence} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("thresholds must be in (0, 1]")
		}
	}
	return nil
}
