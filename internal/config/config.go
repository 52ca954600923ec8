// Package config loads and validates the project configuration file
// (.postreview.toml) found at the checkout root.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/reviewtools/postreview/internal/perms"
)

// DefaultLoader is the production Loader and Initializer.
type DefaultLoader struct{}

var (
	_ Loader      = (*DefaultLoader)(nil)
	_ Initializer = (*DefaultLoader)(nil)
)

// Init creates the base skeleton configuration file for the project.
func (d *DefaultLoader) Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	content := `[server]
url = ""
`

	if err := os.WriteFile(path, []byte(content), perms.RegularFile); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// Load reads and validates the configuration file at path. A missing file
// is not an error: commands that only need the local checkout work without
// one, so Load returns an empty config in that case.
func (d *DefaultLoader) Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: path cannot be empty", ErrConfigLoadFailed)
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("%w: failed to stat config file (%s): %w", ErrConfigLoadFailed, path, err)
	}

	var cfg *Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to decode config from file (%s): %w", ErrConfigLoadFailed, path, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: config file is empty (%s)", ErrConfigLoadFailed, path)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: failed to validate config (%s): %w", ErrConfigLoadFailed, path, err)
	}

	cfg.configFilePath = path

	return cfg, nil
}

func (c *Config) validate() error {
	if u := strings.TrimSpace(c.Server.URL); u != "" {
		parsed, err := url.Parse(u)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return NewErrInvalidValue("server.url", c.Server.URL)
		}
	}

	for _, pattern := range c.Diff.Exclude {
		if strings.TrimSpace(pattern) == "" {
			return NewErrInvalidValue("diff.exclude", pattern)
		}
	}

	return nil
}
