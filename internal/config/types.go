package config

// Loader loads project configuration from a file.
type Loader interface {
	Load(path string) (*Config, error)
}

// Initializer creates the skeleton configuration file for a project.
type Initializer interface {
	Init(path string) error
}

// Config is the project configuration stored in .postreview.toml at the
// checkout root.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Repository RepositoryConfig `toml:"repository"`
	Diff       DiffConfig       `toml:"diff"`

	// configFilePath tracks the file this config was loaded from.
	configFilePath string
}

// ServerConfig identifies the review server.
type ServerConfig struct {
	// URL is the base URL of the review server.
	URL string `toml:"url"`

	// DisableCache bypasses the on-disk cache of the server's root resource.
	DisableCache bool `toml:"disable_cache,omitempty"`
}

// RepositoryConfig optionally pins the registry repository, bypassing
// automatic matching.
type RepositoryConfig struct {
	// Name is the display name of the repository on the server.
	Name string `toml:"name,omitempty"`

	// URL overrides the repository URL detected from the checkout.
	URL string `toml:"url,omitempty"`

	// MirrorURL supplies an alternate canonical address for matching.
	MirrorURL string `toml:"mirror_url,omitempty"`
}

// DiffConfig carries default diff generation settings.
type DiffConfig struct {
	// Exclude lists file patterns removed from every generated diff.
	Exclude []string `toml:"exclude,omitempty"`

	// ShowCopiesAsAdds reports copied files as added files (Subversion).
	ShowCopiesAsAdds bool `toml:"show_copies_as_adds,omitempty"`
}

// Path returns the file this config was loaded from.
func (c *Config) Path() string {
	return c.configFilePath
}
