// Package config provides configuration loading for the lookup table server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// SourceTypeDirectory is the type for definitions stored in local directories
	SourceTypeDirectory = "directory"

	// SourceTypeGit is the type for definitions stored in Git repositories
	SourceTypeGit = "git"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Server holds the HTTP server settings
	Server ServerConfig `yaml:"server,omitempty"`

	// Sources lists the definition sources tables are declared in
	Sources []SourceConfig `yaml:"sources"`

	// Refresh tunes the background reload loop
	Refresh RefreshConfig `yaml:"refresh,omitempty"`

	// Database enables PostgreSQL persistence for declarative tables.
	// When nil, declarative tables are persisted to a local file.
	Database *DatabaseConfig `yaml:"database,omitempty"`

	// Storage holds file persistence settings, used when Database is nil
	Storage StorageConfig `yaml:"storage,omitempty"`
}

// ServerConfig defines HTTP server settings
type ServerConfig struct {
	// Address is the listen address, e.g. ":8080"
	Address string `yaml:"address,omitempty"`
}

// SourceConfig defines a single definition source. Exactly one of
// Directory or Git must be set.
type SourceConfig struct {
	// Name is the identifier for this source, used to namespace its files
	Name string `yaml:"name"`

	Directory *DirectorySourceConfig `yaml:"directory,omitempty"`
	Git       *GitSourceConfig       `yaml:"git,omitempty"`
}

// DirectorySourceConfig defines a local directory source
type DirectorySourceConfig struct {
	// Path is the directory containing definition files
	Path string `yaml:"path"`

	// Watch enables filesystem-event watching so edits apply before the
	// next periodic scan
	Watch bool `yaml:"watch,omitempty"`
}

// GitSourceConfig defines a Git repository source
type GitSourceConfig struct {
	// Repository is the Git repository URL (HTTP/HTTPS)
	Repository string `yaml:"repository"`

	// Branch is the Git branch to use (mutually exclusive with Tag and Commit)
	Branch string `yaml:"branch,omitempty"`

	// Tag is the Git tag to use (mutually exclusive with Branch and Commit)
	Tag string `yaml:"tag,omitempty"`

	// Commit is the Git commit SHA to use (mutually exclusive with Branch and Tag)
	Commit string `yaml:"commit,omitempty"`

	// Path is the directory within the repository containing definition files
	Path string `yaml:"path,omitempty"`

	// PollInterval is how often the remote is checked for new commits
	// (e.g., "5m"). Defaults to 5 minutes.
	PollInterval string `yaml:"pollInterval,omitempty"`

	// Auth carries credentials for private repositories
	Auth *GitAuthConfig `yaml:"auth,omitempty"`
}

// GitAuthConfig defines HTTP basic auth credentials for a Git remote
type GitAuthConfig struct {
	// Username is the Git username
	Username string `yaml:"username"`

	// PasswordFile is the path to a file containing the password or token.
	// This is the recommended approach for production deployments.
	PasswordFile string `yaml:"passwordFile,omitempty"`
}

// GetPassword returns the Git password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from LOOKUPD_GIT_PASSWORD environment variable
func (g *GitAuthConfig) GetPassword() (string, error) {
	if g.PasswordFile != "" {
		cleanPath := filepath.Clean(g.PasswordFile)
		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", g.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv("LOOKUPD_GIT_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no git password configured: set passwordFile or LOOKUPD_GIT_PASSWORD environment variable",
	)
}

// RefreshConfig tunes the background reload loop
type RefreshConfig struct {
	// CheckPeriod is how often the background pass runs (e.g., "5s")
	CheckPeriod string `yaml:"checkPeriod,omitempty"`

	// BackoffInitial is the delay before the first retry of a failed
	// table load (e.g., "5s")
	BackoffInitial string `yaml:"backoffInitial,omitempty"`

	// BackoffMax caps the retry delay (e.g., "10m")
	BackoffMax string `yaml:"backoffMax,omitempty"`

	// FailOnInitialLoad makes startup fail when any table cannot be
	// loaded, instead of serving with broken entries that retry in the
	// background
	FailOnInitialLoad bool `yaml:"failOnInitialLoad,omitempty"`
}

// StorageConfig holds file persistence settings for declarative tables
type StorageConfig struct {
	// DataDir is where declarative table definitions are persisted when
	// no database is configured. Defaults to the working directory.
	DataDir string `yaml:"dataDir,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from LOOKUPD_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	// Priority 1: Read from file if specified
	if d.PasswordFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		// Trim whitespace (including newlines) from file content
		password := strings.TrimSpace(string(data))
		return password, nil
	}

	// Priority 2: Check environment variable
	if envPassword := os.Getenv("LOOKUPD_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or LOOKUPD_DATABASE_PASSWORD environment variable",
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	// URL-escape the password to handle special characters
	escapedPassword := url.QueryEscape(password)

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		escapedPassword,
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	// As of now, this is required because there's no other options to load
	// configuration. Once we add more options, we can remove this check.
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	// Read the entire file into memory
	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML content
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Validate the config
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetAddress returns the listen address, using ":8080" if not specified
func (c *Config) GetAddress() string {
	if c.Server.Address == "" {
		return ":8080"
	}
	return c.Server.Address
}

// GetCheckPeriod returns the parsed background pass period, or zero when
// unset so callers fall back to the loader default.
func (c *Config) GetCheckPeriod() time.Duration {
	return parseOptionalDuration(c.Refresh.CheckPeriod)
}

// GetBackoff returns the parsed retry backoff bounds; a zero value means
// the loader default applies.
func (c *Config) GetBackoff() (initial, maxDelay time.Duration) {
	return parseOptionalDuration(c.Refresh.BackoffInitial), parseOptionalDuration(c.Refresh.BackoffMax)
}

// GetPollInterval returns the parsed poll interval for a Git source, or
// zero when unset.
func (g *GitSourceConfig) GetPollInterval() time.Duration {
	return parseOptionalDuration(g.PollInterval)
}

// parseOptionalDuration parses a duration already checked by validate().
func parseOptionalDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// Validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	// Validate each source configuration
	sourceNames := make(map[string]bool)
	for i, src := range c.Sources {
		// Validate source name
		if src.Name == "" {
			return fmt.Errorf("source[%d]: name is required", i)
		}
		if strings.Contains(src.Name, ":") {
			return fmt.Errorf("source[%d]: name must not contain ':'", i)
		}

		// Check for duplicate source names
		if sourceNames[src.Name] {
			return fmt.Errorf("source[%d]: duplicate source name '%s'", i, src.Name)
		}
		sourceNames[src.Name] = true

		// Validate source-specific configuration
		if err := validateSourceConfig(&src, i); err != nil {
			return err
		}
	}

	return validateRefreshConfig(&c.Refresh)
}

// validateSourceConfig validates a single source configuration
func validateSourceConfig(src *SourceConfig, index int) error {
	prefix := fmt.Sprintf("source[%d] (%s)", index, src.Name)

	// Validate exactly one source type is configured
	if err := validateSourceTypeCount(src, prefix); err != nil {
		return err
	}

	if src.Directory != nil {
		return validateDirectoryConfig(src.Directory, prefix)
	}
	return validateGitConfig(src.Git, prefix)
}

// validateSourceTypeCount ensures exactly one source type is configured
func validateSourceTypeCount(src *SourceConfig, prefix string) error {
	configCount := 0
	if src.Directory != nil {
		configCount++
	}
	if src.Git != nil {
		configCount++
	}

	if configCount == 0 {
		return fmt.Errorf("%s: one of directory or git configuration must be specified", prefix)
	}
	if configCount > 1 {
		return fmt.Errorf("%s: only one of directory or git configuration may be specified", prefix)
	}

	return nil
}

// validateDirectoryConfig validates directory-specific configuration
func validateDirectoryConfig(dir *DirectorySourceConfig, prefix string) error {
	if dir.Path == "" {
		return fmt.Errorf("%s: directory.path is required", prefix)
	}
	return nil
}

// validateGitConfig validates Git-specific configuration
func validateGitConfig(git *GitSourceConfig, prefix string) error {
	if git.Repository == "" {
		return fmt.Errorf("%s: git.repository is required", prefix)
	}

	// Branch, tag and commit are mutually exclusive
	refCount := 0
	if git.Branch != "" {
		refCount++
	}
	if git.Tag != "" {
		refCount++
	}
	if git.Commit != "" {
		refCount++
	}
	if refCount > 1 {
		return fmt.Errorf("%s: only one of git.branch, git.tag, or git.commit may be specified", prefix)
	}

	if git.PollInterval != "" {
		if _, err := time.ParseDuration(git.PollInterval); err != nil {
			return fmt.Errorf("%s: git.pollInterval must be a valid duration (e.g., '5m', '1h'): %w", prefix, err)
		}
	}
	return nil
}

// validateRefreshConfig validates the reload loop settings
func validateRefreshConfig(refresh *RefreshConfig) error {
	for field, value := range map[string]string{
		"refresh.checkPeriod":    refresh.CheckPeriod,
		"refresh.backoffInitial": refresh.BackoffInitial,
		"refresh.backoffMax":     refresh.BackoffMax,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s must be a valid duration (e.g., '5s', '10m'): %w", field, err)
		}
	}
	return nil
}

// GetType returns the inferred type of the source config based on which field is present
func (s *SourceConfig) GetType() string {
	if s.Directory != nil {
		return SourceTypeDirectory
	}
	if s.Git != nil {
		return SourceTypeGit
	}
	return ""
}
