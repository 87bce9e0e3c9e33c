// Package config loads config.toml from the data directory and resolves the
// data directory itself.
//
// Resolution order for the data directory:
//
//  1. --data-dir or ASCCRASH_DATA_DIR
//  2. ./asc-crashes, when it already holds a config.toml
//  3. ~/.asc-crashes
//
// Credentials in the file may be overridden by ASCCRASH_ISSUER_ID,
// ASCCRASH_KEY_ID, ASCCRASH_PRIVATE_KEY and ASCCRASH_BASE_URL, read through
// viper after a .env file in the data directory has been loaded.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	FileName      = "config.toml"
	DatabaseName  = "crashes.db"
	LocalDirName  = "asc-crashes"
	GlobalDirName = ".asc-crashes"
	DotEnvName    = ".env"

	EnvPrefix = "ASCCRASH"

	DefaultMaxPages = 50
	DefaultPageSize = 200
	DefaultInterval = 15 * time.Minute
)

var (
	// ErrNoConfig means the data directory has no config.toml.
	ErrNoConfig = errors.New("no config file")
	// ErrNoApps means config.toml lists no [[apps]].
	ErrNoApps = errors.New("no [[apps]] entries")
)

// Config is the parsed config.toml.
type Config struct {
	API  API   `toml:"api"`
	Sync Sync  `toml:"sync,omitempty"`
	Apps []App `toml:"apps"`

	// DataDir is the directory the file was loaded from.
	DataDir string `toml:"-"`
	// PrivateKeyPEM is the resolved key material.
	PrivateKeyPEM string `toml:"-"`
}

// API holds App Store Connect credentials.
type API struct {
	IssuerID   string   `toml:"issuer_id"`
	KeyID      string   `toml:"key_id"`
	PrivateKey string   `toml:"private_key"`
	BaseURL    string   `toml:"base_url,omitempty"`
	Timeout    Duration `toml:"timeout,omitempty"`
}

// Sync tunes pagination and watch mode.
type Sync struct {
	MaxPages int      `toml:"max_pages,omitempty"`
	PageSize int      `toml:"page_size,omitempty"`
	Interval Duration `toml:"interval,omitempty"`
}

// App is one monitored application.
type App struct {
	BundleID string `toml:"bundle_id"`
	Name     string `toml:"name,omitempty"`
}

// Duration decodes TOML strings such as "15m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Path returns the config file path inside dataDir.
func Path(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}

// DatabasePath returns the database path inside dataDir.
func DatabasePath(dataDir string) string {
	return filepath.Join(dataDir, DatabaseName)
}

// NewViper returns a viper instance reading ASCCRASH_* variables.
// Keys use dashes; "data-dir" maps to ASCCRASH_DATA_DIR.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("log-level", "info")
	v.SetDefault("format", "text")
	return v
}

// LoadDotEnv loads <dataDir>/.env into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(dataDir string) error {
	path := filepath.Join(dataDir, DotEnvName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads and validates <dataDir>/config.toml. Environment overrides are
// read from v, which may be nil.
func Load(dataDir string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if err := LoadDotEnv(dataDir); err != nil {
		return nil, err
	}

	path := Path(dataDir)
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s (run `asccrash init` first)", ErrNoConfig, path)
		}
		return nil, fmt.Errorf("invalid TOML in %s: %w", path, err)
	}
	cfg.DataDir = dataDir

	if s := v.GetString("issuer_id"); s != "" {
		cfg.API.IssuerID = s
	}
	if s := v.GetString("key_id"); s != "" {
		cfg.API.KeyID = s
	}
	if s := v.GetString("private_key"); s != "" {
		cfg.API.PrivateKey = s
	}
	if s := v.GetString("base_url"); s != "" {
		cfg.API.BaseURL = s
	}

	cfg.applyDefaults()
	if err := cfg.validate(path); err != nil {
		return nil, err
	}

	key, err := ResolveKey(cfg.API.PrivateKey, dataDir)
	if err != nil {
		return nil, err
	}
	cfg.PrivateKeyPEM = key

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sync.MaxPages <= 0 {
		c.Sync.MaxPages = DefaultMaxPages
	}
	if c.Sync.PageSize <= 0 {
		c.Sync.PageSize = DefaultPageSize
	}
	if c.Sync.Interval.Duration <= 0 {
		c.Sync.Interval.Duration = DefaultInterval
	}
}

func (c *Config) validate(path string) error {
	var missing []string
	if c.API.IssuerID == "" {
		missing = append(missing, "issuer_id")
	}
	if c.API.KeyID == "" {
		missing = append(missing, "key_id")
	}
	if c.API.PrivateKey == "" {
		missing = append(missing, "private_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing [api] %s in %s", strings.Join(missing, ", "), path)
	}

	if len(c.Apps) == 0 {
		return fmt.Errorf("%w in %s. Add at least one:\n\n[[apps]]\nbundle_id = \"com.example.myapp\"\n", ErrNoApps, path)
	}
	for i, app := range c.Apps {
		if strings.TrimSpace(app.BundleID) == "" {
			return fmt.Errorf("[[apps]] entry %d in %s has no bundle_id", i+1, path)
		}
	}
	if c.Sync.PageSize > 200 {
		return fmt.Errorf("[sync] page_size %d exceeds the API maximum of 200", c.Sync.PageSize)
	}
	return nil
}

// ResolveKey returns value when it is inline PEM, otherwise reads it as a
// path. "~" is expanded and relative paths are taken from relativeTo.
func ResolveKey(value, relativeTo string) (string, error) {
	if strings.HasPrefix(value, "-----BEGIN") {
		return value, nil
	}

	path, err := expandHome(value)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(relativeTo, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("private_key '%s' is not a PEM string and file not found at %s", value, path)
		}
		return "", fmt.Errorf("could not read key file %s: %w", path, err)
	}
	return string(data), nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// ResolveDataDir picks the data directory. explicit wins when set.
func ResolveDataDir(explicit string) (string, error) {
	if explicit != "" {
		return expandHome(explicit)
	}

	if _, err := os.Stat(Path(LocalDirName)); err == nil {
		if abs, err := filepath.Abs(LocalDirName); err == nil {
			return abs, nil
		}
		return LocalDirName, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, GlobalDirName), nil
}

// InitDataDir returns the directory `init` creates: ./asc-crashes, or
// ~/.asc-crashes when global.
func InitDataDir(global bool) (string, error) {
	if !global {
		return LocalDirName, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, GlobalDirName), nil
}

// AppFor returns the configured app with bundleID.
func (c *Config) AppFor(bundleID string) (App, bool) {
	for _, app := range c.Apps {
		if app.BundleID == bundleID {
			return app, true
		}
	}
	return App{}, false
}
