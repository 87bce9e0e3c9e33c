package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Template is written by `asccrash init`.
const Template = `# asccrash configuration
#
# API credentials from App Store Connect:
#   https://appstoreconnect.apple.com/access/integrations/api

[api]
issuer_id = "YOUR_ISSUER_ID"
key_id    = "YOUR_KEY_ID"
private_key = "path/to/AuthKey_XXXXXXXX.p8"
# timeout = "30s"

# [sync]
# max_pages = 50      # pages walked per app and kind before giving up
# page_size = 200
# interval = "15m"    # asccrash watch

# Add one or more apps to monitor for TestFlight crashes and feedback.
# Use ` + "`asccrash apps`" + ` to verify your key works.

[[apps]]
bundle_id = "com.example.myapp"
# name = "My App"  # optional friendly label
`

// InitResult describes what Init created.
type InitResult struct {
	DataDir       string
	ConfigPath    string
	ConfigWritten bool
}

// Init creates dataDir with its logs/ and screenshots/ subdirectories and
// writes contents to config.toml unless one already exists.
func Init(dataDir string, contents []byte) (*InitResult, error) {
	for _, dir := range []string{dataDir, filepath.Join(dataDir, "logs"), filepath.Join(dataDir, "screenshots")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	res := &InitResult{DataDir: dataDir, ConfigPath: Path(dataDir)}
	if _, err := os.Stat(res.ConfigPath); err == nil {
		return res, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat %s: %w", res.ConfigPath, err)
	}

	if contents == nil {
		contents = []byte(Template)
	}
	if err := os.WriteFile(res.ConfigPath, contents, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", res.ConfigPath, err)
	}
	res.ConfigWritten = true
	return res, nil
}

// Encode renders cfg as config.toml contents.
func Encode(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# asccrash configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}
