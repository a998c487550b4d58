package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vmforge/pvmclient/pkg/session"
)

// DefaultConfigFile is the default name of the config file
const DefaultConfigFile = "config.toml"

// Config holds the endpoint connection parameters for pvmctl.
type Config struct {
	// Host is the HMC or NovaLink hostname or address
	Host string `toml:"host"`
	// Username for password authentication; leave password empty for
	// file-based local authentication
	Username string `toml:"username"`
	Password string `toml:"password"`
	// Protocol is http or https; defaults by authentication mode
	Protocol string `toml:"protocol"`
	Port     int    `toml:"port"`
	// Timeout for each request, e.g. "60s"
	Timeout string `toml:"timeout"`
	// CertPath and CertExt locate the endpoint trust certificate
	CertPath   string `toml:"cert_path"`
	CertExt    string `toml:"cert_ext"`
	SkipVerify bool   `toml:"skip_verify"`
	// AuditMemento tags requests in the server audit log
	AuditMemento string `toml:"audit_memento"`
}

var config *Config

// GetDefaultConfigPath returns the default path for the config file
// (e.g. ~/.config/pvmctl/config.toml on Linux)
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "pvmctl", DefaultConfigFile), nil
}

// LoadConfig loads the configuration from the specified file
func LoadConfig(file string) error {
	var c Config
	if _, err := toml.DecodeFile(file, &c); err != nil {
		return fmt.Errorf("unable to read config file: %w", err)
	}
	if c.Host == "" {
		return errors.New("host is required in the config file")
	}
	config = &c
	return nil
}

// GetConfig returns the loaded configuration, or nil
func GetConfig() *Config {
	return config
}

// SessionConfig translates the file config into session parameters.
func (c *Config) SessionConfig() (session.Config, error) {
	var timeout time.Duration
	if c.Timeout != "" {
		var err error
		timeout, err = time.ParseDuration(c.Timeout)
		if err != nil {
			return session.Config{}, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
		}
	}
	return session.Config{
		Host:         c.Host,
		Username:     c.Username,
		Password:     c.Password,
		Protocol:     c.Protocol,
		Port:         c.Port,
		Timeout:      timeout,
		CertPath:     c.CertPath,
		CertExt:      c.CertExt,
		SkipVerify:   c.SkipVerify,
		AuditMemento: c.AuditMemento,
	}, nil
}
