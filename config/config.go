package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"idopool/crypto"

	"github.com/BurntSushi/toml"
)

// Config carries the deployment settings of the pool service. AdminAddress is
// the single identity permitted to create pools, edit sale parameters and
// withdraw proceeds; it is injected here instead of being compiled into the
// binary.
type Config struct {
	RPCAddress        string `toml:"RPCAddress"`
	MetricsAddress    string `toml:"MetricsAddress"`
	DataDir           string `toml:"DataDir"`
	NetworkName       string `toml:"NetworkName"`
	AdminAddress      string `toml:"AdminAddress"`
	AdminKeystorePath string `toml:"AdminKeystorePath"`
}

// Load loads the configuration from the given path, creating a default
// configuration (and a fresh admin keystore) when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "ido-local"
	}
	if strings.TrimSpace(cfg.AdminAddress) == "" {
		return nil, fmt.Errorf("config file %s is missing AdminAddress", path)
	}
	if _, err := cfg.Admin(); err != nil {
		return nil, fmt.Errorf("config file %s has invalid AdminAddress: %w", path, err)
	}

	return cfg, nil
}

// Admin decodes the configured admin identity into its raw 20-byte form.
func (c *Config) Admin() ([20]byte, error) {
	var admin [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(c.AdminAddress))
	if err != nil {
		return admin, err
	}
	copy(admin[:], decoded.Bytes())
	return admin, nil
}

// createDefault creates and saves a default configuration file. A new admin
// keypair is generated into a keystore next to the config so a fresh
// deployment is immediately operable.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:        ":8080",
		MetricsAddress:    ":9090",
		DataDir:           "./ido-data",
		NetworkName:       "ido-local",
		AdminAddress:      key.PubKey().Address().String(),
		AdminKeystorePath: keystorePath,
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	return filepath.Join(dir, "admin.keystore.json")
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
