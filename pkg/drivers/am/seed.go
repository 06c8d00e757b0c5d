package am

import (
	"fmt"
	"os"

	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"
)

// SeedConfig overwrites the stored mount configuration from a YAML file.
// Missing keys keep their defaults.
func SeedConfig(db *bolt.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %v", err)
	}

	cfg := defaultConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %v", err)
	}

	st, err := NewStore(db)
	if err != nil {
		return err
	}
	return st.SetConfig(cfg)
}

// SetTarget rewrites only the stored connection target.
func SetTarget(db *bolt.DB, target string) error {
	st, err := NewStore(db)
	if err != nil {
		return err
	}

	cfg, err := st.GetConfig()
	if err != nil {
		return err
	}
	cfg.Target = target
	return st.SetConfig(cfg)
}
