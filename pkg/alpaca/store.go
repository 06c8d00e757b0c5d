package alpaca

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	bucket          = "alpaca"
	serverConfigKey = "server_config"
)

// ServerConfig is the user-editable part of the server description.
type ServerConfig struct {
	Name     string
	Location string
}

var defaultServerConfig = ServerConfig{
	Name: "AM Mount Alpaca Server",
}

type Store struct {
	db *bolt.DB
}

func NewStore(db *bolt.DB) (*Store, error) {
	st := Store{db: db}

	if err := st.setDefaults(); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) setDefaults() error {
	if _, err := s.GetServerConfig(); err != nil {
		log.Infof("Setting default server config")
		return s.SetServerConfig(defaultServerConfig)
	}

	return nil
}

// SetServerConfig saves the server configuration as a json string in the database.
func (s *Store) SetServerConfig(cfg ServerConfig) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}

		value, _ := json.Marshal(cfg)
		return b.Put([]byte(serverConfigKey), value)
	})
}

// GetServerConfig retrieves the server configuration from the database.
func (s *Store) GetServerConfig() (ServerConfig, error) {
	var cfg ServerConfig

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}

		value := b.Get([]byte(serverConfigKey))
		if value == nil {
			return fmt.Errorf("key config not found")
		}

		return json.Unmarshal(value, &cfg)
	})

	return cfg, err
}
