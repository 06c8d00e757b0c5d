package am

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	bucket    = "alpaca"
	configKey = "am_config"
)

// TelemetryConfig enables the optional MQTT state feed.
type TelemetryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	TopicRoot string `yaml:"topic-root"`
}

// Config is everything the driver needs to reach and run the mount.
type Config struct {
	// Target is a serial device path, or a URL form ("lx200://host[:port]")
	// for the network transport.
	Target string `yaml:"target"`

	// UseDST enables the DST-specific commands some firmware revisions
	// accept.
	UseDST bool `yaml:"use-dst"`

	// GuideRate is the autoguide rate percentage pushed when the mount
	// reports none.
	GuideRate int `yaml:"guide-rate"`

	// Buzzer is the confirmation-beep volume pushed on connect: 0 off,
	// 1 low, 2 high.
	Buzzer int `yaml:"buzzer"`

	// Site coordinates pushed to an uninitialized mount. Latitude in
	// degrees north, longitude in degrees east of Greenwich.
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
}

var defaultConfig = Config{
	Target:    "/dev/ZWO_AM5",
	GuideRate: 50,
	Buzzer:    1,
	Telemetry: TelemetryConfig{
		Host:      "tcp://localhost:1883",
		TopicRoot: "observatory/mount",
	},
}

type store struct {
	db *bolt.DB
}

// NewStore creates a new store instance and sets default values if they are not already set.
func NewStore(db *bolt.DB) (*store, error) {
	st := store{db: db}

	if err := st.setDefaults(); err != nil {
		return nil, err
	}
	return &st, nil
}

// setDefaults sets the default configuration values if they are not already set in the database.
func (s *store) setDefaults() error {
	if _, err := s.GetConfig(); err != nil {
		log.Infof("Setting default mount config")
		return s.SetConfig(defaultConfig)
	}

	return nil
}

// SetConfig saves the mount configuration as a json string in the database.
func (s *store) SetConfig(cfg Config) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}

		value, _ := json.Marshal(cfg)
		return b.Put([]byte(configKey), value)
	})
}

// GetConfig retrieves the mount configuration from the database.
func (s *store) GetConfig() (Config, error) {
	var cfg Config

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}

		value := b.Get([]byte(configKey))
		if value == nil {
			return fmt.Errorf("key config not found")
		}

		return json.Unmarshal(value, &cfg)
	})

	return cfg, err
}
