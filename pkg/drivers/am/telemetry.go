package am

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Publisher mirrors poller events onto MQTT so observatory automation can
// follow the mount without polling the Alpaca API.
type Publisher struct {
	client    mqtt.Client
	topicRoot string
	logger    log.FieldLogger
}

func NewPublisher(cfg TelemetryConfig, logger log.FieldLogger) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.SetClientID("am-alpaca")
	opts.AddBroker(cfg.Host)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %v", token.Error())
	}

	return &Publisher{
		client:    client,
		topicRoot: cfg.TopicRoot,
		logger:    logger.WithField("component", "telemetry"),
	}, nil
}

// HandleEvent publishes one poller event under its kind subtopic. It runs
// on the poller goroutine, so publishes are fire-and-forget.
func (p *Publisher) HandleEvent(ev Event) {
	payload := struct {
		Time           string  `json:"time"`
		RightAscension float64 `json:"ra"`
		Declination    float64 `json:"dec"`
		Slewing        bool    `json:"slewing"`
		Tracking       bool    `json:"tracking"`
		AtHome         bool    `json:"at_home"`
		SideOfPier     string  `json:"side_of_pier,omitempty"`
		SiderealTime   float64 `json:"sidereal_time"`
		Message        string  `json:"message,omitempty"`
	}{
		Time:           time.Now().UTC().Format(time.RFC3339),
		RightAscension: ev.Status.RightAscension,
		Declination:    ev.Status.Declination,
		Slewing:        ev.Status.Slewing,
		Tracking:       ev.Status.Tracking,
		AtHome:         ev.Status.AtHome,
		SideOfPier:     ev.Status.SideOfPier,
		SiderealTime:   ev.Status.SiderealTime,
		Message:        ev.Message,
	}

	value, err := json.Marshal(payload)
	if err != nil {
		p.logger.Errorf("Failed to marshal telemetry: %v", err)
		return
	}

	topic := p.topicRoot + "/" + ev.Kind.String()
	p.client.Publish(topic, 0, false, value)
}

func (p *Publisher) Close() {
	p.client.Disconnect(100)
}
