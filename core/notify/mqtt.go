// Package notify publishes slot events to MQTT.
package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"smileslot/logger"
	"smileslot/model"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Connect opens an auto-reconnecting MQTT connection.
func Connect(cfg ClientConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT connection established", logger.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", logger.ErrorField(err))
	})
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// SlotEvent is published once per file that reached the store.
type SlotEvent struct {
	BatchID         string          `json:"batch_id"`
	FilePath        string          `json:"file_path"`
	DeviceID        string          `json:"device_id"`
	Date            string          `json:"date"`
	TimeBlock       string          `json:"time_block"`
	State           model.FileState `json:"state"`
	DurationSeconds int             `json:"duration_seconds"`
	TimelinePoints  int             `json:"timeline_points"`
	Error           *string         `json:"error"`
	PublishedAt     time.Time       `json:"published_at"`
}

// Publisher sends a SlotEvent for every persisted file.
type Publisher struct {
	client mqtt.Client
	topic  string // e.g. "smileslot/slots/{device_id}"
	now    func() time.Time
}

// NewPublisher creates a Publisher on an already connected client.
func NewPublisher(client mqtt.Client, topicPattern string) *Publisher {
	return &Publisher{client: client, topic: topicPattern, now: time.Now}
}

// formatTopic replaces {device_id} placeholder with actual device ID
func formatTopic(topicPattern, deviceID string) string {
	return strings.ReplaceAll(topicPattern, "{device_id}", deviceID)
}

// FileProcessed publishes the slot event. Files that never reached the store are skipped.
func (p *Publisher) FileProcessed(batchID string, r model.FileResult) {
	if !r.Persisted() {
		return
	}
	event := SlotEvent{
		BatchID:         batchID,
		FilePath:        r.FilePath,
		DeviceID:        r.DeviceID,
		Date:            r.Date,
		TimeBlock:       r.TimeBlock,
		State:           r.State,
		DurationSeconds: r.DurationSeconds,
		TimelinePoints:  r.TimelinePoints,
		Error:           r.Error,
		PublishedAt:     p.now().UTC(),
	}
	if err := p.publish(formatTopic(p.topic, r.DeviceID), event); err != nil {
		logger.Warn("failed to publish slot event",
			logger.String("path", r.FilePath),
			logger.ErrorField(err))
	}
}

// BatchFinished implements pipeline.Observer.
func (p *Publisher) BatchFinished(*model.BatchResult) {}

func (p *Publisher) publish(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	logger.Debug("published slot event", logger.String("topic", topic))
	return nil
}

// Close disconnects the underlying client.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
