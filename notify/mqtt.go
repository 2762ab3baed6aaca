package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"csi-motion-monitor/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// MQTTPublisher forwards detections to an MQTT broker for alerting.
type MQTTPublisher struct {
	client mqtt.Client
	cfg    MQTTConfig
}

func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return newMQTTPublisher(client, cfg), nil
}

func newMQTTPublisher(client mqtt.Client, cfg MQTTConfig) *MQTTPublisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "csi"
	}
	return &MQTTPublisher{client: client, cfg: cfg}
}

// Topic is <prefix>/<sensor>/<kind>.
func (p *MQTTPublisher) Topic(d models.Detection) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, d.SensorID, d.Kind)
}

// Publish implements analytics.Sink.
func (p *MQTTPublisher) Publish(ctx context.Context, d models.Detection) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}

	topic := p.Topic(d)
	token := p.client.Publish(topic, p.cfg.QoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
