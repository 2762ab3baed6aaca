package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"csi-motion-monitor/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient captures publishes. Only Publish is used by the publisher.
type fakeClient struct {
	mqtt.Client
	topic   string
	qos     byte
	payload []byte
}

type doneToken struct {
	mqtt.Token
	done chan struct{}
}

func (t doneToken) Done() <-chan struct{} { return t.done }
func (t doneToken) Error() error          { return nil }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic = topic
	c.qos = qos
	c.payload = payload.([]byte)
	done := make(chan struct{})
	close(done)
	return doneToken{done: done}
}

func TestMQTTPublisher_Topic(t *testing.T) {
	p := newMQTTPublisher(&fakeClient{}, MQTTConfig{})

	assert.Equal(t, "csi/lab/motion", p.Topic(models.Detection{Kind: models.KindMotion, SensorID: "lab"}))

	p = newMQTTPublisher(&fakeClient{}, MQTTConfig{TopicPrefix: "home/csi"})
	assert.Equal(t, "home/csi/bedroom/posture", p.Topic(models.Detection{Kind: models.KindPosture, SensorID: "bedroom"}))
}

func TestMQTTPublisher_Publish(t *testing.T) {
	client := &fakeClient{}
	p := newMQTTPublisher(client, MQTTConfig{QoS: 1})

	d := models.Detection{
		Kind:      models.KindPosture,
		SensorID:  "lab",
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Posture:   &models.PostureResult{Label: models.PostureStanding},
	}
	require.NoError(t, p.Publish(context.Background(), d))

	assert.Equal(t, "csi/lab/posture", client.topic)
	assert.Equal(t, byte(1), client.qos)

	var got models.Detection
	require.NoError(t, json.Unmarshal(client.payload, &got))
	assert.Equal(t, models.PostureStanding, got.Posture.Label)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(client.payload, &raw))
	assert.Equal(t, "standing", raw["posture"].(map[string]interface{})["label"])
}
