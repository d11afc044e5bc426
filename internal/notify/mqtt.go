package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Publisher is the part of mqtt.Client used here.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes notifications and audio commands for mosque displays and
// speakers subscribed under a topic prefix:
//
//	{prefix}/notify  Message as JSON
//	{prefix}/audio   {"action":"play","track":...} or {"action":"stop"}
type MQTT struct {
	pub    Publisher
	prefix string
	qos    byte
}

// NewMQTT returns a sink publishing under prefix with QoS 1.
func NewMQTT(pub Publisher, prefix string) *MQTT {
	if prefix == "" {
		prefix = "prayer"
	}
	return &MQTT{pub: pub, prefix: prefix, qos: 1}
}

// ConnectMQTT connects a client to broker.
func ConnectMQTT(broker, clientID string, log logrus.FieldLogger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.WithField("broker", broker).Info("Connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

type audioCommand struct {
	Action string `json:"action"`
	Track  string `json:"track,omitempty"`
}

func (m *MQTT) Notify(ctx context.Context, msg Message) error {
	return m.publish(ctx, m.prefix+"/notify", msg)
}

func (m *MQTT) Play(ctx context.Context, track string) error {
	return m.publish(ctx, m.prefix+"/audio", audioCommand{Action: "play", Track: track})
}

func (m *MQTT) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.publish(ctx, m.prefix+"/audio", audioCommand{Action: "stop"})
}

func (m *MQTT) publish(ctx context.Context, topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal mqtt payload: %w", err)
	}

	token := m.pub.Publish(topic, m.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// MultiPlayer plays on every player, returning the first error.
type MultiPlayer []Player

func (mp MultiPlayer) Play(ctx context.Context, track string) error {
	var first error
	for _, p := range mp {
		if err := p.Play(ctx, track); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (mp MultiPlayer) Stop() error {
	var first error
	for _, p := range mp {
		if err := p.Stop(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
