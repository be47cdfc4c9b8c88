package ingest

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/candela-robotics/teleop.live/internal/joints"
	"github.com/candela-robotics/teleop.live/internal/monitoring"
)

// MQTTJointSourceConfig configures the MQTT joint-state subscriber.
type MQTTJointSourceConfig struct {
	Broker   string // e.g. "tcp://localhost:1883"
	Topic    string // e.g. "arm/joint_state"
	ClientID string
	Series   *joints.Series
	OnSample func(joints.Sample) // optional fan-out (websocket hub, recorder)
}

// MQTTJointSource subscribes to the arm's joint-state topic and records
// every message into the joint series. Messages are fire-and-forget: a
// payload that fails to parse is logged and dropped, the next one
// supersedes it.
type MQTTJointSource struct {
	config MQTTJointSourceConfig
	client mqtt.Client
}

// NewMQTTJointSource creates a new subscriber.
func NewMQTTJointSource(config MQTTJointSourceConfig) *MQTTJointSource {
	if config.ClientID == "" {
		config.ClientID = "teleop-joint-subscriber"
	}
	return &MQTTJointSource{config: config}
}

// Start connects, subscribes and blocks until the context is cancelled.
func (s *MQTTJointSource) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.config.Broker).
		SetClientID(s.config.ClientID).
		SetAutoReconnect(true)

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect to %s failed: %w", s.config.Broker, token.Error())
	}
	monitoring.Logf("connected to MQTT broker at %s", s.config.Broker)

	token := s.client.Subscribe(s.config.Topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		s.client.Disconnect(250)
		return fmt.Errorf("mqtt subscribe to %q failed: %w", s.config.Topic, token.Error())
	}
	monitoring.Logf("subscribed to MQTT topic %s", s.config.Topic)

	<-ctx.Done()
	s.client.Disconnect(250)
	monitoring.Logf("MQTT joint source shut down")
	return ctx.Err()
}

func (s *MQTTJointSource) handleMessage(payload []byte) {
	if err := s.config.Series.RecordPayload(payload); err != nil {
		monitoring.Logf("dropping joint-state message: %v", err)
		return
	}
	if s.config.OnSample != nil {
		if sample, ok := s.config.Series.Latest(); ok {
			s.config.OnSample(sample)
		}
	}
}
