// Package sink holds the optional secondary outputs: every event the
// broadcast endpoint sends can also be forwarded to an MQTT topic and/or a
// UDP destination. Sinks are fire-and-forget; none of them may stall the
// pipeline.
package sink

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTT republishes enriched events to a broker topic.
type MQTT struct {
	client mqtt.Client
	topic  string
}

// ConnectMQTT connects to the broker. A connect failure is reported so the
// caller can log and continue without the sink.
func ConnectMQTT(broker, clientID, topic string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return &MQTT{client: client, topic: topic}, nil
}

// Publish sends at QoS 0 without waiting on the delivery token;
// broker slowness never reaches the acquisition loop.
func (m *MQTT) Publish(payload []byte) {
	if m == nil {
		return
	}
	m.client.Publish(m.topic, 0, false, payload)
}

// Close disconnects without lingering on in-flight messages.
func (m *MQTT) Close() {
	if m == nil {
		return
	}
	m.client.Disconnect(0)
}
