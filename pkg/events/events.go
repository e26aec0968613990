package events

import (
	"encoding/json"

	mqttv2 "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/sirupsen/logrus"
)

const (
	topicConfigPrefix = "devicectl/config/"
	topicSyncPrefix   = "devicectl/sync/"
	topicSelection    = "devicectl/selection"
)

// Broker publishes configuration and sync events over an embedded mqtt
// server. Events are observability only, publish failures are logged and
// dropped.
type Broker struct {
	server *mqttv2.Server
}

// Start brings up the broker on addr. An empty addr returns a disabled
// broker whose publishes are no-ops.
func Start(addr string) (*Broker, error) {
	if addr == "" {
		return &Broker{}, nil
	}
	server := mqttv2.New(&mqttv2.Options{
		InlineClient: true,
	})

	// Allow all connections.
	_ = server.AddHook(new(auth.AllowHook), nil)

	tcp := listeners.NewTCP(listeners.Config{ID: "events", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, err
	}
	if err := server.Serve(); err != nil {
		return nil, err
	}
	logrus.Infof("event broker listening on %s", addr)
	return &Broker{server: server}, nil
}

func (b *Broker) Enabled() bool { return b != nil && b.server != nil }

func (b *Broker) Close() error {
	if !b.Enabled() {
		return nil
	}
	return b.server.Close()
}

// PublishConfig emits a device's new configuration state.
func (b *Broker) PublishConfig(deviceID string, config interface{}) {
	b.publish(topicConfigPrefix+deviceID, config)
}

// PublishRemoved emits a tombstone for a removed device config.
func (b *Broker) PublishRemoved(deviceID string) {
	b.publish(topicConfigPrefix+deviceID, map[string]bool{"removed": true})
}

// PublishSync emits the outcome of one device sync attempt.
func (b *Broker) PublishSync(deviceID string, result interface{}) {
	b.publish(topicSyncPrefix+deviceID, result)
}

// PublishSelection emits the new batch selection.
func (b *Broker) PublishSelection(ids []string) {
	b.publish(topicSelection, map[string]interface{}{"selection": ids})
}

func (b *Broker) publish(topic string, payload interface{}) {
	if !b.Enabled() {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{"topic": topic}).Errorf("encode event: %s", err)
		return
	}
	if err := b.server.Publish(topic, data, false, 0); err != nil {
		logrus.WithFields(logrus.Fields{"topic": topic}).Errorf("publish event: %s", err)
	}
}
