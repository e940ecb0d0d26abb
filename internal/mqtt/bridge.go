// Package mqtt bridges the coordinator to an MQTT broker: retained per-device
// state topics, Home Assistant discovery and inbound device commands.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zigbeed/internal/coordinator"
	"zigbeed/internal/device"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// Bridge connects the coordinator event bus to MQTT.
type Bridge struct {
	client pahomqtt.Client
	coord  *coordinator.Coordinator
	prefix string
	logger *slog.Logger
	unsub  func()
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(coord *coordinator.Coordinator, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := &Bridge{
		coord:  coord,
		prefix: cfg.TopicPrefix,
		logger: logger.With("component", "mqtt"),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("zigbeed").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publish(b.prefix+"/bridge/state", []byte("online"), true)
			b.subscribeCommands()
			// the registry is owned by the coordinator loop, so the
			// republish after a (re)connect runs there
			b.coord.Post(b.publishAllDiscovery)
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "error", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	b.client = client
	return b, nil
}

// Start subscribes to coordinator events.
func (b *Bridge) Start() {
	b.unsub = b.coord.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes the offline state and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publish(b.prefix+"/bridge/state", []byte("offline"), true)
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// handleEvent runs on the coordinator event loop, so reading device state
// here is safe; publishing itself is asynchronous.
func (b *Bridge) handleEvent(event coordinator.Event) {
	switch event.Type {
	case coordinator.EventEndpointUpdated:
		if endpoint, ok := event.Data.(*device.Endpoint); ok {
			b.publishDeviceState(endpoint.Device())
		}

	case coordinator.EventInterviewFinished:
		if d, ok := event.Data.(*device.Device); ok {
			b.publishDeviceDiscovery(d)
			b.subscribeDeviceCommands(d.Name)
			b.publishEvent("interviewFinished", d.Name)
		}

	case coordinator.EventDeviceJoined:
		if d, ok := event.Data.(*device.Device); ok {
			b.publishEvent("deviceJoined", d.Name)
		}

	case coordinator.EventDeviceLeft:
		if d, ok := event.Data.(*device.Device); ok {
			for _, msg := range buildRemoveDiscovery(d) {
				b.publish(msg.Topic, msg.Payload, true)
			}
			b.publish(b.prefix+"/fd/"+deviceTopicName(d.Name), nil, true)
			b.publishEvent("deviceLeft", d.Name)
		}

	case coordinator.EventInterviewError, coordinator.EventInterviewTimeout:
		if name, ok := event.Data.(string); ok {
			b.publishEvent(event.Type, name)
		}

	case coordinator.EventPermitJoin:
		if enabled, ok := event.Data.(bool); ok {
			state := "false"
			if enabled {
				state = "true"
			}
			b.publish(b.prefix+"/bridge/permit_join", []byte(state), true)
		}
	}
}

func (b *Bridge) publishEvent(eventType, deviceName string) {
	payload := mustJSON(map[string]string{"event": eventType, "device": deviceName})
	b.publish(b.prefix+"/bridge/event", payload, false)
}

// publishDeviceState publishes the merged property values of every endpoint
// as one retained JSON document.
func (b *Bridge) publishDeviceState(d *device.Device) {
	state := deviceState(d)
	b.publish(b.prefix+"/fd/"+deviceTopicName(d.Name), mustJSON(state), true)
}

// deviceState flattens the device's property values. Properties without a
// value yet are omitted.
func deviceState(d *device.Device) map[string]any {
	state := map[string]any{"linkQuality": d.LinkQuality}
	if !d.LastSeen.IsZero() {
		state["lastSeen"] = d.LastSeen.Format(time.RFC3339)
	}

	for _, endpoint := range d.Endpoints {
		for _, p := range endpoint.Properties {
			value := p.Value()
			if value == nil {
				continue
			}
			if values, ok := value.(map[string]any); ok {
				for name, item := range values {
					state[name] = item
				}
				continue
			}
			state[p.Name()] = value
		}
	}

	return state
}

// publishAllDiscovery runs on the coordinator event loop.
func (b *Bridge) publishAllDiscovery() {
	for _, d := range b.coord.Devices().All() {
		if !d.InterviewFinished || d.LogicalType == device.Coordinator {
			continue
		}
		b.publishDeviceDiscovery(d)
		b.subscribeDeviceCommands(d.Name)
	}
}

func (b *Bridge) publishDeviceDiscovery(d *device.Device) {
	messages := buildDiscovery(d, b.prefix)
	for _, msg := range messages {
		b.publish(msg.Topic, msg.Payload, true)
	}
	if len(messages) > 0 {
		b.logger.Info("discovery published", "device", d.Name)
	}
}

// subscribeCommands subscribes the bridge request topic, which exposes the
// coordinator management operations over MQTT.
func (b *Bridge) subscribeCommands() {
	topic := b.prefix + "/bridge/request"
	b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleBridgeRequest(msg.Payload())
	})
}

type bridgeRequest struct {
	Action        string `json:"action"`
	Device        string `json:"device"`
	Name          string `json:"name"`
	Enabled       bool   `json:"enabled"`
	Force         bool   `json:"force"`
	Reportings    bool   `json:"reportings"`
	Unbind        bool   `json:"unbind"`
	Remove        bool   `json:"remove"`
	Reset         bool   `json:"reset"`
	EndpointID    uint8  `json:"endpointId"`
	DstEndpointID uint8  `json:"dstEndpointId"`
	Channel       uint8  `json:"channel"`
	ClusterID     uint16 `json:"clusterId"`
	GroupID       uint16 `json:"groupId"`
	MinInterval   uint16 `json:"minInterval"`
	MaxInterval   uint16 `json:"maxInterval"`
	ValueChange   uint16 `json:"valueChange"`
	Reporting     string `json:"reporting"`
	Destination   any    `json:"destination"`
	File          string `json:"file"`
	IEEEAddress   string `json:"ieeeAddress"`
	ActionName    string `json:"actionName"`
	Value         any    `json:"value"`
}

func (b *Bridge) handleBridgeRequest(payload []byte) {
	var req bridgeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logger.Warn("invalid bridge request", "error", err)
		return
	}

	switch req.Action {
	case "setPermitJoin":
		b.coord.SetPermitJoin(req.Enabled)
	case "setDeviceName":
		b.coord.SetDeviceName(req.Device, req.Name)
	case "removeDevice":
		b.coord.RemoveDevice(req.Device, req.Force)
	case "updateDevice":
		b.coord.UpdateDevice(req.Device, req.Reportings)
	case "updateReporting":
		b.coord.UpdateReporting(req.Device, req.EndpointID, req.Reporting, req.MinInterval, req.MaxInterval, req.ValueChange)
	case "bindingControl":
		b.coord.BindingControl(req.Device, req.EndpointID, req.ClusterID, req.Destination, req.DstEndpointID, req.Unbind)
	case "groupControl":
		b.coord.GroupControl(req.Device, req.EndpointID, req.GroupID, req.Remove)
	case "removeAllGroups":
		b.coord.RemoveAllGroups(req.Device, req.EndpointID)
	case "otaUpgrade":
		b.coord.OTAUpgrade(req.Device, req.EndpointID, req.File)
	case "groupAction":
		b.coord.GroupAction(req.GroupID, req.ActionName, req.Value)
	case "touchLink":
		ieee, err := device.ParseIEEE(req.IEEEAddress)
		if err != nil {
			b.logger.Warn("invalid touchlink address", "ieee", req.IEEEAddress)
			return
		}
		b.coord.TouchLink(ieee, req.Channel, req.Reset)
	default:
		b.logger.Warn("unknown bridge request", "action", req.Action)
	}
}

func (b *Bridge) subscribeDeviceCommands(name string) {
	topic := b.prefix + "/td/" + deviceTopicName(name)
	b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(name, msg.Payload())
	})
}

// handleCommand maps an inbound JSON document onto device actions: every key
// matching an action name is forwarded with its value.
func (b *Bridge) handleCommand(name string, payload []byte) {
	var command map[string]any
	if err := json.Unmarshal(payload, &command); err != nil {
		b.logger.Warn("invalid command payload", "device", name, "error", err)
		return
	}

	for action, value := range command {
		b.coord.DeviceAction(name, 0, action, value)
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "error", err)
		}
	}()
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
