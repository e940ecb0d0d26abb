package mqtt

import (
	"fmt"
	"sort"
	"strings"

	"zigbeed/internal/device"
)

const discoveryPrefix = "homeassistant"

// discoveryMessage is one retained Home Assistant discovery document.
type discoveryMessage struct {
	Topic   string
	Payload []byte
}

type sensorMeta struct {
	deviceClass string
	unit        string
	stateClass  string
}

// Property names mapped to Home Assistant sensor metadata.
var sensorComponents = map[string]sensorMeta{
	"temperature":    {deviceClass: "temperature", unit: "°C", stateClass: "measurement"},
	"humidity":       {deviceClass: "humidity", unit: "%", stateClass: "measurement"},
	"pressure":       {deviceClass: "pressure", unit: "kPa", stateClass: "measurement"},
	"illuminance":    {deviceClass: "illuminance", unit: "lx", stateClass: "measurement"},
	"battery":        {deviceClass: "battery", unit: "%"},
	"batteryVoltage": {deviceClass: "voltage", unit: "V"},
	"co2":            {deviceClass: "carbon_dioxide", unit: "ppm", stateClass: "measurement"},
	"energy":         {deviceClass: "energy", unit: "kWh", stateClass: "total_increasing"},
	"power":          {deviceClass: "power", unit: "W", stateClass: "measurement"},
	"voltage":        {deviceClass: "voltage", unit: "V", stateClass: "measurement"},
	"current":        {deviceClass: "current", unit: "A", stateClass: "measurement"},
	"action":         {},
	"scene":          {},
}

// Property names mapped to Home Assistant binary sensor device classes.
var binarySensorComponents = map[string]string{
	"occupancy":  "motion",
	"contact":    "door",
	"waterLeak":  "moisture",
	"smoke":      "smoke",
	"gas":        "gas",
	"tamper":     "tamper",
	"batteryLow": "battery",
	"vibration":  "vibration",
	"alarm":      "safety",
}

// deviceTopicName sanitizes a device name for use inside an MQTT topic.
func deviceTopicName(name string) string {
	replacer := strings.NewReplacer(" ", "_", "/", "_", "+", "_", "#", "_")
	return replacer.Replace(name)
}

func deviceDisplayName(d *device.Device) string {
	if d.Name != device.IEEEString(d.IEEEAddress) {
		return d.Name
	}
	if d.ManufacturerName != "" && d.ModelName != "" {
		return d.ManufacturerName + " " + d.ModelName
	}
	return d.Name
}

// buildDiscovery builds the Home Assistant discovery documents for every
// exposed entity of the device.
func buildDiscovery(d *device.Device, prefix string) []discoveryMessage {
	nodeID := device.IEEEString(d.IEEEAddress)
	stateTopic := prefix + "/fd/" + deviceTopicName(d.Name)
	commandTopic := prefix + "/td/" + deviceTopicName(d.Name)

	deviceInfo := map[string]any{
		"identifiers":  []string{nodeID},
		"name":         deviceDisplayName(d),
		"manufacturer": d.ManufacturerName,
		"model":        d.ModelName,
	}
	if d.Version != 0 {
		deviceInfo["sw_version"] = fmt.Sprintf("%d", d.Version)
	}

	base := func(objectID string) map[string]any {
		return map[string]any{
			"unique_id":          nodeID + "_" + objectID,
			"state_topic":        stateTopic,
			"availability_topic": prefix + "/bridge/state",
			"device":             deviceInfo,
		}
	}

	var messages []discoveryMessage
	add := func(component, objectID string, config map[string]any) {
		topic := fmt.Sprintf("%s/%s/%s/%s/config", discoveryPrefix, component, nodeID, objectID)
		messages = append(messages, discoveryMessage{Topic: topic, Payload: mustJSON(config)})
	}

	linkConfig := base("linkQuality")
	linkConfig["name"] = "Link quality"
	linkConfig["value_template"] = "{{ value_json.linkQuality }}"
	linkConfig["entity_category"] = "diagnostic"
	add("sensor", "linkQuality", linkConfig)

	seen := map[string]bool{}
	for _, id := range endpointIDs(d) {
		endpoint := d.Endpoints[id]

		objectID := func(name string) string {
			if id == 1 {
				return name
			}
			return fmt.Sprintf("%s_%d", name, id)
		}

		for _, p := range endpoint.Properties {
			name := p.Name()
			if seen[objectID(name)] {
				continue
			}

			if meta, ok := sensorComponents[name]; ok {
				config := base(objectID(name))
				config["name"] = name
				config["value_template"] = fmt.Sprintf("{{ value_json.%s }}", name)
				if meta.deviceClass != "" {
					config["device_class"] = meta.deviceClass
				}
				if meta.unit != "" {
					config["unit_of_measurement"] = meta.unit
				}
				if meta.stateClass != "" {
					config["state_class"] = meta.stateClass
				}
				add("sensor", objectID(name), config)
				seen[objectID(name)] = true
				continue
			}

			if deviceClass, ok := binarySensorComponents[name]; ok {
				config := base(objectID(name))
				config["name"] = name
				config["value_template"] = fmt.Sprintf("{{ value_json.%s }}", name)
				config["payload_on"] = true
				config["payload_off"] = false
				config["device_class"] = deviceClass
				add("binary_sensor", objectID(name), config)
				seen[objectID(name)] = true
			}
		}

		var hasStatus, hasLevel, hasColorTemperature bool
		for _, action := range endpoint.Actions {
			switch action.Name() {
			case "status":
				hasStatus = true
			case "level":
				hasLevel = true
			case "colorTemperature":
				hasColorTemperature = true
			}
		}

		switch {
		case hasStatus && hasLevel:
			if seen[objectID("light")] {
				continue
			}
			config := base(objectID("light"))
			config["name"] = "light"
			config["schema"] = "template"
			config["command_topic"] = commandTopic
			config["state_template"] = "{% if value_json.status == 'on' %}on{% else %}off{% endif %}"
			config["payload_on"] = "on"
			config["payload_off"] = "off"
			config["command_off_template"] = `{"status":"off"}`
			config["brightness_template"] = "{{ value_json.level }}"
			if hasColorTemperature {
				config["color_temp_template"] = "{{ value_json.colorTemperature }}"
				config["command_on_template"] = `{"status":"on"` +
					`{% if brightness is defined %},"level":{{ brightness }}{% endif %}` +
					`{% if color_temp is defined %},"colorTemperature":{{ color_temp }}{% endif %}}`
			} else {
				config["command_on_template"] = `{"status":"on"{% if brightness is defined %},"level":{{ brightness }}{% endif %}}`
			}
			add("light", objectID("light"), config)
			seen[objectID("light")] = true

		case hasStatus:
			if seen[objectID("switch")] {
				continue
			}
			config := base(objectID("switch"))
			config["name"] = "switch"
			config["command_topic"] = commandTopic
			config["value_template"] = "{{ value_json.status }}"
			config["state_on"] = "on"
			config["state_off"] = "off"
			config["payload_on"] = `{"status":"on"}`
			config["payload_off"] = `{"status":"off"}`
			add("switch", objectID("switch"), config)
			seen[objectID("switch")] = true
		}
	}

	return messages
}

// buildRemoveDiscovery builds empty retained payloads that clear the
// discovery documents of a removed device.
func buildRemoveDiscovery(d *device.Device) []discoveryMessage {
	messages := buildDiscovery(d, "")
	for i := range messages {
		messages[i].Payload = nil
	}
	return messages
}

func endpointIDs(d *device.Device) []uint8 {
	ids := make([]uint8, 0, len(d.Endpoints))
	for id := range d.Endpoints {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
