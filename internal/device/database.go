package device

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"zigbeed/internal/property"
)

// Definition describes how to set up endpoints of one device model:
// which properties decode its reports, which reportings to configure after
// the interview, which actions and polls it supports.
type Definition struct {
	Description string         `json:"description"`
	ModelNames  []string       `json:"modelNames"`
	Properties  []string       `json:"properties,omitempty"`
	Actions     []string       `json:"actions,omitempty"`
	Reportings  []*Reporting   `json:"reportings,omitempty"`
	Polls       []string       `json:"polls,omitempty"`
	Options     map[string]any `json:"options,omitempty"`

	// 0 applies the definition to every endpoint
	EndpointID uint8 `json:"endpointId,omitempty"`
}

// Database is the description database loaded from a directory of JSON
// files, each mapping a manufacturer name onto its model definitions.
type Database struct {
	definitions map[string][]*Definition
	logger      *slog.Logger
}

// LoadDatabase reads every *.json file from dir. A missing or empty
// directory yields an empty database, not an error.
func LoadDatabase(dir string, logger *slog.Logger) (*Database, error) {
	db := &Database{
		definitions: make(map[string][]*Definition),
		logger:      logger.With("component", "devicedb"),
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return db, fmt.Errorf("device: glob %s: %w", dir, err)
	}

	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return db, fmt.Errorf("device: read %s: %w", path, err)
		}

		var file map[string][]*Definition
		if err := json.Unmarshal(data, &file); err != nil {
			return db, fmt.Errorf("device: parse %s: %w", path, err)
		}

		for manufacturer, definitions := range file {
			db.definitions[manufacturer] = append(db.definitions[manufacturer], definitions...)
		}
	}

	db.logger.Info("description database loaded", "files", len(matches), "manufacturers", len(db.definitions))
	return db, nil
}

// Lookup returns the definitions matching the manufacturer and model names.
func (db *Database) Lookup(manufacturerName, modelName string) []*Definition {
	var matched []*Definition
	for _, definition := range db.definitions[manufacturerName] {
		for _, model := range definition.ModelNames {
			if model == modelName {
				matched = append(matched, definition)
				break
			}
		}
	}
	return matched
}

// Setup resolves the device's definitions into endpoint property, action
// and poll instances. Existing sets are rebuilt from scratch so Setup is
// safe to call again after an update.
func (db *Database) Setup(d *Device) {
	for _, endpoint := range d.Endpoints {
		endpoint.Properties = nil
		endpoint.Reportings = nil
		endpoint.Actions = nil
		endpoint.Polls = nil
	}

	definitions := db.Lookup(d.ManufacturerName, d.ModelName)
	if len(definitions) == 0 {
		db.logger.Warn("device description not found",
			"device", d.Name, "manufacturerName", d.ManufacturerName, "modelName", d.ModelName)
		return
	}

	for _, definition := range definitions {
		if definition.Description != "" {
			d.Description = definition.Description
		}
		for _, endpoint := range d.Endpoints {
			if definition.EndpointID != 0 && definition.EndpointID != endpoint.ID {
				continue
			}
			db.setupEndpoint(endpoint, definition)
		}
	}
}

func (db *Database) setupEndpoint(endpoint *Endpoint, definition *Definition) {
	opts := property.Options{
		"modelName": endpoint.device.ModelName,
		"version":   int(endpoint.device.Version),
	}
	for name, value := range definition.Options {
		opts[name] = value
	}

	for _, name := range definition.Properties {
		p, err := property.NewProperty(name, opts)
		if err != nil {
			db.logger.Warn("unknown property", "device", endpoint.device.Name, "name", name)
			continue
		}
		endpoint.Properties = append(endpoint.Properties, p)
	}

	for _, name := range definition.Actions {
		a, err := property.NewAction(name, opts)
		if err != nil {
			db.logger.Warn("unknown action", "device", endpoint.device.Name, "name", name)
			continue
		}
		endpoint.Actions = append(endpoint.Actions, a)
	}

	for _, name := range definition.Polls {
		p, err := property.NewPoll(name)
		if err != nil {
			db.logger.Warn("unknown poll", "device", endpoint.device.Name, "name", name)
			continue
		}
		endpoint.Polls = append(endpoint.Polls, p)
	}

	endpoint.Reportings = append(endpoint.Reportings, definition.Reportings...)
}
