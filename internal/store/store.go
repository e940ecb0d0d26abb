// Package store persists the device registry and coordinator settings.
package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Device operations
	SaveDevice(record *DeviceRecord) error
	GetDevice(ieee string) (*DeviceRecord, error)
	DeleteDevice(ieee string) error
	ListDevices() ([]*DeviceRecord, error)

	// Coordinator settings
	SaveSettings(settings *Settings) error
	GetSettings() (*Settings, error)

	// Close the store
	Close() error
}
