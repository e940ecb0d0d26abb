package device

import (
	"sort"
)

// List owns every known device plus the coordinator-level settings that
// persist with them. It is mutated only by the coordinator event loop.
type List struct {
	devices map[[8]byte]*Device

	PermitJoin     bool
	AdapterType    string
	AdapterVersion string
}

// NewList creates an empty device list.
func NewList() *List {
	return &List{devices: make(map[[8]byte]*Device)}
}

// Get returns the device with the given IEEE address.
func (l *List) Get(ieee [8]byte) (*Device, bool) {
	d, ok := l.devices[ieee]
	return d, ok
}

// Add inserts or replaces a device under its IEEE address.
func (l *List) Add(d *Device) {
	l.devices[d.IEEEAddress] = d
}

// Remove deletes the device with the given IEEE address.
func (l *List) Remove(ieee [8]byte) {
	delete(l.devices, ieee)
}

// ByNetworkAddress finds a device by its current network address.
func (l *List) ByNetworkAddress(networkAddress uint16) (*Device, bool) {
	for _, d := range l.devices {
		if d.NetworkAddress == networkAddress && !d.Removed {
			return d, true
		}
	}
	return nil, false
}

// ByName finds a device by its user-assigned name or IEEE hex form.
func (l *List) ByName(name string) (*Device, bool) {
	for _, d := range l.devices {
		if d.Name == name || IEEEString(d.IEEEAddress) == name {
			return d, true
		}
	}
	return nil, false
}

// All returns the devices ordered by IEEE address.
func (l *List) All() []*Device {
	list := make([]*Device, 0, len(l.devices))
	for _, d := range l.devices {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i].IEEEAddress, list[j].IEEEAddress
		for n := 0; n < 8; n++ {
			if a[n] != b[n] {
				return a[n] < b[n]
			}
		}
		return false
	})
	return list
}

// Len returns the number of devices, the coordinator included.
func (l *List) Len() int { return len(l.devices) }

// EvictCoordinators removes every record that would collide with a fresh
// coordinator entry: same IEEE address or leftover coordinator type.
func (l *List) EvictCoordinators(ieee [8]byte) {
	for key, d := range l.devices {
		if key == ieee || d.LogicalType == Coordinator {
			delete(l.devices, key)
		}
	}
}
