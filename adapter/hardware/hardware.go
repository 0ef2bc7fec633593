// Package hardware carries the shared plumbing for adapters backed by a
// physical peripheral (wearables, sensor pods). A concrete adapter embeds
// Base and implements only its observation loop; connection bookkeeping and
// the registration metadata live here.
package hardware

import (
	"context"
	"sync"

	"github.com/deskclaw/deskclaw/adapter"
)

// Device describes the peripheral behind an adapter. It is captured once at
// registration and surfaced through adapter.Info; it is never polled live.
type Device struct {
	Name     string
	Vendor   string
	Kind     string // e.g. "wearable", "sensor"
	Firmware string
}

// metadata flattens the device into the Info.Device map.
func (d Device) metadata() map[string]string {
	m := map[string]string{}
	if d.Name != "" {
		m["device"] = d.Name
	}
	if d.Vendor != "" {
		m["vendor"] = d.Vendor
	}
	if d.Kind != "" {
		m["kind"] = d.Kind
	}
	if d.Firmware != "" {
		m["firmware"] = d.Firmware
	}
	return m
}

// Connector manages the transport session with the peripheral.
type Connector interface {
	// Available reports whether the peripheral is reachable right now.
	Available() bool

	// Connect establishes the session. Called from Init; must release any
	// partial acquisition on error.
	Connect(ctx context.Context) error

	// Disconnect tears the session down. Safe to call when not connected.
	Disconnect() error
}

// Base provides the adapter.Adapter surface common to all hardware adapters.
// Embed it and implement Run plus any state the device reports.
type Base struct {
	name      string
	priority  int
	device    Device
	connector Connector

	mu        sync.Mutex
	connected bool
}

// NewBase wires the common fields.
func NewBase(name string, priority int, device Device, connector Connector) Base {
	if priority <= 0 {
		priority = adapter.DefaultPriority
	}
	return Base{name: name, priority: priority, device: device, connector: connector}
}

// Info implements adapter.Adapter.
func (b *Base) Info() adapter.Info {
	return adapter.Info{
		Name:            b.name,
		DefaultPriority: b.priority,
		Device:          b.device.metadata(),
	}
}

// Available implements adapter.Adapter.
func (b *Base) Available() bool { return b.connector.Available() }

// Init implements adapter.Adapter by connecting the peripheral.
func (b *Base) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return nil
	}
	if err := b.connector.Connect(ctx); err != nil {
		return err
	}
	b.connected = true
	return nil
}

// Close disconnects the peripheral. Adapters call it when Run unwinds.
func (b *Base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil
	}
	b.connected = false
	return b.connector.Disconnect()
}

// Connected reports the session status for State payloads.
func (b *Base) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// State implements adapter.Adapter with the connection status; adapters with
// richer telemetry shadow this method.
func (b *Base) State(ctx context.Context) (map[string]any, error) {
	return map[string]any{"connected": b.Connected()}, nil
}
