// Package device defines the client capabilities a connection delegates
// its I/O to. Field-bus transports (modbus, s7, opcua) are pluggable:
// an implementation registers a Factory for its connection type and the
// configuration builder instantiates clients through the registry.
package device

import (
	"context"
	"sync"
	"time"

	"github.com/ilguido/jidl/pkg/errors"
)

// Client is the minimal capability every device client provides.
type Client interface {
	// Connect establishes the session with the device.
	Connect(ctx context.Context) error
	// Close tears the session down. Safe to call when not connected.
	Close() error
	// Connected reports the session state as last observed.
	Connected() bool
}

// Area identifies a modbus data area.
type Area int

const (
	AreaCoil Area = iota
	AreaDiscreteInput
	AreaInputRegister
	AreaHoldingRegister
)

func (a Area) String() string {
	switch a {
	case AreaCoil:
		return "coil"
	case AreaDiscreteInput:
		return "discrete input"
	case AreaInputRegister:
		return "input register"
	case AreaHoldingRegister:
		return "holding register"
	default:
		return "unknown"
	}
}

// RegisterClient is a client addressing bits and 16 bit registers.
type RegisterClient interface {
	Client
	ReadBit(ctx context.Context, area Area, addr uint16) (bool, error)
	ReadRegisters(ctx context.Context, area Area, addr uint16, quantity int) ([]uint16, error)
	WriteBit(ctx context.Context, addr uint16, value bool) error
	WriteRegisters(ctx context.Context, addr uint16, values []uint16) error
}

// TagClient is a client addressing named tags (s7 items, OPC UA nodes).
type TagClient interface {
	Client
	ReadTag(ctx context.Context, tag string) (interface{}, error)
	WriteTag(ctx context.Context, tag string, value interface{}) error
}

// DocumentClient is a client that retrieves a whole key/value document
// per acquisition cycle (JSON endpoints, remote jidl instances).
type DocumentClient interface {
	Client
	// Fetch retrieves a fresh document from the device.
	Fetch(ctx context.Context) error
	// Value returns a field of the last fetched document.
	Value(key string) (interface{}, bool)
}

// Params carries the transport settings a Factory needs.
type Params struct {
	Address   string
	Port      int
	Rack      int
	Slot      int
	Path      string
	Discovery bool
	Username  string
	Password  string
	Timeout   time.Duration
}

// Factory builds a client for one connection type.
type Factory func(p Params) (Client, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// RegisterFactory installs the transport factory for a connection type.
// Registering the same type twice replaces the previous factory.
func RegisterFactory(connType string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[connType] = f
}

// NewClient instantiates a client for the given connection type.
func NewClient(connType string, p Params) (Client, error) {
	registryMu.RLock()
	f, ok := registry[connType]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.ErrCodeDeviceUnreachable,
			"no transport registered for connection type %q", connType).Err()
	}
	return f(p)
}
