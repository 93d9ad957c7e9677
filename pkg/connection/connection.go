// Package connection models the stateful binding to one device: a
// client, an ordered reader list, an optional writer list, and a
// sample period measured in scheduler ticks.
package connection

import (
	"context"
	"sync"
	"time"

	"github.com/ilguido/jidl/pkg/device"
	"github.com/ilguido/jidl/pkg/errors"
	"github.com/ilguido/jidl/pkg/variable"
)

// Param is one labelled setting of a connection, used by front ends to
// display the configuration without runtime type queries.
type Param struct {
	Label string
	Value string
}

// Connection is the contract the scheduler drives.
type Connection interface {
	Name() string
	TypeTag() string
	Address() string
	SampleTicks() int

	Readers() []variable.Reader
	// Reader returns the reader with the given name, nil if absent.
	Reader(name string) variable.Reader
	// Data returns the text snapshot of the last read: reader name to
	// value. Readers without a value are omitted.
	Data() map[string]string
	LastRead() time.Time

	Initialized() bool
	// Initialize performs the first-time setup and connect.
	Initialize(ctx context.Context) error
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool

	// Read refreshes every reader in order. A device-level failure
	// aborts the pass and is returned; per-tag decode failures are
	// recovered and the pass continues.
	Read(ctx context.Context) error

	Parameters() []Param
}

// Writeable is a connection that mirrors source readers back out.
type Writeable interface {
	Connection
	Writers() []variable.Writer
	// Write runs every writer in order; the first device-level failure
	// aborts the pass.
	Write(ctx context.Context) error
}

// Shareable is a connection whose client may be aliased by another
// connection with the same type and address.
type Shareable interface {
	Connection
	Client() device.Client
	SetClient(device.Client) error
}

// base carries the plumbing shared by every connection variant.
type base struct {
	name        string
	typeTag     string
	address     string
	sampleTicks int

	mu          sync.RWMutex
	readers     []variable.Reader
	writers     []variable.Writer
	initialized bool
	lastRead    time.Time
}

func newBase(name, typeTag, address string, sampleTicks int) (base, error) {
	if !variable.NameRe.MatchString(name) {
		return base{}, errors.Newf(errors.ErrCodeBadArgument,
			"illegal connection name %q", name).Err()
	}
	if sampleTicks == 0 {
		sampleTicks = 1
	}
	if sampleTicks < 1 {
		return base{}, errors.Newf(errors.ErrCodeBadArgument,
			"sample period of connection %q must be at least one tick", name).Err()
	}
	return base{
		name:        name,
		typeTag:     typeTag,
		address:     address,
		sampleTicks: sampleTicks,
	}, nil
}

func (b *base) Name() string     { return b.name }
func (b *base) TypeTag() string  { return b.typeTag }
func (b *base) Address() string  { return b.address }
func (b *base) SampleTicks() int { return b.sampleTicks }

func (b *base) Readers() []variable.Reader {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.readers
}

func (b *base) Writers() []variable.Writer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writers
}

func (b *base) LastRead() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastRead
}

func (b *base) Initialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

func (b *base) setInitialized() {
	b.mu.Lock()
	b.initialized = true
	b.mu.Unlock()
}

func (b *base) touch() {
	b.mu.Lock()
	b.lastRead = time.Now()
	b.mu.Unlock()
}

// addReader appends a reader, rejecting duplicate names across both
// lists.
func (b *base) addReader(r variable.Reader) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hasVariable(r.Name()) {
		return errors.AlreadyExists("variable", r.Name()).
			WithField("connection", b.name).Err()
	}
	b.readers = append(b.readers, r)
	return nil
}

// addWriter appends a writer, rejecting duplicate names across both
// lists.
func (b *base) addWriter(w variable.Writer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hasVariable(w.Name()) {
		return errors.AlreadyExists("variable", w.Name()).
			WithField("connection", b.name).Err()
	}
	b.writers = append(b.writers, w)
	return nil
}

func (b *base) hasVariable(name string) bool {
	for _, r := range b.readers {
		if r.Name() == name {
			return true
		}
	}
	for _, w := range b.writers {
		if w.Name() == name {
			return true
		}
	}
	return false
}

// Data snapshots the reader values as text.
func (b *base) Data() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.readers))
	for _, r := range b.readers {
		if r.Value() == nil {
			continue
		}
		out[r.Name()] = r.Text()
	}
	return out
}

// Reader returns the reader with the given name, nil if absent.
func (b *base) Reader(name string) variable.Reader {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, r := range b.readers {
		if r.Name() == name {
			return r
		}
	}
	return nil
}

// isDeviceError tells connection-level failures (disconnect and retry
// next tick) apart from per-tag decode failures (keep going).
func isDeviceError(err error) bool {
	return errors.IsCategory(err, "device")
}
