package connection

import (
	"context"
	"crypto/tls"
	"strconv"
	"sync"
	"time"

	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/errors"
	"github.com/ilguido/jidl/pkg/ipc"
	"github.com/ilguido/jidl/pkg/log"
	"github.com/ilguido/jidl/pkg/qualifier"
	"github.com/ilguido/jidl/pkg/variable"
)

// Jidl is a connection that polls a remote jidl instance over the ipc
// protocol. Reader addresses are var::connection qualifiers the remote
// server resolves.
type Jidl struct {
	base
	client *remoteClient
	logger *log.Logger
}

// NewJidl creates a connection to a remote jidl server. The exchange
// timeout tracks the sample period: one period, in wall time.
func NewJidl(name, address string, sampleTicks int, tlsCfg *tls.Config,
	logger *log.Logger) (*Jidl, error) {

	b, err := newBase(name, "jidlprotocol", address, sampleTicks)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	timeout := time.Duration(b.sampleTicks) * 100 * time.Millisecond
	return &Jidl{
		base:   b,
		client: newRemoteClient(ipc.NewClient(address, tlsCfg, timeout)),
		logger: logger,
	}, nil
}

// AddReader binds a reader to a remote var::connection qualifier.
func (c *Jidl) AddReader(name, address string, typ datatype.DataType, size int) error {
	if _, err := qualifier.Split(address); err != nil {
		return err
	}
	r, err := variable.NewDocumentReader(name, address, typ, size, c.client)
	if err != nil {
		return err
	}
	return c.addReader(r)
}

func (c *Jidl) Connected() bool { return c.client.Connected() }

// Connect is stateless: the protocol dials per exchange, so connecting
// only arms the status flag. The first fetch validates it.
func (c *Jidl) Connect(ctx context.Context) error {
	c.client.setConnected(true)
	return nil
}

// Initialize builds the values request from the bound readers.
func (c *Jidl) Initialize(ctx context.Context) error {
	payload := make(map[string]interface{})
	for _, r := range c.Readers() {
		q, err := qualifier.Split(r.Address())
		if err != nil {
			return err
		}
		vars, _ := payload[q.Connection].([]interface{})
		payload[q.Connection] = append(vars, q.Variable)
	}
	if len(payload) == 0 {
		return errors.Newf(errors.ErrCodeConfigInvalid,
			"remote connection %q has no readers", c.name).Err()
	}
	c.client.setRequest(payload)
	c.setInitialized()
	return c.Connect(ctx)
}

func (c *Jidl) Disconnect() error {
	c.client.setConnected(false)
	return nil
}

// Read asks the remote server for the current values, then refreshes
// every reader from the cached response.
func (c *Jidl) Read(ctx context.Context) error {
	if err := c.client.Fetch(ctx); err != nil {
		return err
	}
	for _, r := range c.Readers() {
		if err := r.Read(ctx); err != nil {
			if isDeviceError(err) {
				return err
			}
			c.logger.Device().Debug("remote value read failed",
				"connection", c.name, "variable", r.Name(), "error", err)
		}
	}
	c.touch()
	return nil
}

func (c *Jidl) Parameters() []Param {
	return []Param{
		{"type", c.typeTag},
		{"address", c.address},
		{"sample ticks", strconv.Itoa(c.sampleTicks)},
	}
}

// remoteClient adapts the ipc client to the document client shape the
// readers consume: one values request per cycle, responses cached and
// keyed by var::connection.
type remoteClient struct {
	ipc *ipc.Client

	mu        sync.RWMutex
	connected bool
	request   map[string]interface{}
	doc       map[string]interface{}
}

func newRemoteClient(c *ipc.Client) *remoteClient {
	return &remoteClient{ipc: c}
}

func (c *remoteClient) Connect(ctx context.Context) error {
	c.setConnected(true)
	return nil
}

func (c *remoteClient) Close() error {
	c.setConnected(false)
	return nil
}

func (c *remoteClient) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *remoteClient) setConnected(up bool) {
	c.mu.Lock()
	c.connected = up
	c.mu.Unlock()
}

func (c *remoteClient) setRequest(payload map[string]interface{}) {
	c.mu.Lock()
	c.request = payload
	c.mu.Unlock()
}

func (c *remoteClient) Fetch(ctx context.Context) error {
	c.mu.RLock()
	req := c.request
	c.mu.RUnlock()
	if req == nil {
		return errors.New(errors.ErrCodeNotConnected,
			"remote client not initialized").Err()
	}

	payload, err := c.ipc.Request("values", req)
	if err != nil {
		c.setConnected(false)
		return err
	}

	c.mu.Lock()
	c.doc = payload
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *remoteClient) Value(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.doc == nil {
		return nil, false
	}
	v, ok := c.doc[key]
	return v, ok
}
