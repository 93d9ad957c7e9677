package connection

import (
	"context"
	"strconv"
	"time"

	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/device"
	"github.com/ilguido/jidl/pkg/log"
	"github.com/ilguido/jidl/pkg/variable"
)

// JSON is a read-only connection to an HTTP endpoint serving a JSON
// document. One fetch per cycle feeds every reader.
type JSON struct {
	base
	client *device.JSONClient
	logger *log.Logger
}

// NewJSON creates a JSON connection for the given document URL.
func NewJSON(name, url string, sampleTicks int, logger *log.Logger) (*JSON, error) {
	b, err := newBase(name, "json", url, sampleTicks)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	timeout := time.Duration(b.sampleTicks) * 100 * time.Millisecond
	return &JSON{
		base:   b,
		client: device.NewJSONClient(url, timeout),
		logger: logger,
	}, nil
}

// AddReader binds a reader to a document key.
func (c *JSON) AddReader(name, key string, typ datatype.DataType, size int) error {
	r, err := variable.NewDocumentReader(name, key, typ, size, c.client)
	if err != nil {
		return err
	}
	return c.addReader(r)
}

func (c *JSON) Connected() bool { return c.client.Connected() }

func (c *JSON) Connect(ctx context.Context) error {
	return c.client.Connect(ctx)
}

func (c *JSON) Initialize(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	c.setInitialized()
	return nil
}

func (c *JSON) Disconnect() error { return c.client.Close() }

// Read fetches the document once, then refreshes every reader from it.
func (c *JSON) Read(ctx context.Context) error {
	if err := c.client.Fetch(ctx); err != nil {
		return err
	}
	for _, r := range c.Readers() {
		if err := r.Read(ctx); err != nil {
			if isDeviceError(err) {
				return err
			}
			c.logger.Device().Debug("field read failed",
				"connection", c.name, "variable", r.Name(), "error", err)
		}
	}
	c.touch()
	return nil
}

func (c *JSON) Parameters() []Param {
	return []Param{
		{"type", c.typeTag},
		{"address", c.address},
		{"sample ticks", strconv.Itoa(c.sampleTicks)},
	}
}
