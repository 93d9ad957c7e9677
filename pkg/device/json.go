package device

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ilguido/jidl/pkg/errors"
)

// JSONClient fetches a JSON document from an HTTP endpoint. Numbers are
// decoded as json.Number so readers can coerce them losslessly.
type JSONClient struct {
	url string
	hc  *http.Client

	mu        sync.RWMutex
	connected bool
	doc       map[string]interface{}
}

// NewJSONClient creates a client for the given document URL.
func NewJSONClient(url string, timeout time.Duration) *JSONClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &JSONClient{
		url: url,
		hc:  &http.Client{Timeout: timeout},
	}
}

// Connect marks the session up and verifies the endpoint with a fetch.
func (c *JSONClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	if err := c.Fetch(ctx); err != nil {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		return err
	}
	return nil
}

// Close drops the session state. The underlying http.Client keeps its
// idle connections; there is nothing to tear down per device.
func (c *JSONClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.doc = nil
	return nil
}

// Connected reports whether the last exchange succeeded.
func (c *JSONClient) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Fetch retrieves and decodes the document.
func (c *JSONClient) Fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDeviceUnreachable, "building request").Err()
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		c.setConnected(false)
		return errors.Wrapf(err, errors.ErrCodeDeviceUnreachable, "fetching %s", c.url).Err()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setConnected(false)
		return errors.Newf(errors.ErrCodeDeviceRead,
			"unexpected status %d from %s", resp.StatusCode, c.url).Err()
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return errors.Wrap(err, errors.ErrCodeDecode, "decoding document").Err()
	}

	c.mu.Lock()
	c.doc = doc
	c.connected = true
	c.mu.Unlock()
	return nil
}

// Value returns a field of the last fetched document.
func (c *JSONClient) Value(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.doc == nil {
		return nil, false
	}
	v, ok := c.doc[key]
	return v, ok
}

func (c *JSONClient) setConnected(up bool) {
	c.mu.Lock()
	c.connected = up
	c.mu.Unlock()
}
