package ipc

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/ilguido/jidl/pkg/errors"
)

// Client issues one framed request per connection against a jidl
// server. The client itself is reusable: every call dials, exchanges
// one frame pair and closes.
type Client struct {
	addr    string
	tlsCfg  *tls.Config
	timeout time.Duration
}

// NewClient creates a client for the given address. A timeout of zero
// means no deadline on the exchange.
func NewClient(addr string, tlsCfg *tls.Config, timeout time.Duration) *Client {
	return &Client{addr: addr, tlsCfg: tlsCfg, timeout: timeout}
}

// Request sends one request and returns the response payload. A good
// response without payload yields nil; a bad response yields a server
// response error carrying the status text.
func (c *Client) Request(method string, payload map[string]interface{}) (map[string]interface{}, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeDeviceUnreachable,
			"dialing %s", c.addr).Err()
	}
	defer conn.Close()

	if c.timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.timeout))
	}

	if err := Encode(conn, NewRequest(method, payload)); err != nil {
		return nil, err
	}

	resp, err := Decode(conn)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.Status.IsGood():
		return resp.Payload(), nil
	case resp.Status.IsBad():
		msg := resp.TextMessage()
		if msg == "" {
			msg = resp.Status.Text()
		}
		return nil, errors.Newf(errors.ErrCodeServerResponse,
			"server answered %s: %s", resp.Status, msg).
			WithField("status", int(resp.Status)).Err()
	default:
		return nil, errors.Newf(errors.ErrCodeProtocol,
			"unexpected response status %s", resp.Status).Err()
	}
}

func (c *Client) dial() (net.Conn, error) {
	dialer := &net.Dialer{Timeout: c.timeout}
	if c.timeout == 0 {
		dialer.Timeout = 0
	}
	return tls.DialWithDialer(dialer, "tcp", c.addr, c.tlsCfg)
}
