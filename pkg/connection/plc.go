package connection

import (
	"context"
	"strconv"

	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/device"
	"github.com/ilguido/jidl/pkg/errors"
	"github.com/ilguido/jidl/pkg/log"
	"github.com/ilguido/jidl/pkg/variable"
)

// plc is the behavior shared by the field-bus variants: the connection
// state is whatever the client reports, reads walk the reader list
// sequentially, and clients may be shared across identical addresses.
type plc struct {
	base
	client device.Client
	logger *log.Logger
}

func (p *plc) Connected() bool {
	if p.client == nil {
		return false
	}
	return p.client.Connected()
}

func (p *plc) Connect(ctx context.Context) error {
	if p.client == nil {
		return errors.Newf(errors.ErrCodeNotConnected,
			"connection %q has no client", p.name).Err()
	}
	return p.client.Connect(ctx)
}

func (p *plc) Initialize(ctx context.Context) error {
	if err := p.Connect(ctx); err != nil {
		return err
	}
	p.setInitialized()
	return nil
}

func (p *plc) Disconnect() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *plc) Client() device.Client { return p.client }

// SetClient aliases another connection's client. Only allowed before
// any variable is bound, since variables capture the client.
func (p *plc) SetClient(c device.Client) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.readers) > 0 || len(p.writers) > 0 {
		return errors.New(errors.ErrCodeBadArgument,
			"cannot replace the client of a connection with bound variables").
			WithField("connection", p.name).Err()
	}
	p.client = c
	return nil
}

func (p *plc) Read(ctx context.Context) error {
	for _, r := range p.Readers() {
		if err := r.Read(ctx); err != nil {
			if isDeviceError(err) {
				return err
			}
			p.logger.Device().Debug("tag read failed",
				"connection", p.name, "variable", r.Name(), "error", err)
		}
	}
	p.touch()
	return nil
}

func (p *plc) Write(ctx context.Context) error {
	for _, w := range p.Writers() {
		if err := w.Write(ctx); err != nil {
			if isDeviceError(err) {
				return err
			}
			p.logger.Device().Debug("tag write failed",
				"connection", p.name, "variable", w.Name(), "error", err)
		}
	}
	return nil
}

// ModbusTCP is a connection to a modbus server.
type ModbusTCP struct {
	plc
	port      int
	reversed  bool
	regClient device.RegisterClient
}

// NewModbusTCP creates a modbus connection over the given register
// client. reversed flips the word order of multi-register variables.
func NewModbusTCP(name, address string, port int, reversed bool, sampleTicks int,
	client device.RegisterClient, logger *log.Logger) (*ModbusTCP, error) {

	b, err := newBase(name, "modbus-tcp", address, sampleTicks)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ModbusTCP{
		plc:       plc{base: b, client: client, logger: logger},
		port:      port,
		reversed:  reversed,
		regClient: client,
	}, nil
}

// SetClient aliases a register client shared with another connection.
func (c *ModbusTCP) SetClient(cl device.Client) error {
	rc, ok := cl.(device.RegisterClient)
	if !ok {
		return errors.New(errors.ErrCodeBadArgument,
			"shared client is not a register client").
			WithField("connection", c.name).Err()
	}
	if err := c.plc.SetClient(cl); err != nil {
		return err
	}
	c.regClient = rc
	return nil
}

// AddReader binds a reader to a modbus data item.
func (c *ModbusTCP) AddReader(name, address string, typ datatype.DataType, size int) error {
	r, err := variable.NewModbusReader(name, address, typ, size, c.regClient, c.reversed)
	if err != nil {
		return err
	}
	return c.addReader(r)
}

// AddWriter binds a writer mirroring the given source reader.
func (c *ModbusTCP) AddWriter(name, address string, source variable.Reader) error {
	w, err := variable.NewModbusWriter(name, address, source, c.regClient, c.reversed)
	if err != nil {
		return err
	}
	return c.addWriter(w)
}

func (c *ModbusTCP) Parameters() []Param {
	return []Param{
		{"type", c.typeTag},
		{"address", c.address},
		{"port", strconv.Itoa(c.port)},
		{"reversed", strconv.FormatBool(c.reversed)},
		{"sample ticks", strconv.Itoa(c.sampleTicks)},
	}
}

// S7 is a connection to a Siemens PLC.
type S7 struct {
	plc
	rack, slot int
	tagClient  device.TagClient
}

// NewS7 creates an s7 connection over the given tag client.
func NewS7(name, address string, rack, slot, sampleTicks int,
	client device.TagClient, logger *log.Logger) (*S7, error) {

	b, err := newBase(name, "s7", address, sampleTicks)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &S7{
		plc:       plc{base: b, client: client, logger: logger},
		rack:      rack,
		slot:      slot,
		tagClient: client,
	}, nil
}

// SetClient aliases a tag client shared with another connection.
func (c *S7) SetClient(cl device.Client) error {
	tc, ok := cl.(device.TagClient)
	if !ok {
		return errors.New(errors.ErrCodeBadArgument,
			"shared client is not a tag client").
			WithField("connection", c.name).Err()
	}
	if err := c.plc.SetClient(cl); err != nil {
		return err
	}
	c.tagClient = tc
	return nil
}

// AddReader binds a reader to an s7 item.
func (c *S7) AddReader(name, address string, typ datatype.DataType, size int) error {
	r, err := variable.NewS7Reader(name, address, typ, size, c.tagClient)
	if err != nil {
		return err
	}
	return c.addReader(r)
}

// AddWriter binds a writer mirroring the given source reader.
func (c *S7) AddWriter(name, address string, source variable.Reader) error {
	w, err := variable.NewS7Writer(name, address, source, c.tagClient)
	if err != nil {
		return err
	}
	return c.addWriter(w)
}

func (c *S7) Parameters() []Param {
	return []Param{
		{"type", c.typeTag},
		{"address", c.address},
		{"rack", strconv.Itoa(c.rack)},
		{"slot", strconv.Itoa(c.slot)},
		{"sample ticks", strconv.Itoa(c.sampleTicks)},
	}
}

// OPCUA is a connection to an OPC UA server.
type OPCUA struct {
	plc
	port      int
	path      string
	discovery bool
	username  string
	tagClient device.TagClient
}

// NewOPCUA creates an OPC UA connection over the given tag client.
func NewOPCUA(name, address string, port int, path string, discovery bool,
	username string, sampleTicks int, client device.TagClient,
	logger *log.Logger) (*OPCUA, error) {

	b, err := newBase(name, "opcua", address, sampleTicks)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &OPCUA{
		plc:       plc{base: b, client: client, logger: logger},
		port:      port,
		path:      path,
		discovery: discovery,
		username:  username,
		tagClient: client,
	}, nil
}

// SetClient aliases a tag client shared with another connection.
func (c *OPCUA) SetClient(cl device.Client) error {
	tc, ok := cl.(device.TagClient)
	if !ok {
		return errors.New(errors.ErrCodeBadArgument,
			"shared client is not a tag client").
			WithField("connection", c.name).Err()
	}
	if err := c.plc.SetClient(cl); err != nil {
		return err
	}
	c.tagClient = tc
	return nil
}

// AddReader binds a reader to an OPC UA node.
func (c *OPCUA) AddReader(name, address string, typ datatype.DataType, size int) error {
	r, err := variable.NewOPCUAReader(name, address, typ, size, c.tagClient)
	if err != nil {
		return err
	}
	return c.addReader(r)
}

// AddWriter binds a writer mirroring the given source reader.
func (c *OPCUA) AddWriter(name, address string, source variable.Reader) error {
	w, err := variable.NewOPCUAWriter(name, address, source, c.tagClient)
	if err != nil {
		return err
	}
	return c.addWriter(w)
}

func (c *OPCUA) Parameters() []Param {
	return []Param{
		{"type", c.typeTag},
		{"address", c.address},
		{"port", strconv.Itoa(c.port)},
		{"path", c.path},
		{"discovery", strconv.FormatBool(c.discovery)},
		{"username", c.username},
		{"sample ticks", strconv.Itoa(c.sampleTicks)},
	}
}
