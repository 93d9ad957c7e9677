package variable

import (
	"context"
	"time"

	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/device"
)

const opcuaReadTimeout = 3 * time.Second

// OPCUAReader reads one node from an OPC UA server. The address is the
// node identifier; validation is delegated to the transport.
type OPCUAReader struct {
	base
	client device.TagClient
}

func NewOPCUAReader(name, address string, typ datatype.DataType, size int,
	client device.TagClient) (*OPCUAReader, error) {

	return &OPCUAReader{
		base:   base{name: name, address: address, typ: typ, size: size},
		client: client,
	}, nil
}

func (r *OPCUAReader) Read(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opcuaReadTimeout)
	defer cancel()

	v, err := r.client.ReadTag(ctx, r.address)
	if err != nil {
		return err
	}
	r.setValue(v)
	return nil
}

// OPCUAWriter mirrors a source reader onto an OPC UA node.
type OPCUAWriter struct {
	base
	source Reader
	client device.TagClient
}

func NewOPCUAWriter(name, address string, source Reader,
	client device.TagClient) (*OPCUAWriter, error) {

	return &OPCUAWriter{
		base:   base{name: name, address: address, typ: source.Type()},
		source: source,
		client: client,
	}, nil
}

func (w *OPCUAWriter) Source() Reader { return w.source }

func (w *OPCUAWriter) Write(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opcuaReadTimeout)
	defer cancel()

	val := w.source.Value()
	w.setValue(val)
	return w.client.WriteTag(ctx, w.address, val)
}
