package variable

import (
	"context"
	"time"

	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/device"
	"github.com/ilguido/jidl/pkg/errors"
)

// s7ReadTimeout bounds a single tag exchange with the PLC.
const s7ReadTimeout = time.Second

// s7TypeCode maps a data type onto the tag type code the transport
// expects, e.g. "%DB1.DBX0.0:BOOL".
func s7TypeCode(t datatype.DataType) (string, error) {
	switch t {
	case datatype.TypeBoolean:
		return "BOOL", nil
	case datatype.TypeByte:
		return "BYTE", nil
	case datatype.TypeText:
		return "STRING", nil
	case datatype.TypeInteger:
		return "INT", nil
	case datatype.TypeWord:
		return "WORD", nil
	case datatype.TypeDoubleInteger:
		return "DINT", nil
	case datatype.TypeReal:
		return "REAL", nil
	default:
		return "", errors.Newf(errors.ErrCodeTypeMismatch,
			"type %s is not addressable over s7", t).Err()
	}
}

type s7Variable struct {
	base
	tag    string
	client device.TagClient
}

func newS7Variable(name, address string, typ datatype.DataType, size int,
	client device.TagClient) (s7Variable, error) {

	code, err := s7TypeCode(typ)
	if err != nil {
		return s7Variable{}, err
	}
	return s7Variable{
		base:   base{name: name, address: address, typ: typ, size: size},
		tag:    "%" + address + ":" + code,
		client: client,
	}, nil
}

// S7Reader reads one tag from a Siemens PLC.
type S7Reader struct {
	s7Variable
}

// NewS7Reader binds a reader to a tag client. Address validation is
// delegated to the transport, which owns the item syntax.
func NewS7Reader(name, address string, typ datatype.DataType, size int,
	client device.TagClient) (*S7Reader, error) {

	sv, err := newS7Variable(name, address, typ, size, client)
	if err != nil {
		return nil, err
	}
	return &S7Reader{s7Variable: sv}, nil
}

func (r *S7Reader) Read(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s7ReadTimeout)
	defer cancel()

	v, err := r.client.ReadTag(ctx, r.tag)
	if err != nil {
		return err
	}
	r.setValue(v)
	return nil
}

// S7Writer mirrors a source reader onto a PLC tag.
type S7Writer struct {
	s7Variable
	source Reader
}

// NewS7Writer binds a writer to its source reader; the tag takes the
// source's type.
func NewS7Writer(name, address string, source Reader,
	client device.TagClient) (*S7Writer, error) {

	sv, err := newS7Variable(name, address, source.Type(), 0, client)
	if err != nil {
		return nil, err
	}
	return &S7Writer{s7Variable: sv, source: source}, nil
}

func (w *S7Writer) Source() Reader { return w.source }

func (w *S7Writer) Write(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s7ReadTimeout)
	defer cancel()

	val := w.source.Value()
	w.setValue(val)
	return w.client.WriteTag(ctx, w.tag, val)
}
