package variable

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/device"
	"github.com/ilguido/jidl/pkg/errors"
)

// DocumentReader reads one field of a fetched document. It serves both
// JSON endpoint connections and remote jidl connections; the address is
// the document key.
type DocumentReader struct {
	base
	client device.DocumentClient
}

func NewDocumentReader(name, address string, typ datatype.DataType, size int,
	client device.DocumentClient) (*DocumentReader, error) {

	return &DocumentReader{
		base:   base{name: name, address: address, typ: typ, size: size},
		client: client,
	}, nil
}

// Read coerces the document field to the declared type. The document
// itself is refreshed by the connection once per cycle.
func (r *DocumentReader) Read(ctx context.Context) error {
	raw, ok := r.client.Value(r.address)
	if !ok {
		return errors.Newf(errors.ErrCodeDeviceRead,
			"field %q missing from document", r.address).Err()
	}

	v, err := coerceDocumentValue(raw, r.typ)
	if err != nil {
		// The row proceeds with NULL for this tag.
		r.setValue(nil)
		return err
	}
	r.setValue(v)
	return nil
}

// coerceDocumentValue converts a decoded JSON value to the declared
// type. Numbers arrive as json.Number and go through decimal so no
// precision is lost before the sink renders them as text.
func coerceDocumentValue(raw interface{}, typ datatype.DataType) (interface{}, error) {
	switch typ {
	case datatype.TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, typeMismatch(raw, typ)
		}
		return b, nil

	case datatype.TypeInteger, datatype.TypeDoubleInteger,
		datatype.TypeByte, datatype.TypeWord, datatype.TypeDoubleWord:
		d, err := documentNumber(raw)
		if err != nil {
			return nil, typeMismatch(raw, typ)
		}
		if !d.IsInteger() {
			return nil, errors.Newf(errors.ErrCodeTypeMismatch,
				"value %s is not an integer", d).Err()
		}
		return d.IntPart(), nil

	case datatype.TypeFloat, datatype.TypeReal:
		d, err := documentNumber(raw)
		if err != nil {
			return nil, typeMismatch(raw, typ)
		}
		return d, nil

	case datatype.TypeText:
		s, ok := raw.(string)
		if !ok {
			return nil, typeMismatch(raw, typ)
		}
		return s, nil

	default:
		return nil, errors.Newf(errors.ErrCodeTypeMismatch,
			"type %s is not addressable in a document", typ).Err()
	}
}

func documentNumber(raw interface{}) (decimal.Decimal, error) {
	switch n := raw.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case float64:
		return decimal.NewFromFloat(n), nil
	default:
		return decimal.Decimal{}, errors.Newf(errors.ErrCodeTypeMismatch,
			"not a number: %T", raw).Err()
	}
}

func typeMismatch(raw interface{}, typ datatype.DataType) error {
	return errors.Newf(errors.ErrCodeTypeMismatch,
		"cannot coerce %T to %s", raw, typ).Err()
}
