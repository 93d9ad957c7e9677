package variable

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/device"
	"github.com/ilguido/jidl/pkg/errors"
)

// readTimeout bounds a single register exchange.
const readTimeout = 3 * time.Second

// modbusVariable holds the decoded address of a modbus data item. The
// first character of the address selects the area (0 coil, 1 discrete
// input, 3 input register, 4 holding register), the rest is the offset.
type modbusVariable struct {
	base
	area     device.Area
	offset   uint16
	quantity int
	reversed bool
	client   device.RegisterClient
}

func parseModbusAddress(address string, typ datatype.DataType, size int) (device.Area, uint16, int, error) {
	if len(address) < 2 {
		return 0, 0, 0, errors.Newf(errors.ErrCodeAddressInvalid,
			"illegal modbus address %q", address).Err()
	}

	var area device.Area
	bit := false
	switch address[0] {
	case '0':
		area, bit = device.AreaCoil, true
	case '1':
		area, bit = device.AreaDiscreteInput, true
	case '3':
		area = device.AreaInputRegister
	case '4':
		area = device.AreaHoldingRegister
	default:
		return 0, 0, 0, errors.Newf(errors.ErrCodeAddressInvalid,
			"illegal modbus address %q", address).Err()
	}

	offset, err := strconv.ParseUint(address[1:], 10, 16)
	if err != nil {
		return 0, 0, 0, errors.Newf(errors.ErrCodeAddressInvalid,
			"illegal modbus offset in %q", address).Err()
	}

	// The addressed area must match the size of the requested type.
	var quantity int
	switch typ {
	case datatype.TypeBoolean:
		if !bit {
			return 0, 0, 0, errors.Newf(errors.ErrCodeAddressInvalid,
				"illegal modbus address for bit variable: %s", address).Err()
		}
		quantity = 1
	case datatype.TypeInteger, datatype.TypeFloat, datatype.TypeWord, datatype.TypeByte:
		if bit {
			return 0, 0, 0, errors.Newf(errors.ErrCodeAddressInvalid,
				"illegal modbus address for word variable: %s", address).Err()
		}
		quantity = 1
	case datatype.TypeDoubleInteger, datatype.TypeReal, datatype.TypeDoubleWord:
		if bit {
			return 0, 0, 0, errors.Newf(errors.ErrCodeAddressInvalid,
				"illegal modbus address for double word variable: %s", address).Err()
		}
		quantity = 2
	case datatype.TypeText:
		if bit {
			return 0, 0, 0, errors.Newf(errors.ErrCodeAddressInvalid,
				"illegal modbus address for string variable: %s", address).Err()
		}
		if size <= 0 {
			size = datatype.DefaultTextSize
		}
		quantity = size
	default:
		return 0, 0, 0, errors.Newf(errors.ErrCodeAddressInvalid,
			"illegal type %s for modbus", typ).Err()
	}

	return area, uint16(offset), quantity, nil
}

func newModbusVariable(name, address string, typ datatype.DataType, size int,
	client device.RegisterClient, reversed bool) (modbusVariable, error) {

	area, offset, quantity, err := parseModbusAddress(address, typ, size)
	if err != nil {
		return modbusVariable{}, err
	}
	return modbusVariable{
		base:     base{name: name, address: address, typ: typ, size: size},
		area:     area,
		offset:   offset,
		quantity: quantity,
		reversed: reversed,
		client:   client,
	}, nil
}

// decodeRegisters turns the raw register block into a typed value.
// With the default word order the last register holds the high word;
// reversed connections flip that.
func (v *modbusVariable) decodeRegisters(regs []uint16) (interface{}, error) {
	if len(regs) < v.quantity {
		return nil, errors.Newf(errors.ErrCodeDecode,
			"short register read for %s: got %d, want %d", v.name, len(regs), v.quantity).Err()
	}

	if v.quantity == 1 {
		switch v.typ {
		case datatype.TypeInteger:
			return int16(regs[0]), nil
		case datatype.TypeFloat:
			return float64(int16(regs[0])), nil
		case datatype.TypeByte:
			return uint8(regs[0] & 0xFF), nil
		default: // WORD
			return regs[0], nil
		}
	}

	ordered := make([]uint16, v.quantity)
	for i := 0; i < v.quantity; i++ {
		if v.reversed {
			ordered[i] = regs[i]
		} else {
			ordered[v.quantity-1-i] = regs[i]
		}
	}

	if v.typ == datatype.TypeText {
		var sb strings.Builder
		for _, r := range ordered {
			if r == 0 {
				break
			}
			sb.WriteRune(rune(r))
		}
		return sb.String(), nil
	}

	var u uint32
	for _, r := range ordered {
		u = (u << 16) | uint32(r)
	}
	switch v.typ {
	case datatype.TypeDoubleInteger:
		return int32(u), nil
	case datatype.TypeDoubleWord:
		return u, nil
	default: // REAL
		return math.Float32frombits(u), nil
	}
}

// encodeRegisters is the inverse of decodeRegisters for writers.
func (v *modbusVariable) encodeRegisters(val interface{}) ([]uint16, error) {
	if v.typ == datatype.TypeText {
		s, _ := val.(string)
		regs := make([]uint16, v.quantity)
		for i, r := range s {
			if i >= v.quantity {
				break
			}
			regs[i] = uint16(r)
		}
		if !v.reversed {
			for i, j := 0, len(regs)-1; i < j; i, j = i+1, j-1 {
				regs[i], regs[j] = regs[j], regs[i]
			}
		}
		return regs, nil
	}

	var u uint32
	switch x := val.(type) {
	case int16:
		return []uint16{uint16(x)}, nil
	case uint8:
		return []uint16{uint16(x)}, nil
	case uint16:
		return []uint16{x}, nil
	case float64:
		if v.quantity == 1 {
			return []uint16{uint16(int16(x))}, nil
		}
		u = math.Float32bits(float32(x))
	case float32:
		u = math.Float32bits(x)
	case int32:
		u = uint32(x)
	case uint32:
		u = x
	case nil:
		u = 0
	default:
		return nil, errors.Newf(errors.ErrCodeTypeMismatch,
			"cannot encode %T as %s", val, v.typ).Err()
	}

	if v.quantity == 1 {
		return []uint16{uint16(u)}, nil
	}
	hi, lo := uint16(u>>16), uint16(u&0xFFFF)
	if v.reversed {
		return []uint16{hi, lo}, nil
	}
	return []uint16{lo, hi}, nil
}

// ModbusReader reads one data item over a modbus register client.
type ModbusReader struct {
	modbusVariable
}

// NewModbusReader validates the address against the declared type and
// binds the reader to its client.
func NewModbusReader(name, address string, typ datatype.DataType, size int,
	client device.RegisterClient, reversed bool) (*ModbusReader, error) {

	mv, err := newModbusVariable(name, address, typ, size, client, reversed)
	if err != nil {
		return nil, err
	}
	return &ModbusReader{modbusVariable: mv}, nil
}

func (r *ModbusReader) Read(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	if r.typ == datatype.TypeBoolean {
		b, err := r.client.ReadBit(ctx, r.area, r.offset)
		if err != nil {
			return err
		}
		r.setValue(b)
		return nil
	}

	regs, err := r.client.ReadRegisters(ctx, r.area, r.offset, r.quantity)
	if err != nil {
		return err
	}
	v, err := r.decodeRegisters(regs)
	if err != nil {
		// The row proceeds with NULL for this tag.
		r.setValue(nil)
		return err
	}
	r.setValue(v)
	return nil
}

// ModbusWriter mirrors a source reader onto a modbus data item.
type ModbusWriter struct {
	modbusVariable
	source Reader
}

// NewModbusWriter binds a writer to its source reader. The writer takes
// the source's type; only coil and holding register areas are writable.
func NewModbusWriter(name, address string, source Reader,
	client device.RegisterClient, reversed bool) (*ModbusWriter, error) {

	mv, err := newModbusVariable(name, address, source.Type(), 0, client, reversed)
	if err != nil {
		return nil, err
	}
	if mv.area == device.AreaDiscreteInput || mv.area == device.AreaInputRegister {
		return nil, errors.Newf(errors.ErrCodeAddressInvalid,
			"modbus area %s is read-only: %s", mv.area, address).Err()
	}
	return &ModbusWriter{modbusVariable: mv, source: source}, nil
}

func (w *ModbusWriter) Source() Reader { return w.source }

func (w *ModbusWriter) Write(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	val := w.source.Value()
	w.setValue(val)

	if w.typ == datatype.TypeBoolean {
		b, _ := val.(bool)
		return w.client.WriteBit(ctx, w.offset, b)
	}

	regs, err := w.encodeRegisters(val)
	if err != nil {
		return err
	}
	return w.client.WriteRegisters(ctx, w.offset, regs)
}
