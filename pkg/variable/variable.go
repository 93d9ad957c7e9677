// Package variable implements the typed readers and writers a
// connection polls. A reader refreshes its value from a device client;
// a writer mirrors the value of a source reader back to a device.
package variable

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ilguido/jidl/pkg/datatype"
)

// NameRe is the grammar of variable and connection identifiers.
var NameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Reader refreshes a value from a device and exposes it as text.
type Reader interface {
	Name() string
	Address() string
	Type() datatype.DataType
	Read(ctx context.Context) error
	Value() interface{}
	Text() string
}

// Writer mirrors a source reader's value back to a device.
type Writer interface {
	Name() string
	Address() string
	Type() datatype.DataType
	Source() Reader
	Write(ctx context.Context) error
}

// base carries the fields common to every variable.
type base struct {
	name    string
	address string
	typ     datatype.DataType
	size    int // declared TEXT size, zero otherwise

	mu    sync.RWMutex
	value interface{}
}

func (b *base) Name() string            { return b.name }
func (b *base) Address() string         { return b.address }
func (b *base) Type() datatype.DataType { return b.typ }

func (b *base) Value() interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.value
}

func (b *base) setValue(v interface{}) {
	b.mu.Lock()
	b.value = v
	b.mu.Unlock()
}

// Text renders the current value for the sink. nil renders as the
// empty string.
func (b *base) Text() string {
	return ValueText(b.Value())
}

// ValueText renders a variable value as the text the sink stores.
func ValueText(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case decimal.Decimal:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
