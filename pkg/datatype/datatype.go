// Package datatype defines the value types a variable can carry and
// their mapping onto SQL column types.
package datatype

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ilguido/jidl/pkg/errors"
)

// DataType identifies the wire type of a variable.
type DataType int

const (
	TypeUnknown DataType = iota
	TypeBoolean
	TypeInteger       // 16 bit signed
	TypeDoubleInteger // 32 bit signed
	TypeFloat         // 32 bit float read from a single register pair
	TypeReal          // IEEE 754 single precision
	TypeByte
	TypeWord       // 16 bit unsigned
	TypeDoubleWord // 32 bit unsigned
	TypeText
)

// String returns the canonical configuration spelling of the type.
func (t DataType) String() string {
	switch t {
	case TypeBoolean:
		return "BOOLEAN"
	case TypeInteger:
		return "INTEGER"
	case TypeDoubleInteger:
		return "DOUBLE_INTEGER"
	case TypeFloat:
		return "FLOAT"
	case TypeReal:
		return "REAL"
	case TypeByte:
		return "BYTE"
	case TypeWord:
		return "WORD"
	case TypeDoubleWord:
		return "DOUBLE_WORD"
	case TypeText:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}

// SQLiteType maps the type onto an SQLite column affinity. The network
// dialects reuse this mapping with their own spellings.
func (t DataType) SQLiteType() string {
	switch t {
	case TypeBoolean:
		return "NUMERIC"
	case TypeInteger, TypeDoubleInteger, TypeByte, TypeWord, TypeDoubleWord:
		return "INTEGER"
	case TypeFloat, TypeReal:
		return "REAL"
	case TypeText:
		return "TEXT"
	default:
		return "TEXT"
	}
}

// Wide reports whether the type spans two 16 bit registers.
func (t DataType) Wide() bool {
	switch t {
	case TypeDoubleInteger, TypeReal, TypeDoubleWord:
		return true
	default:
		return false
	}
}

// DefaultTextSize is the string length used when a TEXT declaration
// carries no explicit size.
const DefaultTextSize = 127

var textSizeRe = regexp.MustCompile(`^TEXT\((\d+)\)$`)

// Parse parses a configuration type declaration. TEXT may carry an
// explicit size suffix, e.g. "TEXT(6)"; the returned size is zero for
// every other type.
func Parse(s string) (DataType, int, error) {
	decl := strings.ToUpper(strings.TrimSpace(s))

	if m := textSizeRe.FindStringSubmatch(decl); m != nil {
		size, err := strconv.Atoi(m[1])
		if err != nil || size <= 0 {
			return TypeUnknown, 0, errors.Newf(errors.ErrCodeConfigParse,
				"bad TEXT size in type declaration %q", s).Err()
		}
		return TypeText, size, nil
	}

	switch decl {
	case "BOOLEAN":
		return TypeBoolean, 0, nil
	case "INTEGER":
		return TypeInteger, 0, nil
	case "DOUBLE_INTEGER":
		return TypeDoubleInteger, 0, nil
	case "FLOAT":
		return TypeFloat, 0, nil
	case "REAL":
		return TypeReal, 0, nil
	case "BYTE":
		return TypeByte, 0, nil
	case "WORD":
		return TypeWord, 0, nil
	case "DOUBLE_WORD":
		return TypeDoubleWord, 0, nil
	case "TEXT":
		return TypeText, DefaultTextSize, nil
	default:
		return TypeUnknown, 0, errors.Newf(errors.ErrCodeConfigParse,
			"unknown type declaration %q", s).Err()
	}
}
