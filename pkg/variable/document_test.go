package variable

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/errors"
)

// fakeDocumentClient serves a fixed document.
type fakeDocumentClient struct {
	doc       map[string]interface{}
	connected bool
}

func (f *fakeDocumentClient) Connect(context.Context) error { f.connected = true; return nil }
func (f *fakeDocumentClient) Close() error                  { f.connected = false; return nil }
func (f *fakeDocumentClient) Connected() bool               { return f.connected }
func (f *fakeDocumentClient) Fetch(context.Context) error   { return nil }

func (f *fakeDocumentClient) Value(key string) (interface{}, bool) {
	v, ok := f.doc[key]
	return v, ok
}

func TestDocumentReaderRead(t *testing.T) {
	client := &fakeDocumentClient{doc: map[string]interface{}{
		"temp":    json.Number("21.5"),
		"count":   json.Number("42"),
		"running": true,
		"label":   "line 3",
	}}

	tests := []struct {
		name    string
		address string
		typ     datatype.DataType
		text    string
	}{
		{"real", "temp", datatype.TypeReal, "21.5"},
		{"integer", "count", datatype.TypeInteger, "42"},
		{"boolean", "running", datatype.TypeBoolean, "true"},
		{"text", "label", datatype.TypeText, "line 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewDocumentReader(tt.name, tt.address, tt.typ, 0, client)
			if err != nil {
				t.Fatalf("NewDocumentReader: %v", err)
			}
			if err := r.Read(context.Background()); err != nil {
				t.Fatalf("Read: %v", err)
			}
			if got := r.Text(); got != tt.text {
				t.Errorf("Text = %q, want %q", got, tt.text)
			}
		})
	}
}

func TestDocumentReaderLosslessNumbers(t *testing.T) {
	// 16 significant digits survive; a float64 hop would mangle them.
	client := &fakeDocumentClient{doc: map[string]interface{}{
		"precise": json.Number("1234567.890123456"),
	}}
	r, err := NewDocumentReader("precise", "precise", datatype.TypeReal, 0, client)
	if err != nil {
		t.Fatalf("NewDocumentReader: %v", err)
	}
	if err := r.Read(context.Background()); err != nil {
		t.Fatalf("Read: %v", err)
	}

	d, ok := r.Value().(decimal.Decimal)
	if !ok {
		t.Fatalf("Value = %T, want decimal.Decimal", r.Value())
	}
	if d.String() != "1234567.890123456" {
		t.Errorf("Value = %s", d)
	}
}

func TestDocumentReaderMissingField(t *testing.T) {
	client := &fakeDocumentClient{doc: map[string]interface{}{}}
	r, err := NewDocumentReader("temp", "temp", datatype.TypeReal, 0, client)
	if err != nil {
		t.Fatalf("NewDocumentReader: %v", err)
	}

	err = r.Read(context.Background())
	if !errors.IsCode(err, errors.ErrCodeDeviceRead) {
		t.Fatalf("error = %v, want device read error", err)
	}
}

func TestCoerceDocumentValue(t *testing.T) {
	tests := []struct {
		name    string
		raw     interface{}
		typ     datatype.DataType
		want    string
		wantErr bool
	}{
		{name: "integer from whole number", raw: json.Number("7"), typ: datatype.TypeInteger, want: "7"},
		{name: "integer rejects fraction", raw: json.Number("7.5"), typ: datatype.TypeInteger, wantErr: true},
		{name: "integer rejects string", raw: "7", typ: datatype.TypeInteger, wantErr: true},
		{name: "boolean rejects number", raw: json.Number("1"), typ: datatype.TypeBoolean, wantErr: true},
		{name: "text rejects number", raw: json.Number("1"), typ: datatype.TypeText, wantErr: true},
		{name: "float from plain float64", raw: 2.5, typ: datatype.TypeFloat, want: "2.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := coerceDocumentValue(tt.raw, tt.typ)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.IsCode(err, errors.ErrCodeTypeMismatch) {
					t.Errorf("error code = %d, want type mismatch", errors.GetCode(err))
				}
				return
			}
			if got := ValueText(v); got != tt.want {
				t.Errorf("value = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDocumentReaderCoercionFailureClearsValue(t *testing.T) {
	client := &fakeDocumentClient{doc: map[string]interface{}{
		"count": json.Number("42"),
	}}
	r, err := NewDocumentReader("count", "count", datatype.TypeInteger, 0, client)
	if err != nil {
		t.Fatalf("NewDocumentReader: %v", err)
	}
	if err := r.Read(context.Background()); err != nil {
		t.Fatalf("Read: %v", err)
	}

	client.doc["count"] = "not a number"
	if err := r.Read(context.Background()); err == nil {
		t.Fatal("want coercion error")
	}
	if r.Value() != nil {
		t.Errorf("Value after coercion failure = %v, want nil", r.Value())
	}
}
