package variable

import (
	"context"
	"testing"

	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/errors"
)

type fakeTagClient struct {
	tags      map[string]interface{}
	readErr   error
	wroteTag  string
	wroteVal  interface{}
	connected bool
}

func (f *fakeTagClient) Connect(context.Context) error { f.connected = true; return nil }
func (f *fakeTagClient) Close() error                  { f.connected = false; return nil }
func (f *fakeTagClient) Connected() bool               { return f.connected }

func (f *fakeTagClient) ReadTag(_ context.Context, tag string) (interface{}, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	v, ok := f.tags[tag]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeDeviceRead, "no item %q", tag).Err()
	}
	return v, nil
}

func (f *fakeTagClient) WriteTag(_ context.Context, tag string, v interface{}) error {
	f.wroteTag = tag
	f.wroteVal = v
	return nil
}

func TestS7TypeCode(t *testing.T) {
	tests := []struct {
		typ  datatype.DataType
		want string
	}{
		{datatype.TypeBoolean, "BOOL"},
		{datatype.TypeByte, "BYTE"},
		{datatype.TypeInteger, "INT"},
		{datatype.TypeWord, "WORD"},
		{datatype.TypeDoubleInteger, "DINT"},
		{datatype.TypeReal, "REAL"},
		{datatype.TypeText, "STRING"},
	}
	for _, tt := range tests {
		got, err := s7TypeCode(tt.typ)
		if err != nil || got != tt.want {
			t.Errorf("s7TypeCode(%s) = %q, %v", tt.typ, got, err)
		}
	}

	if _, err := s7TypeCode(datatype.TypeFloat); !errors.IsCode(err, errors.ErrCodeTypeMismatch) {
		t.Errorf("FLOAT error = %v", err)
	}
}

func TestS7ReaderRead(t *testing.T) {
	cl := &fakeTagClient{tags: map[string]interface{}{
		"%DB10.DBD4:REAL": float64(21.5),
	}}

	r, err := NewS7Reader("pressure", "DB10.DBD4", datatype.TypeReal, 0, cl)
	if err != nil {
		t.Fatalf("NewS7Reader: %v", err)
	}
	if err := r.Read(context.Background()); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Text() != "21.5" {
		t.Errorf("Text = %q", r.Text())
	}

	missing, err := NewS7Reader("ghost", "DB10.DBD8", datatype.TypeReal, 0, cl)
	if err != nil {
		t.Fatalf("NewS7Reader: %v", err)
	}
	if err := missing.Read(context.Background()); !errors.IsCode(err, errors.ErrCodeDeviceRead) {
		t.Errorf("Read error = %v", err)
	}
}

func TestS7WriterMirrorsSource(t *testing.T) {
	cl := &fakeTagClient{tags: map[string]interface{}{
		"%DB10.DBD4:REAL": float64(21.5),
	}}
	src, err := NewS7Reader("pressure", "DB10.DBD4", datatype.TypeReal, 0, cl)
	if err != nil {
		t.Fatalf("NewS7Reader: %v", err)
	}
	if err := src.Read(context.Background()); err != nil {
		t.Fatalf("Read: %v", err)
	}

	w, err := NewS7Writer("setpoint", "DB20.DBD0", src, cl)
	if err != nil {
		t.Fatalf("NewS7Writer: %v", err)
	}
	if w.Type() != src.Type() || w.Source() != src {
		t.Error("writer does not mirror its source")
	}
	if err := w.Write(context.Background()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if cl.wroteTag != "%DB20.DBD0:REAL" || cl.wroteVal != float64(21.5) {
		t.Errorf("wrote %v to %q", cl.wroteVal, cl.wroteTag)
	}
}

func TestOPCUAVariables(t *testing.T) {
	cl := &fakeTagClient{tags: map[string]interface{}{
		"ns=2;s=Plant.Temp": float64(386.5),
	}}

	r, err := NewOPCUAReader("temp", "ns=2;s=Plant.Temp", datatype.TypeReal, 0, cl)
	if err != nil {
		t.Fatalf("NewOPCUAReader: %v", err)
	}
	if err := r.Read(context.Background()); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Text() != "386.5" {
		t.Errorf("Text = %q", r.Text())
	}

	w, err := NewOPCUAWriter("echo", "ns=2;s=Plant.Echo", r, cl)
	if err != nil {
		t.Fatalf("NewOPCUAWriter: %v", err)
	}
	if err := w.Write(context.Background()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if cl.wroteTag != "ns=2;s=Plant.Echo" || cl.wroteVal != float64(386.5) {
		t.Errorf("wrote %v to %q", cl.wroteVal, cl.wroteTag)
	}
}
