package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestErrorString(t *testing.T) {
	err := New(ErrCodeSinkQuery, "reading configuration").Err()
	if got := err.Error(); got != "E4002: reading configuration" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := Wrap(stderrors.New("connection refused"),
		ErrCodeSinkUnavailable, "opening sink").Err()
	want := "E4001: opening sink: connection refused"
	if got := wrapped.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestCodeCategory(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{ErrCodeConfigInvalid, "configuration"},
		{ErrCodeDeviceRead, "device"},
		{ErrCodeTypeMismatch, "decode"},
		{ErrCodeSinkUnavailable, "sink"},
		{ErrCodeBadMagic, "ipc"},
		{ErrCodeKeystore, "auth"},
		{ErrCodePanic, "internal"},
		{Code(0), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.code.Category(); got != tt.want {
			t.Errorf("%s.Category() = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestGetCode(t *testing.T) {
	err := Newf(ErrCodeAddressInvalid, "illegal address %q", "500001").Err()
	if GetCode(err) != ErrCodeAddressInvalid {
		t.Errorf("GetCode = %v", GetCode(err))
	}
	if !IsCode(err, ErrCodeAddressInvalid) {
		t.Error("IsCode mismatch")
	}
	if !IsCategory(err, "decode") {
		t.Error("IsCategory mismatch")
	}

	// Codes survive a layer of wrapping.
	wrapped := fmt.Errorf("read pass: %w", err)
	if GetCode(wrapped) != ErrCodeAddressInvalid {
		t.Errorf("GetCode through wrap = %v", GetCode(wrapped))
	}

	// Foreign errors fall back to the internal code.
	if GetCode(stderrors.New("plain")) != ErrCodeInternal {
		t.Errorf("GetCode(plain) = %v", GetCode(stderrors.New("plain")))
	}
	if GetCode(nil) != ErrCodeInternal {
		t.Errorf("GetCode(nil) = %v", GetCode(nil))
	}
}

func TestSeverity(t *testing.T) {
	if GetSeverity(New(ErrCodeDeviceRead, "x").Err()) != SeverityError {
		t.Error("default severity is not error")
	}

	fatal := SinkUnavailable("sink gone").Err()
	if GetSeverity(fatal) != SeverityFatal {
		t.Errorf("SinkUnavailable severity = %v", GetSeverity(fatal))
	}
	if !IsCode(fatal, ErrCodeSinkUnavailable) {
		t.Error("SinkUnavailable code mismatch")
	}
	if !IsSevere(fatal) {
		t.Error("fatal error not severe")
	}
	if IsSevere(New(ErrCodeDeviceRead, "x").Warning().Err()) {
		t.Error("warning reported severe")
	}
}

func TestFields(t *testing.T) {
	err := NotFound("connection", "furnace").Err()
	fields := GetFields(err)
	if fields["entity"] != "connection" || fields["identifier"] != "furnace" {
		t.Errorf("fields = %v", fields)
	}
	if !strings.Contains(err.Error(), "connection not found: furnace") {
		t.Errorf("message = %q", err.Error())
	}

	err = New(ErrCodeDeviceTimeout, "x").
		WithField("connection", "plc1").
		WithFields(map[string]interface{}{"attempt": 2}).
		Err()
	fields = GetFields(err)
	if fields["connection"] != "plc1" || fields["attempt"] != 2 {
		t.Errorf("fields = %v", fields)
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := Wrap(cause, ErrCodeSinkExec, "inserting row").Err()
	if !Is(err, cause) {
		t.Error("cause lost in the chain")
	}

	var e *Error
	if !As(err, &e) {
		t.Fatal("As failed")
	}
	if e.Cause != cause {
		t.Error("Cause mismatch")
	}
}

func TestHelpers(t *testing.T) {
	if !IsCode(AlreadyExists("variable", "temp").Err(), ErrCodeDuplicateName) {
		t.Error("AlreadyExists code")
	}
	if !IsCode(InvalidInput("port", "not a number").Err(), ErrCodeBadArgument) {
		t.Error("InvalidInput code")
	}
	if !IsCode(Timeout("Connection.Read", 3*time.Second).Err(), ErrCodeDeviceTimeout) {
		t.Error("Timeout code")
	}
	if !IsCode(NotImplemented("trend queries").Err(), ErrCodeNotImplemented) {
		t.Error("NotImplemented code")
	}

	internal := Internal("impossible state").Build()
	if internal.Severity != SeverityCritical {
		t.Errorf("Internal severity = %v", internal.Severity)
	}
	if len(internal.Stack) == 0 {
		t.Error("Internal carries no stack")
	}
}

func TestDetailedFormat(t *testing.T) {
	err := Wrap(stderrors.New("refused"), ErrCodeSinkUnavailable, "opening sink").
		WithOp("Sink.Open").
		WithField("dialect", "mariadb").
		Build()

	out := fmt.Sprintf("%+v", err)
	for _, want := range []string{"E4001", "Operation: Sink.Open", "dialect: mariadb", "Caused by: refused"} {
		if !strings.Contains(out, want) {
			t.Errorf("%%+v output misses %q:\n%s", want, out)
		}
	}
}
