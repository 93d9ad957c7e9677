package ipc

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/ilguido/jidl/pkg/errors"
	"github.com/ilguido/jidl/pkg/tlsutil"
)

// testEndpoints issues a throwaway CA and builds the mutual-auth TLS
// configurations both sides need.
func testEndpoints(t *testing.T) (*tls.Config, *tls.Config) {
	t.Helper()

	ca, err := tlsutil.NewAuthority()
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	serverCert, err := ca.Issue("localhost", true)
	if err != nil {
		t.Fatalf("issuing server certificate: %v", err)
	}
	clientCert, err := ca.Issue("test client", false)
	if err != nil {
		t.Fatalf("issuing client certificate: %v", err)
	}

	return tlsutil.ServerConfig(serverCert, ca.Pool()),
		tlsutil.ClientConfig(clientCert, ca.Pool(), "localhost")
}

func startServer(t *testing.T, handler Handler) (*Server, *Client) {
	t.Helper()

	serverTLS, clientTLS := testEndpoints(t)
	srv, err := NewServer(ServerConfig{Addr: "127.0.0.1:0", TLS: serverTLS}, handler, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return srv, NewClient(srv.Addr().String(), clientTLS, 5*time.Second)
}

func TestServerRoundTrip(t *testing.T) {
	handler := HandlerFunc(func(method string, payload map[string]interface{}) (map[string]interface{}, error) {
		if method != "values" {
			t.Errorf("method = %q, want values", method)
		}
		return map[string]interface{}{"temp::plc1": "21.5"}, nil
	})
	_, client := startServer(t, handler)

	got, err := client.Request("values", map[string]interface{}{
		"plc1": []interface{}{"temp"},
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if v, _ := got["temp::plc1"].(string); v != "21.5" {
		t.Errorf("payload = %v", got)
	}
}

func TestServerOKWithoutPayload(t *testing.T) {
	handler := HandlerFunc(func(string, map[string]interface{}) (map[string]interface{}, error) {
		return nil, nil
	})
	_, client := startServer(t, handler)

	got, err := client.Request("start", nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if got != nil {
		t.Errorf("payload = %v, want nil", got)
	}
}

func TestServerHandlerError(t *testing.T) {
	handler := HandlerFunc(func(string, map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New(errors.ErrCodeRequestFailed, "no such method").Err()
	})
	_, client := startServer(t, handler)

	_, err := client.Request("bogus", nil)
	if !errors.IsCode(err, errors.ErrCodeServerResponse) {
		t.Fatalf("error = %v, want server response error", err)
	}
}

func TestServerHandlerPanic(t *testing.T) {
	handler := HandlerFunc(func(string, map[string]interface{}) (map[string]interface{}, error) {
		panic("boom")
	})
	_, client := startServer(t, handler)

	// A panicking handler costs the request, not the server.
	if _, err := client.Request("values", nil); err == nil {
		t.Fatal("want error from panicking handler")
	}
	if _, err := client.Request("values", nil); err == nil {
		t.Fatal("server must survive the panic")
	}
}

func TestServerRejectsResponseStatus(t *testing.T) {
	handler := HandlerFunc(func(string, map[string]interface{}) (map[string]interface{}, error) {
		t.Error("handler must not run for a non-request status")
		return nil, nil
	})
	_, client := startServer(t, handler)

	conn, err := tls.Dial("tcp", client.addr, client.tlsCfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if err := Encode(conn, NewOK()); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	resp, err := Decode(conn)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.Status != StatusInvalidStatusCode {
		t.Errorf("status = %v, want %v", resp.Status, StatusInvalidStatusCode)
	}
}

func TestServerInvalidFrame(t *testing.T) {
	_, client := startServer(t, HandlerFunc(func(string, map[string]interface{}) (map[string]interface{}, error) {
		return nil, nil
	}))

	// Reach the raw connection through the client's own TLS settings.
	conn, err := tls.Dial("tcp", client.addr, client.tlsCfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := conn.Write([]byte("nope, not a frame")); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp, err := Decode(conn)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.Status != StatusUnrecognizedProtocol {
		t.Errorf("status = %v, want %v", resp.Status, StatusUnrecognizedProtocol)
	}
	if resp.TextMessage() != "unrecognized protocol" {
		t.Errorf("message = %q", resp.TextMessage())
	}
}

func TestServerLifecycle(t *testing.T) {
	serverTLS, _ := testEndpoints(t)
	srv, err := NewServer(ServerConfig{Addr: "127.0.0.1:0", TLS: serverTLS}, nil, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	if srv.Started() {
		t.Error("Started before Start")
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !srv.Started() {
		t.Error("not Started after Start")
	}
	if err := srv.Start(); err != nil {
		t.Errorf("second Start: %v", err)
	}

	if err := srv.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if srv.Started() {
		t.Error("Started after Stop")
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestNewServerRequiresTLS(t *testing.T) {
	_, err := NewServer(ServerConfig{Addr: ":0"}, nil, nil)
	if !errors.IsCode(err, errors.ErrCodeAuthMaterial) {
		t.Fatalf("error = %v, want auth material error", err)
	}
}
