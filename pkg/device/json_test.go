package device

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"

	"github.com/ilguido/jidl/pkg/errors"
)

// newDeviceStub routes a couple of document endpoints the way a plant
// gateway would expose them.
func newDeviceStub(hits *int64) *httptest.Server {
	r := mux.NewRouter()
	r.HandleFunc("/devices/{name}/document", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt64(hits, 1)
		name := mux.Vars(req)["name"]
		if name != "weather" {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"temp":    21.5,
			"running": true,
			"station": name,
		})
	}).Methods(http.MethodGet)

	return httptest.NewServer(r)
}

func TestJSONClientFetch(t *testing.T) {
	var hits int64
	srv := newDeviceStub(&hits)
	defer srv.Close()

	c := NewJSONClient(srv.URL+"/devices/weather/document", 0)

	if c.Connected() {
		t.Error("Connected before Connect")
	}
	if _, ok := c.Value("temp"); ok {
		t.Error("Value before any fetch")
	}

	// Connect probes the endpoint with a first fetch.
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !c.Connected() {
		t.Error("not Connected after Connect")
	}
	if atomic.LoadInt64(&hits) != 1 {
		t.Errorf("endpoint hit %d times, want 1", hits)
	}

	v, ok := c.Value("temp")
	if !ok {
		t.Fatal("temp missing from document")
	}
	if n, _ := v.(json.Number); n.String() != "21.5" {
		t.Errorf("temp = %v (%T), want json.Number 21.5", v, v)
	}
	if v, _ := c.Value("running"); v != true {
		t.Errorf("running = %v", v)
	}
	if _, ok := c.Value("absent"); ok {
		t.Error("absent key reported present")
	}

	if err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if atomic.LoadInt64(&hits) != 2 {
		t.Errorf("endpoint hit %d times, want 2", hits)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.Connected() {
		t.Error("Connected after Close")
	}
	if _, ok := c.Value("temp"); ok {
		t.Error("document survived Close")
	}
}

func TestJSONClientBadStatus(t *testing.T) {
	var hits int64
	srv := newDeviceStub(&hits)
	defer srv.Close()

	c := NewJSONClient(srv.URL+"/devices/unknown/document", 0)
	err := c.Connect(context.Background())
	if !errors.IsCode(err, errors.ErrCodeDeviceRead) {
		t.Fatalf("error = %v, want device read error", err)
	}
	if c.Connected() {
		t.Error("Connected after failed probe")
	}
}

func TestJSONClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := NewJSONClient(addr, 0)
	err := c.Fetch(context.Background())
	if !errors.IsCode(err, errors.ErrCodeDeviceUnreachable) {
		t.Fatalf("error = %v, want device unreachable", err)
	}
}

func TestJSONClientInvalidDocument(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/doc", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json"))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewJSONClient(srv.URL+"/doc", 0)
	err := c.Fetch(context.Background())
	if !errors.IsCode(err, errors.ErrCodeDecode) {
		t.Fatalf("error = %v, want decode error", err)
	}
}

func TestFactoryRegistry(t *testing.T) {
	RegisterFactory("test-transport", func(p Params) (Client, error) {
		return NewJSONClient(p.Address, p.Timeout), nil
	})

	c, err := NewClient("test-transport", Params{Address: "http://127.0.0.1:1/doc"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, ok := c.(*JSONClient); !ok {
		t.Errorf("client = %T", c)
	}

	if _, err := NewClient("no-such-transport", Params{}); err == nil {
		t.Fatal("want error for unregistered transport")
	}
}
