package ipc

import (
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ilguido/jidl/pkg/errors"
	"github.com/ilguido/jidl/pkg/log"
)

// Handler serves one decoded request and produces an optional payload.
// A nil payload with a nil error answers OK; a non-nil error answers
// FAILED_REQUEST_HANDLING.
type Handler interface {
	Handle(method string, payload map[string]interface{}) (map[string]interface{}, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(method string, payload map[string]interface{}) (map[string]interface{}, error)

func (f HandlerFunc) Handle(method string, payload map[string]interface{}) (map[string]interface{}, error) {
	return f(method, payload)
}

// ServerConfig holds the server settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":9095".
	Addr string
	// TLS must require and verify client certificates; see tlsutil.
	TLS *tls.Config
	// ReadTimeout bounds the framed read of one request.
	ReadTimeout time.Duration
}

// Server accepts TLS connections and serves one framed request per
// connection.
type Server struct {
	cfg     ServerConfig
	handler Handler
	logger  *log.Logger

	listener    net.Listener
	connections sync.Map // map[net.Conn]struct{}
	wg          sync.WaitGroup
	started     int32
	closed      int32
}

// NewServer creates a server. The TLS configuration is mandatory: the
// protocol is never served in the clear.
func NewServer(cfg ServerConfig, handler Handler, logger *log.Logger) (*Server, error) {
	if cfg.TLS == nil {
		return nil, errors.New(errors.ErrCodeAuthMaterial,
			"ipc server requires TLS material").Err()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{cfg: cfg, handler: handler, logger: logger}, nil
}

// Start binds the listener and begins accepting. Idempotent while
// running.
func (s *Server) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		atomic.StoreInt32(&s.started, 0)
		return errors.Wrapf(err, errors.ErrCodeProtocol,
			"listening on %s", s.cfg.Addr).Err()
	}
	s.listener = tls.NewListener(ln, s.cfg.TLS)
	atomic.StoreInt32(&s.closed, 0)

	s.logger.IPC().Info("ipc server started", "addr", s.cfg.Addr)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Started reports whether the server is accepting.
func (s *Server) Started() bool {
	return atomic.LoadInt32(&s.started) == 1
}

// Stop closes the listener and every in-flight connection. Idempotent.
func (s *Server) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.started, 1, 0) {
		return nil
	}
	atomic.StoreInt32(&s.closed, 1)

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.connections.Range(func(key, _ interface{}) bool {
		if conn, ok := key.(net.Conn); ok {
			conn.Close()
		}
		return true
	})
	s.wg.Wait()

	s.logger.IPC().Info("ipc server stopped")
	return err
}

// Addr returns the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.closed) == 1 {
				return
			}
			s.logger.IPC().Warn("accept failed", "error", err)
			continue
		}

		s.connections.Store(conn, struct{}{})
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer s.connections.Delete(c)
			defer c.Close()
			s.serveConn(c)
		}(conn)
	}
}

// serveConn reads one request, dispatches it, writes one response.
func (s *Server) serveConn(conn net.Conn) {
	conn.SetDeadline(time.Now().Add(s.cfg.ReadTimeout))

	req, err := Decode(conn)
	if err != nil {
		s.logger.IPC().Debug("bad frame", "remote", conn.RemoteAddr(), "error", err)
		s.respond(conn, NewBad(ErrorStatus(err)))
		return
	}

	if !req.Status.IsRequest() {
		s.respond(conn, NewBad(StatusInvalidStatusCode))
		return
	}

	payload, err := s.handle(req)
	if err != nil {
		s.logger.IPC().Debug("request failed",
			"method", req.Method(), "error", err)
		s.respond(conn, NewBad(StatusFailedRequestHandling))
		return
	}

	if payload == nil {
		s.respond(conn, NewOK())
	} else {
		s.respond(conn, NewPayload(payload))
	}
}

// handle shields the server from handler panics; a panicking handler
// yields a bad response, not a dead server.
func (s *Server) handle(req Message) (payload map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrCodePanic, "handler panic: %v", r).Err()
		}
	}()
	return s.handler.Handle(req.Method(), req.Payload())
}

func (s *Server) respond(conn net.Conn, m Message) {
	if err := Encode(conn, m); err != nil {
		s.logger.IPC().Debug("writing response failed",
			"remote", conn.RemoteAddr(), "error", err)
	}
}
