package config

import (
	"context"
	"crypto/tls"
	"strconv"

	"github.com/ilguido/jidl/pkg/connection"
	"github.com/ilguido/jidl/pkg/datatype"
	"github.com/ilguido/jidl/pkg/device"
	"github.com/ilguido/jidl/pkg/errors"
	"github.com/ilguido/jidl/pkg/ipc"
	"github.com/ilguido/jidl/pkg/log"
	"github.com/ilguido/jidl/pkg/logger"
	"github.com/ilguido/jidl/pkg/qualifier"
	"github.com/ilguido/jidl/pkg/sink"
	"github.com/ilguido/jidl/pkg/tlsutil"
	"github.com/ilguido/jidl/pkg/variable"
)

// Runtime is everything Build assembles from the configuration: the
// logger with its sink and connections, and the optional archiver and
// IPC server.
type Runtime struct {
	Bootstrap *Bootstrap
	Logger    *logger.Logger
	// Archiver is nil without a [dataarchiver] section.
	Archiver *logger.Archiver
	// Server is nil without the ipc_* global settings. It is returned
	// unstarted.
	Server *ipc.Server
}

// readerAdder is implemented by every connection variant.
type readerAdder interface {
	AddReader(name, address string, typ datatype.DataType, size int) error
}

// writerAdder is implemented by the writeable variants.
type writerAdder interface {
	AddWriter(name, address string, source variable.Reader) error
}

// Build opens the sink named by the bootstrap, loads the stored
// configuration from it and assembles the runtime. Sections are
// classified by the form of their ID: the empty ID holds the global
// settings, plain names are connections, qualified names are readers
// and writers.
func Build(ctx context.Context, b *Bootstrap, remoteControl bool, lg *log.Logger) (*Runtime, error) {
	if lg == nil {
		lg = log.Default()
	}

	snk, err := newSink(b.Sink, lg)
	if err != nil {
		return nil, err
	}
	if err := snk.Open(ctx); err != nil {
		return nil, err
	}

	dec := NewDecrypter(b.Sink.Key)

	rows, err := snk.Configuration(ctx)
	if err != nil {
		return nil, err
	}
	sections, err := ParseRows(rows)
	if err != nil {
		return nil, err
	}

	var globals Section
	var connSections, readerSections, writerSections []Section
	qualifiers := make(map[string]qualifier.Qualifier)
	for _, s := range sections {
		if s.ID == "" {
			globals = s
			continue
		}
		q, err := qualifier.Split(s.ID)
		if err != nil {
			return nil, err
		}
		qualifiers[s.ID] = q
		switch {
		case q.IsConnection():
			connSections = append(connSections, s)
		case q.IsWriter():
			writerSections = append(writerSections, s)
		default:
			readerSections = append(readerSections, s)
		}
	}

	clientTLS, serverTLS, ipcPort, err := tlsSettings(globals, dec)
	if err != nil {
		return nil, err
	}

	conns := make([]connection.Connection, 0, len(connSections))
	for _, s := range connSections {
		c, err := buildConnection(s, dec, clientTLS, lg)
		if err != nil {
			return nil, err
		}
		shareClient(conns, c)
		conns = append(conns, c)
	}

	// Readers before writers: a writer's source must already exist.
	readers := make(map[string]variable.Reader)
	for _, s := range readerSections {
		q := qualifiers[s.ID]
		c := findConnection(conns, q.Connection)
		if c == nil {
			return nil, errors.NotFound("connection", q.Connection).Err()
		}
		address, ok := s.Get("address")
		if !ok {
			return nil, errors.Newf(errors.ErrCodeConfigInvalid,
				"section %q has no address", s.ID).Err()
		}
		typeName, ok := s.Get("type")
		if !ok {
			return nil, errors.Newf(errors.ErrCodeConfigInvalid,
				"section %q has no type", s.ID).Err()
		}
		typ, size, err := datatype.Parse(typeName)
		if err != nil {
			return nil, err
		}
		if err := c.(readerAdder).AddReader(q.Variable, address, typ, size); err != nil {
			return nil, err
		}
		readers[s.ID] = c.Reader(q.Variable)
	}

	for _, s := range writerSections {
		q := qualifiers[s.ID]
		c := findConnection(conns, q.Connection)
		if c == nil {
			return nil, errors.NotFound("connection", q.Connection).Err()
		}
		wa, ok := c.(writerAdder)
		if !ok {
			return nil, errors.Newf(errors.ErrCodeConfigInvalid,
				"cannot write to a %s connection", c.TypeTag()).Err()
		}
		address, ok := s.Get("address")
		if !ok {
			return nil, errors.Newf(errors.ErrCodeConfigInvalid,
				"section %q has no address", s.ID).Err()
		}
		source := readers[q.Source.String()]
		if source == nil {
			return nil, errors.Newf(errors.ErrCodeConfigInvalid,
				"%q is not a valid source", q.Source.String()).Err()
		}
		if err := wa.AddWriter(q.Variable, address, source); err != nil {
			return nil, err
		}
	}

	for _, c := range conns {
		cols := make([]sink.Column, 0, len(c.Readers()))
		for _, r := range c.Readers() {
			cols = append(cols, sink.Column{Name: r.Name(), Type: r.Type()})
		}
		if err := snk.AddTable(ctx, c.Name(), cols); err != nil {
			return nil, err
		}
	}

	dir := b.Sink.Dir
	if dir == "" {
		dir = "."
	}
	lgr, err := logger.New(b.Sink.Name, dir, snk, conns, lg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Bootstrap: b, Logger: lgr}

	if b.Archiver != nil {
		arch, err := logger.NewArchiver(snk, lg)
		if err != nil {
			return nil, err
		}
		if err := arch.Set(b.Archiver.DayOfWeek, b.Archiver.Interval,
			b.Archiver.Monthly); err != nil {
			return nil, err
		}
		rt.Archiver = arch
	}

	if serverTLS != nil {
		srv, err := ipc.NewServer(ipc.ServerConfig{
			Addr: ":" + strconv.Itoa(ipcPort),
			TLS:  serverTLS,
		}, logger.NewHandler(lgr, remoteControl), lg)
		if err != nil {
			return nil, err
		}
		rt.Server = srv
	}

	return rt, nil
}

func newSink(s SinkSettings, lg *log.Logger) (sink.Sink, error) {
	net := sink.NetworkConfig{
		Name:     s.Name,
		Server:   s.Server,
		Port:     s.Port,
		Username: s.Username,
		Password: s.Password,
	}
	switch s.Type {
	case "dummy":
		return sink.NewDummy(s.Name, s.Dir, lg), nil
	case "sqlite":
		return sink.NewSQLite(sink.SQLiteConfig{Name: s.Name, Dir: s.Dir}, lg), nil
	case "mariadb":
		return sink.NewMariaDB(net, lg), nil
	case "monetdb":
		return sink.NewMonetDB(net, lg), nil
	case "postgres":
		return sink.NewPostgres(net, lg), nil
	case "mssql":
		return sink.NewMSSQL(net, lg), nil
	}
	return nil, errors.Newf(errors.ErrCodeConfigInvalid,
		"unknown sink type %q", s.Type).Err()
}

// tlsSettings resolves the ipc_* keys of the global section. All five
// must be present together; the keystore passwords may be encrypted.
func tlsSettings(globals Section, dec *Decrypter) (client, server *tls.Config, port int, err error) {
	portS, okPort := globals.Get("ipc_port")
	keystore, okKS := globals.Get("ipc_keystore")
	keystorePW, okKSPW := globals.Get("ipc_keystorepw")
	truststore, okTS := globals.Get("ipc_truststore")
	truststorePW, okTSPW := globals.Get("ipc_truststorepw")
	if !okPort || !okKS || !okKSPW || !okTS || !okTSPW {
		return nil, nil, 0, nil
	}

	port, err = strconv.Atoi(portS)
	if err != nil {
		return nil, nil, 0, errors.Wrapf(err, errors.ErrCodeConfigParse,
			"ipc_port %q", portS).Err()
	}

	salt, _ := globals.Get("salt")
	iv, _ := globals.Get("iv")
	kpw, err := dec.Decrypt(keystorePW, salt, iv)
	if err != nil {
		return nil, nil, 0, err
	}
	tpw, err := dec.Decrypt(truststorePW, salt, iv)
	if err != nil {
		return nil, nil, 0, err
	}

	cert, err := tlsutil.LoadKeystore(keystore, kpw)
	if err != nil {
		return nil, nil, 0, err
	}
	pool, err := tlsutil.LoadTruststore(truststore, tpw)
	if err != nil {
		return nil, nil, 0, err
	}

	return tlsutil.ClientConfig(cert, pool, ""),
		tlsutil.ServerConfig(cert, pool), port, nil
}

// buildConnection assembles one connection from its section. Device
// clients come from the transport registry; json and jidlprotocol
// connections own their client.
func buildConnection(s Section, dec *Decrypter, clientTLS *tls.Config, lg *log.Logger) (connection.Connection, error) {
	typ, ok := s.Get("type")
	if !ok {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid,
			"%s: missing type", s.ID).Err()
	}

	seconds, hasSeconds := s.Get("seconds")
	deciseconds, hasDeciseconds := s.Get("deciseconds")
	ticks, err := parseSampleTime(seconds, deciseconds, hasSeconds, hasDeciseconds)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeConfigInvalid,
			"section %q", s.ID).Err()
	}

	address, _ := s.Get("address")

	switch typ {
	case "s7":
		rack, err := intKey(s, "rack")
		if err != nil {
			return nil, err
		}
		slot, err := intKey(s, "slot")
		if err != nil {
			return nil, err
		}
		cl, err := device.NewClient("s7", device.Params{
			Address: address, Rack: rack, Slot: slot,
		})
		if err != nil {
			return nil, err
		}
		tc, ok := cl.(device.TagClient)
		if !ok {
			return nil, errors.New(errors.ErrCodeInternal,
				"s7 transport is not a tag client").Err()
		}
		return connection.NewS7(s.ID, address, rack, slot, ticks, tc, lg)

	case "modbus-tcp":
		port, err := intKey(s, "port")
		if err != nil {
			return nil, err
		}
		reversed := boolKey(s, "reversed")
		cl, err := device.NewClient("modbus-tcp", device.Params{
			Address: address, Port: port,
		})
		if err != nil {
			return nil, err
		}
		rc, ok := cl.(device.RegisterClient)
		if !ok {
			return nil, errors.New(errors.ErrCodeInternal,
				"modbus transport is not a register client").Err()
		}
		return connection.NewModbusTCP(s.ID, address, port, reversed, ticks, rc, lg)

	case "opcua":
		port, err := intKey(s, "port")
		if err != nil {
			return nil, err
		}
		path, _ := s.Get("path")
		username, _ := s.Get("username")
		password, _ := s.Get("password")
		salt, _ := s.Get("salt")
		iv, _ := s.Get("iv")
		password, err = dec.Decrypt(password, salt, iv)
		if err != nil {
			return nil, err
		}
		cl, err := device.NewClient("opcua", device.Params{
			Address: address, Port: port, Path: path,
			Discovery: boolKey(s, "discovery"),
			Username:  username, Password: password,
		})
		if err != nil {
			return nil, err
		}
		tc, ok := cl.(device.TagClient)
		if !ok {
			return nil, errors.New(errors.ErrCodeInternal,
				"opcua transport is not a tag client").Err()
		}
		return connection.NewOPCUA(s.ID, address, port, path,
			boolKey(s, "discovery"), username, ticks, tc, lg)

	case "json":
		return connection.NewJSON(s.ID, address, ticks, lg)

	case "jidlprotocol":
		return connection.NewJidl(s.ID, address, ticks, clientTLS, lg)
	}

	return nil, errors.Newf(errors.ErrCodeConfigInvalid,
		"%s: unknown connection type %q", s.ID, typ).Err()
}

// shareClient aliases the client of an earlier connection with the
// same type and address, when both sides allow sharing.
func shareClient(conns []connection.Connection, c connection.Connection) {
	sc, ok := c.(connection.Shareable)
	if !ok {
		return
	}
	for _, prev := range conns {
		if prev.TypeTag() != c.TypeTag() || prev.Address() != c.Address() {
			continue
		}
		if psc, ok := prev.(connection.Shareable); ok {
			sc.SetClient(psc.Client())
			return
		}
	}
}

func findConnection(conns []connection.Connection, name string) connection.Connection {
	for _, c := range conns {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func intKey(s Section, key string) (int, error) {
	v, ok := s.Get(key)
	if !ok {
		return 0, errors.Newf(errors.ErrCodeConfigInvalid,
			"section %q has no %s", s.ID, key).Err()
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrCodeConfigParse,
			"section %q: %s %q", s.ID, key, v).Err()
	}
	return n, nil
}

func boolKey(s Section, key string) bool {
	v, _ := s.Get(key)
	b, _ := strconv.ParseBool(v)
	return b
}
