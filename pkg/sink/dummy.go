package sink

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/ini.v1"

	"github.com/ilguido/jidl/pkg/errors"
	"github.com/ilguido/jidl/pkg/log"
)

// Dummy is an in-memory sink. It keeps rows in maps instead of a
// database, and serves its configuration from <Name>.ini inside Dir.
// It is the development and test store; nothing survives a restart.
type Dummy struct {
	name   string
	dir    string
	logger *log.Logger

	mu      sync.RWMutex
	open    bool
	headers map[string][]string
	rows    map[string][]map[string]string
	diag    []DiagEntry
	config  []ConfigRow
}

// DiagEntry is one recorded diagnostics row.
type DiagEntry struct {
	Timestamp string
	Message   string
}

// NewDummy creates the in-memory sink. The configuration file is read
// lazily, on the first Configuration call.
func NewDummy(name, dir string, logger *log.Logger) *Dummy {
	if logger == nil {
		logger = log.Default()
	}
	return &Dummy{
		name:    name,
		dir:     dir,
		logger:  logger,
		headers: make(map[string][]string),
		rows:    make(map[string][]map[string]string),
	}
}

func (d *Dummy) Name() string    { return d.name }
func (d *Dummy) Dialect() string { return "dummy" }

func (d *Dummy) Open(ctx context.Context) error {
	d.mu.Lock()
	d.open = true
	d.mu.Unlock()
	d.logger.Sink().Info("dummy sink opened", "name", d.name)
	return nil
}

func (d *Dummy) Close() error {
	d.mu.Lock()
	d.open = false
	d.mu.Unlock()
	return nil
}

func (d *Dummy) checkOpen() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.open {
		return errors.New(errors.ErrCodeSinkUnavailable, "sink not open").Fatal().Err()
	}
	return nil
}

func (d *Dummy) AddTable(ctx context.Context, table string, cols []Column) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	header := []string{TimestampColumn}
	for _, col := range cols {
		header = append(header, col.Name)
	}
	d.mu.Lock()
	if _, ok := d.headers[table]; !ok {
		d.headers[table] = header
	}
	d.mu.Unlock()
	return nil
}

func (d *Dummy) Headers(table string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.headers[table]
}

func (d *Dummy) AddEntry(ctx context.Context, table string, row map[string]string) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.headers[table]; !ok {
		return errors.Newf(errors.ErrCodeTableMissing,
			"no such data table %q", table).Err()
	}
	copied := make(map[string]string, len(row))
	for k, v := range row {
		copied[k] = v
	}
	d.rows[table] = append(d.rows[table], copied)
	rowsInserted.WithLabelValues(table).Inc()
	return nil
}

// Rows returns the recorded entries of a data table. Test hook.
func (d *Dummy) Rows(table string) []map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rows[table]
}

func (d *Dummy) Log(ctx context.Context, message string, isError bool) error {
	if err := d.checkOpen(); err != nil {
		if isError {
			return err
		}
		return nil
	}
	if isError {
		message = "[E] " + strings.ReplaceAll(message, "'", "")
	}
	d.mu.Lock()
	d.diag = append(d.diag, DiagEntry{Timestamp: Timestamp(time.Now()), Message: message})
	d.mu.Unlock()
	diagnosticsWritten.Inc()
	return nil
}

// Diagnostics returns the recorded diagnostics rows. Test hook.
func (d *Dummy) Diagnostics() []DiagEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.diag
}

// Configuration serves the sections of <Name>.ini, one row per section,
// in file order. SaveConfiguration overrides the file for the rest of
// the process lifetime.
func (d *Dummy) Configuration(ctx context.Context) ([]ConfigRow, error) {
	d.mu.RLock()
	saved := d.config
	d.mu.RUnlock()
	if saved != nil {
		return saved, nil
	}

	path := filepath.Join(d.dir, d.name+".ini")
	f, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeConfigMissing,
			"loading %s", path).Err()
	}

	var out []ConfigRow
	for _, section := range f.Sections() {
		var b strings.Builder
		for _, key := range section.Keys() {
			b.WriteString(key.Name())
			b.WriteString("=")
			b.WriteString(key.Value())
			b.WriteString("\n")
		}
		if section.Name() == ini.DefaultSection && b.Len() == 0 {
			continue
		}
		id := section.Name()
		if id == ini.DefaultSection {
			id = ""
		}
		out = append(out, ConfigRow{ID: id, Data: b.String()})
	}
	return out, nil
}

func (d *Dummy) SaveConfiguration(ctx context.Context, rows []ConfigRow) error {
	copied := make([]ConfigRow, len(rows))
	copy(copied, rows)
	d.mu.Lock()
	d.config = copied
	d.mu.Unlock()
	return nil
}

func (d *Dummy) IsArchiver() bool { return false }

func (d *Dummy) Archive(ctx context.Context, retentionDays int) error {
	return errors.New(errors.ErrCodeArchiveFailed,
		"dummy sink does not support archiving").Err()
}
