// Package config binds the two configuration layers together: a small
// bootstrap INI file that names the sink and the archiving schedule,
// and the full configuration served from the sink's configuration
// table, one INI-style section per row.
package config

import (
	"math"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/ilguido/jidl/pkg/errors"
	"github.com/ilguido/jidl/pkg/sink"
)

// Bootstrap is the content of the configuration file passed on the
// command line.
type Bootstrap struct {
	// Path the bootstrap was loaded from.
	Path string

	Sink     SinkSettings
	Archiver *ArchiverSettings
}

// SinkSettings is the [datalogger] section.
type SinkSettings struct {
	Type     string // dummy, sqlite, mariadb, monetdb, postgres, mssql
	Name     string
	Dir      string
	Server   string
	Port     int
	Username string
	Password string
	// Key is the shared password of the decrypter.
	Key string
}

// ArchiverSettings is the optional [dataarchiver] section.
type ArchiverSettings struct {
	DayOfWeek int // ISO, 1 Monday through 7 Sunday
	Interval  int
	Monthly   bool
}

var weekdays = map[string]int{
	"MONDAY": 1, "TUESDAY": 2, "WEDNESDAY": 3, "THURSDAY": 4,
	"FRIDAY": 5, "SATURDAY": 6, "SUNDAY": 7,
}

// LoadBootstrap reads and validates the bootstrap file.
func LoadBootstrap(path string) (*Bootstrap, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeConfigMissing,
			"loading %s", path).Err()
	}

	dl := f.Section("datalogger")
	if len(dl.Keys()) == 0 {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid,
			"%s has no [datalogger] section", path).Err()
	}

	b := &Bootstrap{
		Path: path,
		Sink: SinkSettings{
			Type:     dl.Key("type").String(),
			Name:     dl.Key("name").String(),
			Dir:      dl.Key("dir").String(),
			Server:   dl.Key("server").String(),
			Username: dl.Key("username").String(),
			Password: dl.Key("password").String(),
			Key:      dl.Key("key").String(),
		},
	}
	if port := dl.Key("port").String(); port != "" {
		b.Sink.Port, err = strconv.Atoi(port)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeConfigParse,
				"[datalogger] port %q", port).Err()
		}
	}
	if b.Sink.Type == "" || b.Sink.Name == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid,
			"[datalogger] needs at least type and name").Err()
	}

	if f.HasSection("dataarchiver") {
		da := f.Section("dataarchiver")
		day, ok := weekdays[strings.ToUpper(da.Key("day").String())]
		if !ok {
			return nil, errors.Newf(errors.ErrCodeConfigInvalid,
				"[dataarchiver] day %q", da.Key("day").String()).Err()
		}
		interval, err := da.Key("interval").Int()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigParse,
				"[dataarchiver] interval").Err()
		}
		b.Archiver = &ArchiverSettings{
			DayOfWeek: day,
			Interval:  interval,
			Monthly:   da.Key("monthly").MustBool(false),
		}
	}

	return b, nil
}

// Section is one row of the configuration table, parsed: the section
// ID and its keys. The empty ID is the global section.
type Section struct {
	ID   string
	Keys map[string]string
}

// Get returns the key's value and whether it is present.
func (s Section) Get(key string) (string, bool) {
	v, ok := s.Keys[key]
	return v, ok
}

// ParseRows parses the serialized key=value lines of the stored
// configuration rows.
func ParseRows(rows []sink.ConfigRow) ([]Section, error) {
	out := make([]Section, 0, len(rows))
	for _, r := range rows {
		f, err := ini.Load([]byte(r.Data))
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeConfigParse,
				"configuration section %q", r.ID).Err()
		}
		keys := make(map[string]string)
		for _, k := range f.Section(ini.DefaultSection).Keys() {
			keys[k.Name()] = k.Value()
		}
		out = append(out, Section{ID: r.ID, Keys: keys})
	}
	return out, nil
}

// SerializeSections renders sections back into configuration rows, in
// the given order.
func SerializeSections(sections []Section) []sink.ConfigRow {
	out := make([]sink.ConfigRow, 0, len(sections))
	for _, s := range sections {
		var b strings.Builder
		for k, v := range s.Keys {
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(v)
			b.WriteString("\n")
		}
		out = append(out, sink.ConfigRow{ID: s.ID, Data: b.String()})
	}
	return out
}

// parseSampleTime resolves the seconds/deciseconds pair of a
// connection section into ticks of one decisecond. Exactly one of the
// two may be set; sample times above one second are rounded to the
// nearest second.
func parseSampleTime(seconds, deciseconds string, hasSeconds, hasDeciseconds bool) (int, error) {
	if hasSeconds && hasDeciseconds {
		return 0, errors.New(errors.ErrCodeConfigInvalid,
			"connection has both seconds and deciseconds set").Err()
	}

	if hasSeconds {
		s, err := strconv.Atoi(seconds)
		if err != nil {
			return 0, errors.Wrapf(err, errors.ErrCodeConfigParse,
				"seconds %q", seconds).Err()
		}
		return 10 * s, nil
	}

	if hasDeciseconds {
		ds, err := strconv.Atoi(deciseconds)
		if err != nil {
			return 0, errors.Wrapf(err, errors.ErrCodeConfigParse,
				"deciseconds %q", deciseconds).Err()
		}
		if ds > 9 {
			return int(math.Round(float64(ds)/10.0)) * 10, nil
		}
		return ds, nil
	}

	return 0, nil
}
