// Package qualifier parses the configuration IDs that name
// connections, readers and writers:
//
//	name                                    connection section
//	var::connection                         reader section
//	var::connection<-srcVar::srcConnection  writer bound to a source reader
package qualifier

import (
	"regexp"
	"strings"

	"github.com/ilguido/jidl/pkg/errors"
)

var nameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Qualifier is one parsed configuration ID.
type Qualifier struct {
	Variable   string // empty for connection IDs
	Connection string
	Source     *Qualifier // non-nil for writer IDs; always a reader form
}

// IsConnection reports whether the ID names a bare connection.
func (q Qualifier) IsConnection() bool { return q.Variable == "" }

// IsWriter reports whether the ID binds a writer to a source reader.
func (q Qualifier) IsWriter() bool { return q.Source != nil }

// String reassembles the canonical ID.
func (q Qualifier) String() string {
	if q.IsConnection() {
		return q.Connection
	}
	s := q.Variable + "::" + q.Connection
	if q.Source != nil {
		s += "<-" + q.Source.String()
	}
	return s
}

// Join builds a reader qualifier from its parts.
func Join(variable, connection string) string {
	return variable + "::" + connection
}

// Split parses an ID strictly: every name component must match the
// identifier grammar and no separator may appear more than once.
func Split(id string) (Qualifier, error) {
	bad := func() (Qualifier, error) {
		return Qualifier{}, errors.Newf(errors.ErrCodeConfigParse,
			"malformed qualifier %q", id).Err()
	}

	target := id
	var source string
	if i := strings.Index(id, "<-"); i >= 0 {
		target, source = id[:i], id[i+2:]
		if strings.Contains(source, "<-") {
			return bad()
		}
	}

	q, ok := splitReaderOrName(target)
	if !ok {
		return bad()
	}

	if source != "" {
		sq, ok := splitReaderOrName(source)
		if !ok || sq.Variable == "" || q.Variable == "" {
			// A writer ID needs reader forms on both sides.
			return bad()
		}
		q.Source = &sq
	}

	return q, nil
}

func splitReaderOrName(s string) (Qualifier, bool) {
	parts := strings.Split(s, "::")
	switch len(parts) {
	case 1:
		if !nameRe.MatchString(parts[0]) {
			return Qualifier{}, false
		}
		return Qualifier{Connection: parts[0]}, true
	case 2:
		if !nameRe.MatchString(parts[0]) || !nameRe.MatchString(parts[1]) {
			return Qualifier{}, false
		}
		return Qualifier{Variable: parts[0], Connection: parts[1]}, true
	default:
		return Qualifier{}, false
	}
}
