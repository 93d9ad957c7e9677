package logger

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/ilguido/jidl/pkg/errors"
	"github.com/ilguido/jidl/pkg/qualifier"
)

// Handler serves the IPC methods against one logger. The start and
// stop methods are honoured only when remote control is enabled at
// construction.
type Handler struct {
	lg      *Logger
	control bool
}

// NewHandler binds the method surface to a logger.
func NewHandler(lg *Logger, control bool) *Handler {
	return &Handler{lg: lg, control: control}
}

// Handle dispatches one request. A returned error becomes a failed
// request response on the wire.
func (h *Handler) Handle(method string, payload map[string]interface{}) (map[string]interface{}, error) {
	switch method {
	case "values":
		return h.values(payload)
	case "start":
		if !h.control {
			return nil, errors.New(errors.ErrCodeRequestFailed,
				"remote control is disabled").Err()
		}
		// Starting a running logger is a no-op.
		if err := h.lg.Start(nil); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeRequestFailed,
				"cannot start data logging").Err()
		}
		return nil, nil
	case "stop":
		if !h.control {
			return nil, errors.New(errors.ErrCodeRequestFailed,
				"remote control is disabled").Err()
		}
		if err := h.lg.Stop(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeRequestFailed,
				"cannot stop data logging").Err()
		}
		return nil, nil
	case "trends":
		// Reserved for trend queries.
		return map[string]interface{}{}, nil
	}
	return nil, errors.Newf(errors.ErrCodeRequestFailed,
		"unknown method %q", method).Err()
}

// values resolves {connection: [variable, ...]} to the most recent
// cached reads, keyed by the full variable qualifier.
func (h *Handler) values(payload map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	for connName, raw := range payload {
		c := h.lg.Connection(connName)
		if c == nil {
			return nil, errors.NotFound("connection", connName).Err()
		}
		vars, ok := raw.([]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrCodeRequestFailed,
				"variable list of %q is not an array", connName).Err()
		}
		for _, v := range vars {
			name, ok := v.(string)
			if !ok {
				return nil, errors.Newf(errors.ErrCodeRequestFailed,
					"variable name of %q is not a string", connName).Err()
			}
			r := c.Reader(name)
			if r == nil {
				return nil, errors.NotFound("variable",
					qualifier.Join(name, connName)).Err()
			}
			out[qualifier.Join(name, connName)] = jsonValue(r.Value())
		}
	}
	return out, nil
}

// jsonValue prepares a reader value for JSON encoding; decimals go out
// as plain numbers, not quoted strings.
func jsonValue(v interface{}) interface{} {
	if d, ok := v.(decimal.Decimal); ok {
		return json.Number(d.String())
	}
	return v
}
