// Package ipc implements the jidl wire protocol: a framed, TLS-gated
// request/response exchange with a one byte status code and a JSON body.
package ipc

// Status is the one byte frame status. The value space is partitioned:
// 0-63 requests, 64-127 good responses, 128-191 bad responses.
type Status byte

const (
	// Requests. The low bits state which body fields are present.
	StatusRequestBare    Status = 0 // neither method nor payload
	StatusRequestMethod  Status = 1 // method only
	StatusRequestPayload Status = 2 // payload only
	StatusRequestFull    Status = 3 // method and payload

	// Good responses.
	StatusOK          Status = 64
	StatusOKPayload   Status = 65

	// Bad responses.
	StatusError                 Status = 128
	StatusUnrecognizedProtocol  Status = 129
	StatusIncompleteData        Status = 130
	StatusInvalidStatusCode     Status = 131
	StatusInvalidBody           Status = 132
	StatusBufferOverflow        Status = 133
	StatusFailedRequestHandling Status = 134
)

// IsRequest reports whether s sits in the request partition.
func (s Status) IsRequest() bool { return s < 64 }

// IsGood reports whether s sits in the good response partition.
func (s Status) IsGood() bool { return s >= 64 && s < 128 }

// IsBad reports whether s sits in the bad response partition.
func (s Status) IsBad() bool { return s >= 128 && s < 192 }

// Valid reports whether s is a recognized code, not merely a partition
// member.
func (s Status) Valid() bool {
	switch s {
	case StatusRequestBare, StatusRequestMethod, StatusRequestPayload,
		StatusRequestFull,
		StatusOK, StatusOKPayload,
		StatusError, StatusUnrecognizedProtocol, StatusIncompleteData,
		StatusInvalidStatusCode, StatusInvalidBody, StatusBufferOverflow,
		StatusFailedRequestHandling:
		return true
	default:
		return false
	}
}

// HasMethod reports whether a request status declares a method field.
func (s Status) HasMethod() bool { return s.IsRequest() && s&1 != 0 }

// HasPayload reports whether a request status declares a payload field.
func (s Status) HasPayload() bool { return s.IsRequest() && s&2 != 0 }

// Text returns the human readable message carried by bad responses.
func (s Status) Text() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusOKPayload:
		return "payload"
	case StatusError:
		return "error"
	case StatusUnrecognizedProtocol:
		return "unrecognized protocol"
	case StatusIncompleteData:
		return "incomplete data"
	case StatusInvalidStatusCode:
		return "invalid status code"
	case StatusInvalidBody:
		return "invalid body"
	case StatusBufferOverflow:
		return "buffer overflow"
	case StatusFailedRequestHandling:
		return "failed request handling"
	default:
		return "unknown"
	}
}

// String implements fmt.Stringer for logging.
func (s Status) String() string {
	switch s {
	case StatusRequestBare:
		return "REQUEST"
	case StatusRequestMethod:
		return "REQUEST_METHOD"
	case StatusRequestPayload:
		return "REQUEST_PAYLOAD"
	case StatusRequestFull:
		return "REQUEST_FULL"
	case StatusOK:
		return "OK"
	case StatusOKPayload:
		return "OK_PAYLOAD"
	case StatusError:
		return "ERROR"
	case StatusUnrecognizedProtocol:
		return "UNRECOGNIZED_PROTOCOL"
	case StatusIncompleteData:
		return "INCOMPLETE_DATA"
	case StatusInvalidStatusCode:
		return "INVALID_STATUS_CODE"
	case StatusInvalidBody:
		return "INVALID_BODY"
	case StatusBufferOverflow:
		return "BUFFER_OVERFLOW"
	case StatusFailedRequestHandling:
		return "FAILED_REQUEST_HANDLING"
	default:
		return "UNKNOWN"
	}
}
