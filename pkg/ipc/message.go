package ipc

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/ilguido/jidl/pkg/errors"
)

// MaxSize is the largest body a frame may carry.
const MaxSize = 64 * 1024

// Magic opens every frame.
var Magic = [4]byte{'j', 'i', 'd', 'l'}

// Message is one decoded frame.
type Message struct {
	Status Status
	Body   map[string]interface{}
}

// NewRequest builds a request message; the status low bits advertise
// which body fields are present.
func NewRequest(method string, payload map[string]interface{}) Message {
	status := StatusRequestBare
	body := make(map[string]interface{})
	if method != "" {
		status |= StatusRequestMethod
		body["method"] = method
	}
	if payload != nil {
		status |= StatusRequestPayload
		body["payload"] = payload
	}
	return Message{Status: status, Body: body}
}

// NewOK builds a good response without payload.
func NewOK() Message {
	return Message{Status: StatusOK, Body: map[string]interface{}{}}
}

// NewPayload builds a good response carrying a payload.
func NewPayload(payload map[string]interface{}) Message {
	return Message{
		Status: StatusOKPayload,
		Body:   map[string]interface{}{"payload": payload},
	}
}

// NewBad builds a bad response whose body carries the status text.
func NewBad(status Status) Message {
	return Message{
		Status: status,
		Body:   map[string]interface{}{"message": status.Text()},
	}
}

// Method returns the request method, empty when absent.
func (m Message) Method() string {
	s, _ := m.Body["method"].(string)
	return s
}

// Payload returns the request or response payload object, nil when
// absent.
func (m Message) Payload() map[string]interface{} {
	p, _ := m.Body["payload"].(map[string]interface{})
	return p
}

// TextMessage returns the body's message field, empty when absent.
func (m Message) TextMessage() string {
	s, _ := m.Body["message"].(string)
	return s
}

// Encode writes one frame and flushes it. Fails with a buffer overflow
// error when the encoded body exceeds MaxSize.
func Encode(w io.Writer, m Message) error {
	body := m.Body
	if body == nil {
		body = map[string]interface{}{}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidBody, "encoding body").Err()
	}
	if len(data) > MaxSize {
		return errors.Newf(errors.ErrCodeBufferOverflow,
			"body of %d bytes exceeds the %d byte frame limit", len(data), MaxSize).Err()
	}

	bw, flush := writerFor(w)
	if _, err := bw.Write(Magic[:]); err != nil {
		return err
	}
	if err := bw.WriteByte(byte(m.Status)); err != nil {
		return err
	}
	var lenbuf [2]byte
	binary.LittleEndian.PutUint16(lenbuf[:], uint16(len(data)))
	if _, err := bw.Write(lenbuf[:]); err != nil {
		return err
	}
	if _, err := bw.Write(data); err != nil {
		return err
	}
	return flush()
}

func writerFor(w io.Writer) (*bufio.Writer, func() error) {
	if bw, ok := w.(*bufio.Writer); ok {
		return bw, bw.Flush
	}
	bw := bufio.NewWriter(w)
	return bw, bw.Flush
}

// Decode reads one frame. On failure the returned error carries the
// code the responder should answer with; see ErrorStatus.
func Decode(r io.Reader) (Message, error) {
	var head [7]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Message{}, errors.Wrap(err, errors.ErrCodeIncompleteData,
			"reading frame header").Err()
	}
	if !bytes.Equal(head[:4], Magic[:]) {
		return Message{}, errors.Newf(errors.ErrCodeBadMagic,
			"bad frame magic % x", head[:4]).Err()
	}

	status := Status(head[4])
	if !status.Valid() {
		return Message{}, errors.Newf(errors.ErrCodeInvalidStatus,
			"unknown status byte 0x%02x", head[4]).Err()
	}

	length := binary.LittleEndian.Uint16(head[5:7])
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return Message{}, errors.Wrap(err, errors.ErrCodeIncompleteData,
			"reading frame body").Err()
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		return Message{}, errors.Wrap(err, errors.ErrCodeInvalidBody,
			"decoding frame body").Err()
	}

	return Message{Status: status, Body: body}, nil
}

// ErrorStatus maps a decode failure onto the bad response status the
// peer should receive.
func ErrorStatus(err error) Status {
	switch errors.GetCode(err) {
	case errors.ErrCodeBadMagic:
		return StatusUnrecognizedProtocol
	case errors.ErrCodeIncompleteData:
		return StatusIncompleteData
	case errors.ErrCodeInvalidStatus:
		return StatusInvalidStatusCode
	case errors.ErrCodeInvalidBody:
		return StatusInvalidBody
	case errors.ErrCodeBufferOverflow:
		return StatusBufferOverflow
	default:
		return StatusError
	}
}
