// Package protocol implements the docvault wire protocol: length-delimited
// frames carrying CBOR-encoded messages over a raw TCP stream. A frame is a
// single message type byte, a 4-byte big-endian payload length, and the
// payload itself.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"docvault/pkg/models"

	"github.com/fxamacker/cbor/v2"
)

// MaxPayloadSize caps a single frame's payload. Documents are carried inline,
// so the cap bounds the largest document the protocol accepts.
const MaxPayloadSize = 16 << 20

// MessageType identifies the payload carried by a frame.
type MessageType byte

const (
	TypeLogin            MessageType = 0x01
	TypeLoginResponse    MessageType = 0x02
	TypeCheckin          MessageType = 0x03
	TypeCheckinResponse  MessageType = 0x04
	TypeCheckout         MessageType = 0x05
	TypeCheckoutResponse MessageType = 0x06
	TypeDelegate         MessageType = 0x07
	TypeDelete           MessageType = 0x08
	TypeDeleteResponse   MessageType = 0x09
	TypeClose            MessageType = 0x0A
)

func (t MessageType) String() string {
	switch t {
	case TypeLogin:
		return "LOGIN"
	case TypeLoginResponse:
		return "LOGIN_RESPONSE"
	case TypeCheckin:
		return "CHECKIN"
	case TypeCheckinResponse:
		return "CHECKIN_RESPONSE"
	case TypeCheckout:
		return "CHECKOUT"
	case TypeCheckoutResponse:
		return "CHECKOUT_RESPONSE"
	case TypeDelegate:
		return "DELEGATE"
	case TypeDelete:
		return "DELETE"
	case TypeDeleteResponse:
		return "DELETE_RESPONSE"
	case TypeClose:
		return "CLOSE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(t))
	}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: cbor encode mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 65536,
		MaxMapPairs:      65536,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: cbor decode mode: %v", err))
	}
}

// WriteMessage encodes msg as CBOR and writes it as a single frame.
func WriteMessage(w io.Writer, msg Message) error {
	payload, err := encMode.Marshal(msg)
	if err != nil {
		return &models.Error{
			Code:    models.ErrCodeTransportFailed,
			Message: fmt.Sprintf("failed to encode %s payload", msg.Type()),
			Err:     err,
		}
	}
	return WriteFrame(w, msg.Type(), payload)
}

// WriteFrame writes a raw frame: type byte, big-endian length, payload.
func WriteFrame(w io.Writer, msgType MessageType, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return &models.Error{
			Code:    models.ErrCodeTransportFailed,
			Message: fmt.Sprintf("payload of %d bytes exceeds frame limit", len(payload)),
		}
	}

	header := make([]byte, 5)
	header[0] = byte(msgType)
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return transportErr("failed to write frame header", err)
	}
	if _, err := w.Write(payload); err != nil {
		return transportErr("failed to write frame payload", err)
	}
	return nil
}

// ReadFrame reads a single frame and returns its type and raw payload.
// io.EOF is passed through untouched so callers can distinguish an orderly
// peer disconnect from a torn frame.
func ReadFrame(r io.Reader) (MessageType, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, transportErr("failed to read frame header", err)
	}

	msgType := MessageType(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length > MaxPayloadSize {
		return 0, nil, &models.Error{
			Code:    models.ErrCodeTransportFailed,
			Message: fmt.Sprintf("frame of %d bytes exceeds limit", length),
		}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, transportErr("failed to read frame payload", err)
	}
	return msgType, payload, nil
}

// ReadMessage reads one frame and decodes it into its typed message.
func ReadMessage(r io.Reader) (Message, error) {
	msgType, payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return Decode(msgType, payload)
}

// Decode unmarshals a frame payload into the message struct for its type.
// Unknown types and malformed payloads both fail with TRANSPORT_FAILED.
func Decode(msgType MessageType, payload []byte) (Message, error) {
	msg := newMessage(msgType)
	if msg == nil {
		return nil, &models.Error{
			Code:    models.ErrCodeTransportFailed,
			Message: fmt.Sprintf("unknown message type 0x%02X", byte(msgType)),
		}
	}
	if err := decMode.Unmarshal(payload, msg); err != nil {
		return nil, &models.Error{
			Code:    models.ErrCodeTransportFailed,
			Message: fmt.Sprintf("malformed %s payload", msgType),
			Err:     err,
		}
	}
	return msg, nil
}

func transportErr(message string, err error) error {
	return &models.Error{
		Code:    models.ErrCodeTransportFailed,
		Message: message,
		Err:     err,
	}
}
