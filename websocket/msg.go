package websocket

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/occlusion/geom"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeInvalidMsg     = "invalid_msg"
	ErrTypeUnknownMsg     = "unknown_msg"
	ErrTypeInvalidFrustum = "invalid_frustum"
)

type MsgType string

const (
	// Sent by the server once connected.
	MsgTypeHello MsgType = "hello"

	// Sent by the client to set its view volume.
	MsgTypeFrustum MsgType = "frustum"

	MsgTypePing MsgType = "ping"
	MsgTypePong MsgType = "pong"

	// Sent by the server after a frame when the visible set changed.
	MsgTypeVisibility MsgType = "visibility"

	MsgTypeError MsgType = "error"
)

// Msg is a message exchanged over a visibility stream.
type Msg struct {
	Type MsgType `json:"type"`

	// Ping and pong.
	RequestID uint32 `json:"request_id,omitempty"`

	// Hello.
	ViewerID  uint32 `json:"viewer_id,omitempty"`
	SceneUUID string `json:"scene_uuid,omitempty"`

	// Frustum.
	Min *[3]float64 `json:"min,omitempty"`
	Max *[3]float64 `json:"max,omitempty"`

	// Visibility.
	Frame   uint64   `json:"frame,omitempty"`
	Entered []uint32 `json:"entered,omitempty"`
	Exited  []uint32 `json:"exited,omitempty"`
	Visible int      `json:"visible,omitempty"`

	// Error.
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

func (m Msg) TypeString() string {
	if m.Type == "" {
		return "unknown"
	}
	return string(m.Type)
}

// Bounds returns the view volume of a frustum message.
func (m Msg) Bounds() (geom.AABB, error) {
	if m.Min == nil || m.Max == nil {
		return geom.AABB{}, errors.New("frustum bounds are missing").
			WithType(ErrTypeInvalidFrustum)
	}

	b := geom.Box(m.Min[0], m.Min[1], m.Min[2], m.Max[0], m.Max[1], m.Max[2])
	if !b.IsValid() {
		return geom.AABB{}, errors.New("invalid frustum bounds").
			WithType(ErrTypeInvalidFrustum).
			WithTag("bounds", b.String())
	}
	return b, nil
}

// NewFrustumMsg creates a frustum message from a view volume.
func NewFrustumMsg(b geom.AABB) Msg {
	return Msg{
		Type: MsgTypeFrustum,
		Min:  &[3]float64{b.Min.X, b.Min.Y, b.Min.Z},
		Max:  &[3]float64{b.Max.X, b.Max.Y, b.Max.Z},
	}
}

// NewErrorMsg creates an error message.
func NewErrorMsg(err error) Msg {
	return Msg{
		Type:      MsgTypeError,
		Error:     err.Error(),
		ErrorType: errors.Type(err),
	}
}

// Receiver receives a message and returns its size in bytes.
type Receiver func() (Msg, int, error)

// Sender sends a message and returns its size in bytes.
type Sender func(Msg) (int, error)

// ResponseSender queues messages to be sent to the client.
type ResponseSender interface {
	Send(Msg)
}

// Receive reads a JSON message from the connection.
func Receive(conn *websocket.Conn) (Msg, int, error) {
	var data []byte
	if err := websocket.Message.Receive(conn, &data); err != nil {
		return Msg{}, 0, err
	}

	var msg Msg
	if err := json.Unmarshal(data, &msg); err != nil {
		return Msg{}, len(data), errors.New("decoding message failed").
			WithType(ErrTypeInvalidMsg).
			Wrap(err)
	}
	return msg, len(data), nil
}

// Send writes a message to the connection as JSON text.
func Send(conn *websocket.Conn, msg Msg) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, errors.New("encoding message failed").
			WithType(ErrTypeInvalidMsg).
			Wrap(err)
	}

	if err := websocket.Message.Send(conn, string(data)); err != nil {
		return 0, err
	}
	return len(data), nil
}
