package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/occlusion/geom"
	"github.com/aukilabs/occlusion/models"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// HeaderClientID is the header a client can set to identify itself in logs.
const HeaderClientID = "X-Client-ID"

// VisibilityHandler streams to a viewer the entities that enter and exit its
// view volume at each scene frame.
type VisibilityHandler struct {
	// The scene the viewer looks at.
	Scene *models.Scene

	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	conn     *websocket.Conn
	clientID string
	viewer   *models.Viewer
	frame    uint64
}

func (h *VisibilityHandler) HandleConnect(conn *websocket.Conn) {
	h.clientID = conn.Request().Header.Get(HeaderClientID)
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}

	h.conn = conn
	h.viewer = models.NewViewer(h.Scene.NewViewerID())
	h.Scene.AddViewer(h.viewer)
}

func (h *VisibilityHandler) Welcome(ctx context.Context, respond ResponseSender) error {
	respond.Send(Msg{
		Type:      MsgTypeHello,
		ViewerID:  h.viewer.ID,
		SceneUUID: h.Scene.SceneUUID,
	})
	return nil
}

// HandleFrustum sets the viewer view volume. Invalid volumes are reported to
// the client without closing the connection.
func (h *VisibilityHandler) HandleFrustum(ctx context.Context, respond ResponseSender, msg Msg) error {
	b, err := msg.Bounds()
	if err != nil {
		respond.Send(NewErrorMsg(err))
		return nil
	}

	h.viewer.SetFrustum(geom.BoxFrustum(b))
	return nil
}

func (h *VisibilityHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	respond.Send(Msg{
		Type:      MsgTypePong,
		RequestID: msg.RequestID,
	})
	return nil
}

// Frame sends a visibility message when entities entered or exited the view
// volume since the previous frame.
func (h *VisibilityHandler) Frame(ctx context.Context, respond ResponseSender) error {
	h.frame++

	entered, exited := h.viewer.Diff(h.Scene.Visible(h.viewer.Frustum()))
	if len(entered) == 0 && len(exited) == 0 {
		return nil
	}

	respond.Send(Msg{
		Type:    MsgTypeVisibility,
		Frame:   h.frame,
		Entered: entered,
		Exited:  exited,
		Visible: h.viewer.VisibleCount(),
	})
	return nil
}

func (h *VisibilityHandler) HandleFrame(f func()) (cancel func()) {
	return h.Scene.HandleFrame(f)
}

func (h *VisibilityHandler) HandleDisconnect(_ error) {
	if h.viewer != nil {
		h.Scene.RemoveViewer(h.viewer)
	}
}

func (h *VisibilityHandler) Receiver() Receiver {
	return func() (Msg, int, error) {
		return Receive(h.conn)
	}
}

func (h *VisibilityHandler) Sender() Sender {
	return func(msg Msg) (int, error) {
		return Send(h.conn, msg)
	}
}

func (h *VisibilityHandler) Close() {
}

func (h *VisibilityHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *VisibilityHandler) GetClientID() string {
	return h.clientID
}
