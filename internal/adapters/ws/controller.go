package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/metrics"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Broker     *app.Broker
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

func NewController(b *app.Broker, cfg *config.Config) *Controller {
	return &Controller{
		Broker:     b,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	}
}

// inbound is the envelope every client event arrives in. Room and
// identity on chatMessage are legacy fields; the bound session is
// authoritative once joined.
type inbound struct {
	Type     string `json:"type"`
	Room     string `json:"room,omitempty"`
	Identity string `json:"identity,omitempty"`
	Body     string `json:"body,omitempty"`
}

// Handle upgrades the request and runs the session until the peer
// goes away.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("ws upgrade")
		return
	}

	wc := newWSConn(conn, ctl.SendBuffer)
	sess := ctl.Broker.NewSession(wc)
	metrics.WsConnections.Inc()
	log.Info().Str("module", "adapters.ws").Str("sid", string(sess.ID)).Str("client_token", token).Msg("connection established")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, wc)
	ctl.readPump(ctx, sess, wc)
	cancel()

	ctl.Broker.HandleDisconnect(sess)
	wc.Close()
	metrics.WsConnections.Dec()
}

func (ctl *Controller) readPump(ctx context.Context, sess *app.Session, c *wsConn) {
	pongWait := ctl.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "adapters.ws").Str("sid", string(sess.ID)).Msg("readPump closing")
				return
			}
			ctl.dispatch(sess, data)
		}
	}
}

func (ctl *Controller) dispatch(sess *app.Session, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Str("sid", string(sess.ID)).Msg("bad json")
		return
	}
	switch in.Type {
	case "joinRoom":
		ctl.Broker.HandleJoin(sess, in.Room, in.Identity)
	case "chatMessage":
		ctl.Broker.HandleChat(sess, in.Body)
	case "typing":
		ctl.Broker.HandleTyping(sess)
	case "stopTyping":
		ctl.Broker.HandleStopTyping(sess)
	default:
		log.Warn().Str("module", "adapters.ws").Str("type", in.Type).Msg("unknown event")
	}
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
