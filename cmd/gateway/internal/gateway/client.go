package gateway

import (
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/router"
)

const (
	maxMessageSize = 512 * 1024
)

// goingAwayFrame is written on server-initiated close (graceful drain).
var goingAwayFrame = ws.MustCompileFrame(
	ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusGoingAway, "Server shutting down")),
)

// ClientAdapter owns one WebSocket connection: a read pump feeding the router
// and a write pump draining the outbound channel. It is the registry.Sink for
// this connection; every other component reaches the client through it and
// never touches the transport handle.
type ClientAdapter struct {
	id         string
	remoteAddr string
	conn       net.Conn
	router     *router.Router
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	logger     *zap.Logger

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewClient(conn net.Conn, rt *router.Router, logger *zap.Logger) *ClientAdapter {
	return &ClientAdapter{
		id:         uuid.NewString(),
		remoteAddr: conn.RemoteAddr().String(),
		conn:       conn,
		router:     rt,
		send:       make(chan []byte, 256),
		done:       make(chan struct{}),
		logger:     logger,
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
	}
}

// Start registers the connection (which queues the WELCOME handshake) and
// spins up both pumps.
func (c *ClientAdapter) Start() {
	c.router.HandleConnect(c)
	go c.writePump()
	go c.readPump()
}

func (c *ClientAdapter) ID() string         { return c.id }
func (c *ClientAdapter) RemoteAddr() string { return c.remoteAddr }

// Close signals the write pump to send a going-away frame and shut the
// transport. Safe to call more than once.
func (c *ClientAdapter) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Closed reports whether the connection has been torn down.
func (c *ClientAdapter) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// SendJSON queues a message for delivery. Sends to a closed connection are
// swallowed; a full buffer drops the message rather than blocking the caller.
func (c *ClientAdapter) SendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Marshal outbound failed", zap.Error(err))
		return
	}
	select {
	case <-c.done:
	case c.send <- b:
	default:
		c.logger.Warn("Dropping outbound message, buffer full", zap.String("client_id", c.id))
	}
}

func (c *ClientAdapter) readPump() {
	defer func() {
		c.router.HandleDisconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			break
		}

		if header.Length > int64(maxMessageSize) {
			c.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			break
		}

		if !header.Fin {
			c.logger.Warn("Client sent fragmented message (not supported)")
			break
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			break
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		if header.OpCode == ws.OpClose {
			break
		}
		if header.OpCode == ws.OpPong {
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
			continue
		}

		if header.OpCode == ws.OpText {
			c.router.HandleMessage(c, payload)
		}
	}
}

func (c *ClientAdapter) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			c.conn.Write(goingAwayFrame)
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
