package stream

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"webforge/internal/logging"
	"webforge/internal/types"
)

// clientCommand is one inbound WS frame from the client.
type clientCommand struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	FromSeq   uint64 `json:"from_seq,omitempty"`
	// Compression opts the peer out of payload compression when false.
	Compression *bool `json:"compression,omitempty"`
	// BatchSize requests batched delivery of content chunks.
	BatchSize int `json:"batchSize,omitempty"`
}

// serverFrame is one outbound non-event WS frame.
type serverFrame struct {
	Type         string `json:"type"`
	SessionID    string `json:"session_id,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
	LastSeq      uint64 `json:"last_seq,omitempty"`
	ReplayGap    bool   `json:"replay_gap,omitempty"`
	Message      string `json:"message,omitempty"`
}

// batchFrame carries several content-chunk events in one envelope for
// subscribers that requested batched delivery.
type batchFrame struct {
	Type      string              `json:"type"`
	SessionID string              `json:"session_id"`
	Events    []types.StreamEvent `json:"events"`
}

// WSConfig tunes the WebSocket transport.
type WSConfig struct {
	PingInterval         time.Duration
	IdleTimeout          time.Duration
	CompressionThreshold int
}

// WSHandler upgrades HTTP connections and speaks the client protocol:
// authenticate, then join_session or start_stream. Events arrive as
// JSON text frames; frames at or above the compression threshold are
// sent with permessage-deflate unless the peer opted out.
type WSHandler struct {
	bus      *Bus
	cfg      WSConfig
	verify   func(token string) bool
	upgrader websocket.Upgrader
}

// NewWSHandler creates a WSHandler. verify authorizes the token sent in
// the authenticate frame; nil means no authentication is required.
func NewWSHandler(bus *Bus, cfg WSConfig, verify func(token string) bool) *WSHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = 1024
	}
	return &WSHandler{
		bus:    bus,
		cfg:    cfg,
		verify: verify,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			EnableCompression: true,
			CheckOrigin:       func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs the session loop.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.StreamWarn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// pongPending is set after each ping and cleared by the pong
	// handler; a ping tick that finds it still set drops the peer.
	var pongPending atomic.Bool
	conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
	conn.SetPongHandler(func(string) error {
		pongPending.Store(false)
		return conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
	})

	commands := make(chan clientCommand)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(commands)
		for {
			var cmd clientCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				readErr <- err
				return
			}
			select {
			case commands <- cmd:
			case <-done:
				return
			}
		}
	}()

	h.run(conn, &pongPending, commands, readErr)
}

func (h *WSHandler) run(conn *websocket.Conn, pongPending *atomic.Bool, commands <-chan clientCommand, readErr <-chan error) {
	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()

	authed := h.verify == nil
	connID := uuid.NewString()
	compress := true
	var batcher *Batcher
	var sub *Subscription
	var sessionID string
	defer func() {
		if sub != nil {
			sub.Cancel()
		}
	}()

	// events is nil until start_stream; a nil channel never selects.
	var events <-chan types.StreamEvent

	for {
		// flush is nil unless a partial batch is waiting on its timer.
		var flush <-chan time.Time
		if batcher != nil {
			flush = batcher.C()
		}

		select {
		case <-ping.C:
			if pongPending.Load() {
				logging.StreamDebug("peer missed pong, closing connection")
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				logging.StreamDebug("ping failed, closing connection: %v", err)
				return
			}
			pongPending.Store(true)

		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.StreamDebug("websocket closed: %v", err)
			}
			return

		case cmd, ok := <-commands:
			if !ok {
				return
			}
			switch cmd.Type {
			case "authenticate":
				if h.verify != nil && !h.verify(cmd.Token) {
					h.writeFrame(conn, serverFrame{Type: "error", Message: "invalid token"})
					return
				}
				authed = true
				h.writeFrame(conn, serverFrame{Type: "authenticated"})

			case "join_session":
				if !authed {
					h.writeFrame(conn, serverFrame{Type: "error", Message: "authenticate first"})
					continue
				}
				sessionID = cmd.SessionID
				h.writeFrame(conn, serverFrame{
					Type:         "session_joined",
					SessionID:    sessionID,
					ConnectionID: connID,
					LastSeq:      h.bus.LastSeq(sessionID),
				})

			case "start_stream":
				if !authed {
					h.writeFrame(conn, serverFrame{Type: "error", Message: "authenticate first"})
					continue
				}
				if cmd.SessionID != "" {
					sessionID = cmd.SessionID
				}
				if sessionID == "" {
					h.writeFrame(conn, serverFrame{Type: "error", Message: "no session joined"})
					continue
				}
				if cmd.Compression != nil {
					compress = *cmd.Compression
				}
				batcher = nil
				if cmd.BatchSize > 0 {
					batcher = NewBatcher(cmd.BatchSize)
				}
				if sub != nil {
					sub.Cancel()
				}
				var gap bool
				sub, gap = h.bus.Subscribe(sessionID, cmd.FromSeq)
				events = sub.C
				if gap {
					h.writeFrame(conn, serverFrame{Type: "replay_gap", SessionID: sessionID, ReplayGap: true})
				}
				logging.Stream("websocket streaming session %s from seq %d (batch=%d)", sessionID, cmd.FromSeq, cmd.BatchSize)

			default:
				h.writeFrame(conn, serverFrame{Type: "error", Message: "unknown command " + cmd.Type})
			}

		case <-flush:
			if err := h.writeBatch(conn, sessionID, batcher.Drain(), compress); err != nil {
				return
			}

		case ev, ok := <-events:
			if !ok {
				// Bus dropped us (slow consumer or session cleanup).
				if batcher != nil {
					h.writeBatch(conn, sessionID, batcher.Drain(), compress)
				}
				h.writeFrame(conn, serverFrame{Type: "stream_closed", SessionID: sessionID})
				return
			}
			if batcher != nil && ev.Type == types.EventContentChunk {
				if batch := batcher.Add(ev); batch != nil {
					if err := h.writeBatch(conn, sessionID, batch, compress); err != nil {
						return
					}
				}
				continue
			}
			// Anything pending precedes the non-chunk event on the wire.
			if batcher != nil {
				if err := h.writeBatch(conn, sessionID, batcher.Drain(), compress); err != nil {
					return
				}
			}
			if err := h.writeEvent(conn, ev, compress); err != nil {
				logging.StreamDebug("event write failed: %v", err)
				return
			}
			if terminalEvent(ev.Type) {
				h.writeFrame(conn, serverFrame{Type: "stream_complete", SessionID: sessionID, LastSeq: ev.Seq})
				return
			}
		}
	}
}

func (h *WSHandler) writeEvent(conn *websocket.Conn, ev types.StreamEvent, compress bool) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return h.writeData(conn, data, compress)
}

func (h *WSHandler) writeBatch(conn *websocket.Conn, sessionID string, events []types.StreamEvent, compress bool) error {
	if len(events) == 0 {
		return nil
	}
	data, err := json.Marshal(batchFrame{Type: "batched-updates", SessionID: sessionID, Events: events})
	if err != nil {
		return err
	}
	if err := h.writeData(conn, data, compress); err != nil {
		logging.StreamDebug("batch write failed: %v", err)
		return err
	}
	return nil
}

func (h *WSHandler) writeData(conn *websocket.Conn, data []byte, compress bool) error {
	conn.EnableWriteCompression(compress && len(data) >= h.cfg.CompressionThreshold)
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *WSHandler) writeFrame(conn *websocket.Conn, frame serverFrame) {
	conn.EnableWriteCompression(false)
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(frame); err != nil {
		logging.StreamDebug("frame write failed: %v", err)
	}
}
