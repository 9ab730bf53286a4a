package web

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/pion/rtp"

	"github.com/firstlinehq/go-dispatch/internal/log"
	"github.com/firstlinehq/go-dispatch/pkg/protocol"
	"github.com/firstlinehq/go-dispatch/pkg/session"
)

// ErrNoBridge is returned when playback is requested for a call whose
// bridge connection is gone.
var ErrNoBridge = errors.New("web: no bridge connection for call")

// Bridge accepts telephony-bridge websocket connections, dispatches their
// inbound event streams into the session registry, and routes outbound
// playback back to the right connection. It implements session.Outbound.
type Bridge struct {
	registry *session.Registry

	mu    sync.RWMutex
	conns map[string]*bridgeConn // call id → connection
}

// bridgeConn is one live bridge websocket. Writes are serialized.
type bridgeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex

	// boundCallID is the call bound to this connection for binary RTP
	// frames; the first session_start wins.
	boundCallID string
}

func (c *bridgeConn) writeMessage(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// NewBridge creates the bridge connection manager.
func NewBridge() *Bridge {
	return &Bridge{conns: make(map[string]*bridgeConn)}
}

// Bind attaches the session registry. Must be called before serving.
func (b *Bridge) Bind(reg *session.Registry) {
	b.registry = reg
}

// SendAudio forwards one synthesized audio chunk to the caller's bridge.
func (b *Bridge) SendAudio(callID string, seq uint64, audio []byte) error {
	c := b.lookup(callID)
	if c == nil {
		return ErrNoBridge
	}
	msg, err := protocol.NewAudioMessage(callID, seq, audio)
	if err != nil {
		return err
	}
	return c.writeMessage(msg)
}

// Clear tells the caller's bridge to drop queued playback (barge-in).
func (b *Bridge) Clear(callID string) error {
	c := b.lookup(callID)
	if c == nil {
		return ErrNoBridge
	}
	msg, err := protocol.NewClearMessage(callID)
	if err != nil {
		return err
	}
	return c.writeMessage(msg)
}

func (b *Bridge) lookup(callID string) *bridgeConn {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conns[callID]
}

// HandleConn runs the read loop for one bridge websocket.
// It blocks until the connection closes.
func (b *Bridge) HandleConn(conn *websocket.Conn) {
	c := &bridgeConn{conn: conn}
	defer b.dropConn(c)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.TextMessage:
			b.handleText(c, data)
		case websocket.BinaryMessage:
			b.handleRTP(c, data)
		}
	}
}

// dropConn closes any calls still bound to a vanished bridge connection.
func (b *Bridge) dropConn(c *bridgeConn) {
	b.mu.Lock()
	var orphaned []string
	for callID, conn := range b.conns {
		if conn == c {
			delete(b.conns, callID)
			orphaned = append(orphaned, callID)
		}
	}
	b.mu.Unlock()

	for _, callID := range orphaned {
		log.Warn("bridge connection lost, closing call", "call_id", callID)
		if _, err := b.registry.Close(callID); err != nil {
			log.Debug("close after bridge loss", "call_id", callID, "error", err)
		}
	}
}

// handleText dispatches one JSON protocol message. Malformed messages are
// protocol errors: logged, dropped, session state unaffected.
func (b *Bridge) handleText(c *bridgeConn, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		log.Warn("malformed bridge message", "error", err)
		b.sendError(c, "bad_message", err.Error(), "")
		return
	}

	switch msg.Type {
	case protocol.TypeSessionStart:
		var start protocol.SessionStartData
		if err := msg.ParseData(&start); err != nil || start.CallID == "" {
			log.Warn("malformed session_start", "error", err)
			b.sendError(c, "bad_message", "malformed session_start", "")
			return
		}
		b.handleStart(c, start)

	case protocol.TypeMedia:
		var media protocol.MediaData
		if err := msg.ParseData(&media); err != nil {
			log.Warn("malformed media message", "error", err)
			return
		}
		audio, err := protocol.DecodeAudio(media.Data)
		if err != nil {
			log.Warn("undecodable media payload", "call_id", media.CallID, "error", err)
			return
		}
		// Unknown ids are dropped with a diagnostic inside HandleMedia.
		b.registry.HandleMedia(media.CallID, audio)

	case protocol.TypeSessionStop:
		var stop protocol.SessionStopData
		if err := msg.ParseData(&stop); err != nil {
			log.Warn("malformed session_stop", "error", err)
			return
		}
		b.handleStop(c, stop)

	case protocol.TypePing:
		var ping protocol.PingData
		if err := msg.ParseData(&ping); err != nil {
			return
		}
		if pong, err := protocol.NewPongMessage(ping); err == nil {
			c.writeMessage(pong)
		}

	default:
		log.Debug("ignoring bridge message", "type", msg.Type)
	}
}

func (b *Bridge) handleStart(c *bridgeConn, start protocol.SessionStartData) {
	// Register before Open: the session may emit playback immediately.
	b.mu.Lock()
	if _, taken := b.conns[start.CallID]; taken {
		b.mu.Unlock()
		log.Warn("duplicate session_start", "call_id", start.CallID)
		b.sendError(c, "duplicate_session", "session already open", start.CallID)
		return
	}
	b.conns[start.CallID] = c
	bound := c.boundCallID == ""
	if bound {
		c.boundCallID = start.CallID
	}
	b.mu.Unlock()

	_, err := b.registry.Open(context.Background(), start.CallID, start.CorrelationID, start.Format)
	if err != nil {
		b.mu.Lock()
		delete(b.conns, start.CallID)
		if bound {
			c.boundCallID = ""
		}
		b.mu.Unlock()

		if errors.Is(err, session.ErrDuplicateSession) {
			log.Warn("duplicate session_start", "call_id", start.CallID)
			b.sendError(c, "duplicate_session", "session already open", start.CallID)
		} else {
			log.Error("session open failed", "call_id", start.CallID, "error", err)
			b.sendError(c, "open_failed", err.Error(), start.CallID)
		}
		return
	}
}

func (b *Bridge) handleStop(c *bridgeConn, stop protocol.SessionStopData) {
	if _, err := b.registry.Close(stop.CallID); err != nil {
		log.Warn("session_stop for unknown or completed session",
			"call_id", stop.CallID, "error", err)
		b.sendError(c, "unknown_session", err.Error(), stop.CallID)
		return
	}

	b.mu.Lock()
	delete(b.conns, stop.CallID)
	b.mu.Unlock()
}

// handleRTP routes a binary RTP packet to the connection's bound call.
// The RTP payload is the audio frame; RTP sequence numbers are diagnostics.
func (b *Bridge) handleRTP(c *bridgeConn, data []byte) {
	b.mu.RLock()
	callID := c.boundCallID
	b.mu.RUnlock()

	if callID == "" {
		log.Debug("RTP frame before session_start, dropping")
		return
	}

	var pkt rtp.Packet
	if err := pkt.Unmarshal(data); err != nil {
		log.Warn("malformed RTP packet", "call_id", callID, "error", err)
		return
	}

	log.Debug("RTP frame", "call_id", callID,
		"seq", pkt.SequenceNumber, "ts", pkt.Timestamp)
	b.registry.HandleMedia(callID, pkt.Payload)
}

func (b *Bridge) sendError(c *bridgeConn, code, message, callID string) {
	msg, err := protocol.NewErrorMessage(code, message, callID)
	if err != nil {
		return
	}
	c.writeMessage(msg)
}

// Verify Bridge implements session.Outbound at compile time.
var _ session.Outbound = (*Bridge)(nil)
