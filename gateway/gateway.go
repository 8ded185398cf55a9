package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"conversekit/core"
	"conversekit/orchestrator"
	"conversekit/protocol"
	"conversekit/speech"
	"conversekit/utils/audio"
)

type Config struct {
	// ReadLimit caps inbound frame size; attachments ride inside text
	// frames as base64 so the limit must cover them.
	ReadLimit  int64         `json:"read_limit"`
	WriteWait  time.Duration `json:"write_wait"`
	PingPeriod time.Duration `json:"ping_period"`
}

func DefaultConfig() Config {
	return Config{
		ReadLimit:  32 << 20,
		WriteWait:  10 * time.Second,
		PingPeriod: 30 * time.Second,
	}
}

// SessionBuilder wires a session around the connection-bound speech
// relays and event sink. The factories package provides one.
type SessionBuilder func(engine speech.RecognitionEngine, synth speech.Synthesizer, perms speech.PermissionChecker, sink core.EventSink) *orchestrator.Session

// Gateway upgrades browser connections and runs one session per
// connection. Session state dies with the socket; nothing persists.
type Gateway struct {
	build    SessionBuilder
	upgrader websocket.Upgrader
	config   Config
	logger   *core.Logger
}

func NewGateway(build SessionBuilder, config Config, logger *core.Logger) *Gateway {
	if config.ReadLimit == 0 {
		config = DefaultConfig()
	}
	return &Gateway{
		build: build,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		config: config,
		logger: logger,
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := newClient(conn, g.build, g.config, g.logger)
	g.logger.Info("client connected", "remote", conn.RemoteAddr().String())
	c.run()
	g.logger.Info("client disconnected", "remote", conn.RemoteAddr().String())
}

// client is one connected browser: its socket, its speech relays and
// its session.
type client struct {
	conn    *websocket.Conn
	mu      sync.Mutex // protects writes
	config  Config
	logger  *core.Logger
	session *orchestrator.Session
	engine  *relayEngine
	synth   *relaySynthesizer
	perms   *relayPermissions

	// audioWanted is cleared once the session's recognition engine
	// declines a frame, so µ-law decoding stops on the hot path. Only
	// touched from the read loop.
	audioWanted bool
}

func newClient(conn *websocket.Conn, build SessionBuilder, config Config, logger *core.Logger) *client {
	c := &client{conn: conn, config: config, logger: logger, audioWanted: true}
	c.engine = newRelayEngine(c.sendMessage)
	c.synth = newRelaySynthesizer(c.sendMessage)
	c.perms = newRelayPermissions(c.sendMessage)
	c.session = build(c.engine, c.synth, c.perms, c)
	return c
}

func (c *client) sendMessage(t protocol.MessageType, payload interface{}) error {
	data, err := protocol.Marshal(t, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Publish implements core.EventSink: every internal event packet is
// relayed to the UI as an event envelope.
func (c *client) Publish(p *core.EventPacket) {
	data, err := sonic.Marshal(p.Event)
	if err != nil {
		c.logger.Warn("event marshal failed", "event_id", p.Event.GetId(), "error", err)
		return
	}
	if err := c.sendMessage(protocol.MsgEvent, protocol.EventPayload{
		EventID: p.Event.GetId(),
		UID:     p.Uid,
		Relayer: p.Relayer,
		Data:    data,
	}); err != nil {
		c.logger.Debug("event relay failed", "event_id", p.Event.GetId(), "error", err)
	}
}

func (c *client) run() {
	defer func() {
		c.session.Reset()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(c.config.ReadLimit)

	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.pingLoop(stopPing)

	for {
		messageType, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("read failed", "error", err)
			}
			return
		}
		switch messageType {
		case websocket.TextMessage:
			c.dispatch(msg)
		case websocket.BinaryMessage:
			c.handleAudioFrame(msg)
		}
	}
}

func (c *client) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleAudioFrame expands a µ-law mic frame and forwards the PCM to
// the session's recognition engine. Engines that capture their own
// audio (the browser relay) decline the first frame and the remaining
// frames are dropped undecoded.
func (c *client) handleAudioFrame(frame []byte) {
	if !c.audioWanted {
		return
	}
	pcm, err := audio.DecodeMicFrame(frame)
	if err != nil {
		c.logger.Debug("audio frame rejected", "error", err)
		return
	}
	if err := c.session.Speech.WriteAudio(pcm); err != nil {
		if errors.Is(err, core.ErrUnsupported) {
			c.audioWanted = false
			c.logger.Debug("recognition engine does not consume relayed audio")
			return
		}
		c.logger.Debug("audio frame dropped", "error", err)
	}
}

func (c *client) dispatch(msg []byte) {
	msgType, raw, err := protocol.Unmarshal(msg)
	if err != nil {
		c.reject(err.Error())
		return
	}

	switch msgType {
	case protocol.MsgSend:
		c.handleSend(raw)
	case protocol.MsgCancel:
		if err := c.session.Turns.Cancel(); err != nil && err != core.ErrNoActiveTurn {
			c.reject(err.Error())
		}
	case protocol.MsgMicToggle:
		if _, err := c.session.Speech.Toggle(); err != nil {
			c.reject(err.Error())
		}
	case protocol.MsgNewConversation:
		c.session.Reset()
	case protocol.MsgDelete:
		c.handleDelete(raw)
	case protocol.MsgVoices:
		if p, err := protocol.UnmarshalPayload[protocol.VoicesPayload](raw); err == nil {
			c.synth.setVoices(p.Voices)
		}
	case protocol.MsgPermission:
		if p, err := protocol.UnmarshalPayload[protocol.PermissionPayload](raw); err == nil {
			c.perms.handleReport(p.Granted)
		}
	case protocol.MsgSTTResult:
		if p, err := protocol.UnmarshalPayload[protocol.STTResultPayload](raw); err == nil {
			c.engine.handleResult(p.Text, p.Final)
		}
	case protocol.MsgSTTError:
		if p, err := protocol.UnmarshalPayload[protocol.STTErrorPayload](raw); err == nil {
			c.engine.handleError(p.Code)
		}
	case protocol.MsgSTTEnd:
		c.engine.handleEnd()
	case protocol.MsgTTSStarted:
		if p, err := protocol.UnmarshalPayload[protocol.TTSLifecyclePayload](raw); err == nil {
			c.synth.handleStarted(p.UtteranceID)
		}
	case protocol.MsgTTSEnded:
		if p, err := protocol.UnmarshalPayload[protocol.TTSLifecyclePayload](raw); err == nil {
			c.synth.handleEnded(p.UtteranceID)
		}
	case protocol.MsgTTSError:
		if p, err := protocol.UnmarshalPayload[protocol.TTSLifecyclePayload](raw); err == nil {
			c.synth.handleError(p.UtteranceID, p.Reason)
		}
	default:
		c.reject("unknown message type: " + string(msgType))
	}
}

func (c *client) handleSend(raw json.RawMessage) {
	p, err := protocol.UnmarshalPayload[protocol.SendPayload](raw)
	if err != nil {
		c.reject(err.Error())
		return
	}
	attachments, ok := c.decodeAttachments(p.Attachments)
	if !ok {
		c.session.Store.AppendNotice(orchestrator.NoticeFilesFailed)
		return
	}
	if _, err := c.session.Turns.Send(p.Text, attachments, core.TurnOriginTyped, ""); err != nil {
		c.reject(err.Error())
	}
}

func (c *client) decodeAttachments(payloads []protocol.AttachmentPayload) ([]core.Attachment, bool) {
	var atts []core.Attachment
	for _, ap := range payloads {
		kind, ok := core.AttachmentKindFromMIME(ap.MIME)
		if !ok {
			c.logger.Warn("unsupported attachment type", "name", ap.Name, "mime", ap.MIME)
			return nil, false
		}
		data, err := base64.StdEncoding.DecodeString(ap.Data)
		if err != nil {
			c.logger.Warn("attachment decode failed", "name", ap.Name, "error", err)
			return nil, false
		}
		atts = append(atts, core.Attachment{Name: ap.Name, Kind: kind, Data: data})
	}
	return atts, true
}

func (c *client) handleDelete(raw json.RawMessage) {
	p, err := protocol.UnmarshalPayload[protocol.DeletePayload](raw)
	if err != nil {
		c.reject(err.Error())
		return
	}
	c.session.Store.Delete(p.MessageIDs, p.ForEveryone)
}

func (c *client) reject(message string) {
	if err := c.sendMessage(protocol.MsgError, protocol.ErrorPayload{Message: message}); err != nil {
		c.logger.Debug("reject relay failed", "error", err)
	}
}
