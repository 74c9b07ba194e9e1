package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/relayctl/internal/infrastructure/config"
	"github.com/nerrad567/relayctl/internal/infrastructure/logging"
	"github.com/nerrad567/relayctl/internal/process"
)

// Channels a viewer can subscribe to.
const (
	// ChannelOutput carries relay output lines.
	ChannelOutput = "relay.output"

	// ChannelLifecycle carries supervisor events.
	ChannelLifecycle = "relay.lifecycle"
)

// Viewer requests.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

// Frame kinds sent to viewers.
const (
	FrameLine         = "line"     // one live output line
	FrameBacklog      = "backlog"  // retained output replayed on subscribe
	FrameEvent        = "event"    // one lifecycle event
	FrameSnapshot     = "snapshot" // supervisor Stats sent on subscribe
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameError        = "error"
)

const (
	viewerQueueSize = 256
	defaultBacklog  = 100

	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30
	defaultWSPongTimeout    = 10
)

// Frame is one message from relayctl to a viewer.
type Frame struct {
	Kind    string    `json:"kind"`
	Channel string    `json:"channel,omitempty"`
	Time    time.Time `json:"time"`
	Data    any       `json:"data,omitempty"`
}

// Request is a viewer's control message.
//
//	{"op":"subscribe","channels":["relay.output"],"backlog":50}
type Request struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`

	// Backlog is how many retained output lines to replay when subscribing
	// to ChannelOutput. Omitted means 100; zero disables the replay.
	Backlog *int `json:"backlog,omitempty"`
}

// statsSource is the part of Supervisor the hub snapshots.
type statsSource interface {
	Stats() process.Stats
}

// Hub streams relay output and lifecycle events to WebSocket viewers.
//
// A viewer receives nothing until it subscribes. Subscribing to
// ChannelOutput first replays recent output as one backlog frame;
// subscribing to ChannelLifecycle first sends the current Stats. Both are
// queued under the viewer's lock, so no live frame can slip in ahead of
// them. A line broadcast while the backlog is read may appear twice.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger
	stats  statsSource
	output OutputLog

	mu      sync.Mutex
	viewers map[*viewer]struct{}
	closed  bool
}

type viewer struct {
	hub   *Hub
	conn  *websocket.Conn
	queue chan []byte

	mu       sync.Mutex
	channels map[string]bool
	gone     bool
	dropped  int
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// CORS is permissive for the whole API.
		return true
	},
}

// NewHub creates a hub. Zero settings take defaults; stats and output may be nil.
func NewHub(cfg config.WebSocketConfig, stats statsSource, output OutputLog, logger *logging.Logger) *Hub {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultWSMaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultWSPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultWSPongTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger.Component("websocket"),
		stats:   stats,
		output:  output,
		viewers: make(map[*viewer]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every viewer.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Broadcast sends payload to every viewer subscribed to channel. Output
// goes out as FrameLine, anything else as FrameEvent.
func (h *Hub) Broadcast(channel string, payload any) {
	kind := FrameEvent
	if channel == ChannelOutput {
		kind = FrameLine
	}
	data, err := encodeFrame(kind, channel, payload)
	if err != nil {
		h.logger.Error("failed to encode frame", "channel", channel, "error", err)
		return
	}

	h.mu.Lock()
	viewers := make([]*viewer, 0, len(h.viewers))
	for v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.Unlock()

	for _, v := range viewers {
		v.push(channel, data)
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

func (h *Hub) add(v *viewer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.viewers[v] = struct{}{}
	h.logger.Debug("viewer connected", "viewers", len(h.viewers))
	return true
}

func (h *Hub) remove(v *viewer) {
	h.mu.Lock()
	delete(h.viewers, v)
	n := len(h.viewers)
	h.mu.Unlock()

	if dropped := v.shut(); dropped > 0 {
		h.logger.Warn("slow viewer missed frames", "dropped", dropped)
	}
	h.logger.Debug("viewer disconnected", "viewers", n)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	viewers := h.viewers
	h.viewers = make(map[*viewer]struct{})
	h.mu.Unlock()

	for v := range viewers {
		v.shut()
		v.conn.Close()
	}
}

func knownChannel(ch string) bool {
	return ch == ChannelOutput || ch == ChannelLifecycle
}

func encodeFrame(kind, channel string, data any) ([]byte, error) {
	return json.Marshal(Frame{Kind: kind, Channel: channel, Time: time.Now().UTC(), Data: data})
}

// handleWebSocket upgrades the connection and attaches a viewer.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	v := &viewer{
		hub:      s.hub,
		conn:     conn,
		queue:    make(chan []byte, viewerQueueSize),
		channels: make(map[string]bool),
	}
	if !s.hub.add(v) {
		conn.Close()
		return
	}

	go v.writeLoop()
	go v.readLoop()
}

// push queues data if the viewer follows channel. A full queue drops the frame.
func (v *viewer) push(channel string, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gone || !v.channels[channel] {
		return
	}
	v.enqueueLocked(data)
}

func (v *viewer) enqueueLocked(data []byte) {
	select {
	case v.queue <- data:
	default:
		v.dropped++
	}
}

func (v *viewer) replyLocked(kind, channel string, payload any) {
	data, err := encodeFrame(kind, channel, payload)
	if err != nil {
		v.hub.logger.Error("failed to encode frame", "kind", kind, "error", err)
		return
	}
	v.enqueueLocked(data)
}

func (v *viewer) reply(kind, channel string, payload any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.gone {
		v.replyLocked(kind, channel, payload)
	}
}

func (v *viewer) fail(message string) {
	v.reply(FrameError, "", map[string]string{"message": message})
}

// shut closes the queue once and reports how many frames were dropped.
func (v *viewer) shut() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.gone {
		v.gone = true
		close(v.queue)
	}
	return v.dropped
}

func (v *viewer) readLoop() {
	defer func() {
		v.hub.remove(v)
		v.conn.Close()
	}()

	cfg := v.hub.cfg
	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	v.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	//nolint:errcheck // a failed deadline surfaces on the next read
	v.conn.SetReadDeadline(time.Now().Add(idle))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				v.hub.logger.Warn("viewer read error", "error", err)
			}
			return
		}
		//nolint:errcheck // a failed deadline surfaces on the next read
		v.conn.SetReadDeadline(time.Now().Add(idle))

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			v.fail("invalid JSON request")
			continue
		}
		switch req.Op {
		case OpSubscribe:
			v.subscribe(req)
		case OpUnsubscribe:
			v.unsubscribe(req)
		default:
			v.fail("unknown op: " + req.Op)
		}
	}
}

func (v *viewer) writeLoop() {
	cfg := v.hub.cfg
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case data, ok := <-v.queue:
			//nolint:errcheck // write errors are caught below
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // connection is going away regardless
				v.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // write errors are caught below
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (v *viewer) subscribe(req Request) {
	if len(req.Channels) == 0 {
		v.fail("no channels given")
		return
	}
	for _, ch := range req.Channels {
		if !knownChannel(ch) {
			v.fail("unknown channel: " + ch)
			return
		}
	}
	backlog := defaultBacklog
	if req.Backlog != nil {
		backlog = max(*req.Backlog, 0)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gone {
		return
	}

	v.replyLocked(FrameSubscribed, "", req.Channels)
	for _, ch := range req.Channels {
		if v.channels[ch] {
			continue
		}
		v.channels[ch] = true

		switch ch {
		case ChannelOutput:
			if v.hub.output != nil && backlog > 0 {
				v.replyLocked(FrameBacklog, ch, v.hub.output.Recent(backlog))
			}
		case ChannelLifecycle:
			if v.hub.stats != nil {
				v.replyLocked(FrameSnapshot, ch, v.hub.stats.Stats())
			}
		}
	}
	v.hub.logger.Debug("viewer subscribed", "channels", req.Channels, "backlog", backlog)
}

func (v *viewer) unsubscribe(req Request) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gone {
		return
	}
	for _, ch := range req.Channels {
		delete(v.channels, ch)
	}
	v.replyLocked(FrameUnsubscribed, "", req.Channels)
}
