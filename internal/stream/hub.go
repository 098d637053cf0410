package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"backend-playerroutes/internal/auth"
	"backend-playerroutes/internal/tracking"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultSendBuffer = 256
	redisOutboxSize   = 1024
)

type SessionSource interface {
	ActiveSessions() []tracking.Session
}

type SessionSourceFunc func() []tracking.Session

func (f SessionSourceFunc) ActiveSessions() []tracking.Session { return f() }

type Clock interface {
	WorldTime() (int64, bool)
}

type TileRefresher interface {
	InvalidateCache()
	InvalidateRegion(region string) int
}

type CommandExecutor interface {
	Execute(ctx context.Context, command string) (string, error)
}

type Options struct {
	Token      string
	Sessions   SessionSource
	Clock      Clock
	Tiles      TileRefresher
	Commands   CommandExecutor
	Redis      *redis.Client
	Log        *zap.Logger
	SendBuffer int
}

// Client is one websocket connection. Send is never closed; writers stop on Done.
type Client struct {
	ID     string
	Remote string
	Send   chan []byte

	authenticated atomic.Bool
	done          chan struct{}
	closeOnce     sync.Once
}

func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Authenticated() bool { return c.authenticated.Load() }

type Stats struct {
	Clients    int   `json:"clients"`
	Broadcasts int64 `json:"broadcasts"`
	Sent       int64 `json:"sent"`
	Dropped    int64 `json:"dropped"`
	Rejected   int64 `json:"rejected"`
	Remote     int64 `json:"remote"`
	// RedisDropped counts broadcasts not forwarded to other instances.
	RedisDropped int64 `json:"redis_dropped"`
}

// Hub fans server events out to authenticated clients. Every emission goes
// through emitMu so all clients observe the same order.
type Hub struct {
	opts Options
	id   string
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	emitMu  sync.Mutex
	mu      sync.RWMutex
	clients map[*Client]struct{}

	redisReady chan struct{}
	redisOut   chan []byte

	broadcasts atomic.Int64
	sent       atomic.Int64
	dropped    atomic.Int64
	rejected   atomic.Int64
	remote     atomic.Int64
	redisDrop  atomic.Int64
}

func NewHub(opts Options) *Hub {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		opts:       opts,
		id:         uuid.NewString(),
		log:        opts.Log,
		ctx:        ctx,
		cancel:     cancel,
		clients:    map[*Client]struct{}{},
		redisReady: make(chan struct{}),
	}

	if opts.Redis != nil {
		h.redisOut = make(chan []byte, redisOutboxSize)
		go h.subscribeRedis()
		go h.publishLoop()
	} else {
		close(h.redisReady)
	}
	return h
}

// Accept creates an unauthenticated client. It receives nothing until Authenticate succeeds.
func (h *Hub) Accept(remote string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		Remote: remote,
		Send:   make(chan []byte, h.opts.SendBuffer),
		done:   make(chan struct{}),
	}
}

// Authenticate registers c if token matches and queues the init snapshot.
func (h *Hub) Authenticate(c *Client, token string) bool {
	if !auth.Check(h.opts.Token, token) {
		h.rejected.Add(1)
		h.log.Warn("websocket client rejected", zap.String("remote", c.Remote))
		return false
	}

	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	msg := initMessage{Type: TypeInit, ActiveSessions: []tracking.Session{}}
	if h.opts.Sessions != nil {
		if sessions := h.opts.Sessions.ActiveSessions(); sessions != nil {
			msg.ActiveSessions = sessions
		}
	}
	if h.opts.Clock != nil {
		if wt, ok := h.opts.Clock.WorldTime(); ok {
			msg.WorldTime = &wt
		}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal init", zap.Error(err))
		return false
	}

	h.mu.Lock()
	select {
	case <-c.done:
		h.mu.Unlock()
		return false
	default:
	}
	c.authenticated.Store(true)
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.enqueue(c, data)
	h.log.Info("websocket client authenticated", zap.String("client", c.ID), zap.String("remote", c.Remote))
	return true
}

// Disconnect removes c. Safe to call more than once.
func (h *Hub) Disconnect(c *Client) {
	c.closeOnce.Do(func() {
		h.mu.Lock()
		_, registered := h.clients[c]
		delete(h.clients, c)
		close(c.done)
		h.mu.Unlock()
		if registered {
			h.log.Info("websocket client disconnected", zap.String("client", c.ID))
		}
	})
}

// Close disconnects every client and stops the redis subscription.
func (h *Hub) Close() {
	h.cancel()
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.Disconnect(c)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleMessage dispatches one client request. Unauthenticated clients and
// malformed payloads are logged and dropped.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, data []byte) {
	if !c.Authenticated() {
		h.log.Warn("ignoring message from unauthenticated client", zap.String("remote", c.Remote))
		return
	}

	var req inbound
	if err := json.Unmarshal(data, &req); err != nil {
		h.log.Warn("malformed client message", zap.String("client", c.ID), zap.Error(err))
		return
	}

	switch req.Type {
	case TypeRefreshTiles:
		h.refreshTiles(c, req)
	case TypeTeleport:
		h.teleport(ctx, c, req)
	case TypeExecuteCommand:
		h.executeCommand(ctx, c, req)
	default:
		h.log.Warn("unknown message type", zap.String("client", c.ID), zap.String("type", req.Type))
	}
}

func (h *Hub) refreshTiles(c *Client, req inbound) {
	if h.opts.Tiles == nil {
		h.reply(c, refreshTilesResponse{Type: TypeRefreshTilesResponse, Error: "tile scheduler not available"})
		return
	}
	if region := strings.TrimSpace(req.Dimension); region != "" {
		h.opts.Tiles.InvalidateRegion(region)
		h.reply(c, refreshTilesResponse{Type: TypeRefreshTilesResponse, Success: true, Message: "Refreshing tiles for dimension: " + region})
		return
	}
	h.opts.Tiles.InvalidateCache()
	h.reply(c, refreshTilesResponse{Type: TypeRefreshTilesResponse, Success: true, Message: "Refreshing all tiles"})
}

// TeleportCommand builds the console command for a teleport request.
func TeleportCommand(player, target string, x, y, z *float64) (string, error) {
	if player == "" {
		return "", fmt.Errorf("player name required")
	}
	if target != "" {
		return fmt.Sprintf("tp %s %s", player, target), nil
	}
	if x != nil && y != nil && z != nil {
		return fmt.Sprintf("tp %s %.2f %.2f %.2f", player, *x, *y, *z), nil
	}
	return "", fmt.Errorf("either target player or coordinates required")
}

func (h *Hub) teleport(ctx context.Context, c *Client, req inbound) {
	cmd, err := TeleportCommand(req.Player, req.TargetPlayer, req.X, req.Y, req.Z)
	if err != nil {
		h.reply(c, commandResponse{Type: TypeCommandResponse, Message: err.Error()})
		return
	}
	h.execute(ctx, c, cmd)
}

func (h *Hub) executeCommand(ctx context.Context, c *Client, req inbound) {
	cmd := strings.TrimPrefix(strings.TrimSpace(req.Command), "/")
	if cmd == "" {
		h.reply(c, commandResponse{Type: TypeCommandResponse, Message: "Command required"})
		return
	}
	h.execute(ctx, c, cmd)
}

func (h *Hub) execute(ctx context.Context, c *Client, cmd string) {
	if h.opts.Commands == nil {
		h.reply(c, commandResponse{Type: TypeCommandResponse, Message: "Server not available"})
		return
	}
	if _, err := h.opts.Commands.Execute(ctx, cmd); err != nil {
		h.log.Warn("command failed", zap.String("command", cmd), zap.Error(err))
		h.reply(c, commandResponse{Type: TypeCommandResponse, Message: "Error: " + err.Error()})
		return
	}
	h.log.Info("executed command", zap.String("client", c.ID), zap.String("command", cmd))
	h.reply(c, commandResponse{Type: TypeCommandResponse, Success: true, Message: "Command executed: /" + cmd})
}

func (h *Hub) reply(c *Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("marshal reply", zap.Error(err))
		return
	}
	h.enqueue(c, data)
}

func (h *Hub) SessionStarted(s tracking.Session) {
	h.Broadcast(sessionStartMessage{Type: TypeSessionStart, Session: s})
}

func (h *Hub) SessionEnded(s tracking.Session) {
	h.Broadcast(sessionEndMessage{
		Type:       TypeSessionEnd,
		SessionID:  s.ID,
		PlayerID:   s.PlayerID,
		PlayerName: s.PlayerName,
		EndedAt:    s.EndedAt,
		Stats:      s.Stats,
	})
}

func (h *Hub) RoutePoint(s tracking.Session, p tracking.RoutePoint, worldTime int64) {
	h.Broadcast(routePointMessage{
		Type:       TypeRoutePoint,
		SessionID:  s.ID,
		PlayerID:   s.PlayerID,
		PlayerName: s.PlayerName,
		Point:      p,
		WorldTime:  worldTime,
		Conn:       tracking.Conn{Online: s.Active, PingMs: s.PingMs},
	})
}

// WorldTime is skipped while nobody is listening.
func (h *Hub) WorldTime(ticks int64) {
	if h.ClientCount() == 0 {
		return
	}
	h.Broadcast(timeUpdateMessage{Type: TypeTimeUpdate, WorldTime: ticks})
}

// Broadcast serializes v once and offers it to every authenticated client.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("marshal broadcast", zap.Error(err))
		return
	}

	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	h.broadcasts.Add(1)
	h.deliver(data)
	if h.redisOut != nil {
		h.queueRemote(data)
	}
}

func (h *Hub) deliver(data []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.enqueue(c, data)
	}
}

// enqueue never blocks; a full buffer drops the message for that client only.
func (h *Hub) enqueue(c *Client, data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.Send <- data:
		h.sent.Add(1)
	default:
		h.dropped.Add(1)
		h.log.Warn("client send buffer full", zap.String("client", c.ID))
	}
}

func (h *Hub) Stats() Stats {
	return Stats{
		Clients:    h.ClientCount(),
		Broadcasts: h.broadcasts.Load(),
		Sent:       h.sent.Load(),
		Dropped:    h.dropped.Load(),
		Rejected:   h.rejected.Load(),
		Remote:     h.remote.Load(),

		RedisDropped: h.redisDrop.Load(),
	}
}
