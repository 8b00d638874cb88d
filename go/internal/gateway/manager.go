// Package gateway fans committed match state out to websocket clients:
// operator cockpits, public scoreboards, and monitor displays subscribe per
// tournament and receive the full projection after every engine mutation.
package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mlutz/spieltag/go/internal/events"
	"github.com/mlutz/spieltag/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ConnectionConfig holds websocket tuning.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Connection is one websocket client subscribed to a tournament. The send
// channel is never closed; teardown is signalled through done so a broadcast
// racing the unregister cannot hit a closed channel.
type Connection struct {
	ID           string
	TournamentID uuid.UUID
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	manager      *ConnectionManager
	connectedAt  time.Time
}

// ConnectionManager keeps per-tournament connection pools and broadcasts
// match state to them.
type ConnectionManager struct {
	pools    map[uuid.UUID]map[*Connection]bool
	mu       sync.RWMutex
	upgrader websocket.Upgrader
	config   ConnectionConfig
}

func NewConnectionManager(cfg ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		pools: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		config: cfg,
	}
}

// MatchUpdated implements the engine's Notifier: every committed mutation is
// broadcast to the match's tournament pool immediately, without waiting for
// the remote sync.
func (cm *ConnectionManager) MatchUpdated(m *models.Match) {
	cm.Broadcast(m.TournamentID, events.FromProjection(m.Projection()))
}

// Broadcast sends a state payload to every connection of a tournament.
func (cm *ConnectionManager) Broadcast(tournamentID uuid.UUID, payload events.MatchStatePayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal broadcast payload")
		return
	}

	cm.mu.RLock()
	pool := cm.pools[tournamentID]
	conns := make([]*Connection, 0, len(pool))
	for c := range pool {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	for _, c := range conns {
		select {
		case <-c.done:
			// Already torn down, nothing listens on send anymore.
		case c.send <- data:
		default:
			// Slow consumer: drop the connection rather than block the engine.
			log.Warn().Str("conn_id", c.ID).Msg("dropping slow websocket consumer")
			cm.unregister(c)
		}
	}
}

// HandleWebSocket upgrades an HTTP request and joins the tournament pool.
func (cm *ConnectionManager) HandleWebSocket(w http.ResponseWriter, r *http.Request, tournamentID uuid.UUID) {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &Connection{
		ID:           uuid.New().String()[:8],
		TournamentID: tournamentID,
		conn:         ws,
		send:         make(chan []byte, 16),
		done:         make(chan struct{}),
		manager:      cm,
		connectedAt:  time.Now(),
	}

	cm.mu.Lock()
	if cm.pools[tournamentID] == nil {
		cm.pools[tournamentID] = make(map[*Connection]bool)
	}
	cm.pools[tournamentID][c] = true
	cm.mu.Unlock()

	log.Info().
		Str("conn_id", c.ID).
		Str("tournament_id", tournamentID.String()).
		Msg("websocket client connected")

	go c.writePump()
	go c.readPump()
}

func (cm *ConnectionManager) unregister(c *Connection) {
	cm.mu.Lock()
	if pool, ok := cm.pools[c.TournamentID]; ok {
		if _, ok := pool[c]; ok {
			delete(pool, c)
			if len(pool) == 0 {
				delete(cm.pools, c.TournamentID)
			}
		}
	}
	cm.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
	_ = c.conn.Close()
}

// ConnectionCount returns the number of clients for a tournament.
func (cm *ConnectionManager) ConnectionCount(tournamentID uuid.UUID) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.pools[tournamentID])
}

func (c *Connection) readPump() {
	defer c.manager.unregister(c)

	c.conn.SetReadLimit(c.manager.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.manager.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.manager.config.PongTimeout))
	})

	for {
		// Clients are read-only; inbound frames only keep the connection alive.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("conn_id", c.ID).Msg("websocket read error")
			}
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
