package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/shared/models"
	"github.com/radieske/sports-odds-core/pkg/contracts/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// SnapshotSource devolve a projeção de odds em cache de uma partida (nil quando não há)
type SnapshotSource interface {
	Get(ctx context.Context, matchID string) (*models.OddsProjection, error)
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// Hub gerencia conexões WebSocket e assinaturas por grupo
// groups: mapeia o nome do grupo para o conjunto de clientes inscritos
type Hub struct {
	upgrader  websocket.Upgrader
	log       *zap.Logger
	buffer    int
	snapshots SnapshotSource

	mu     sync.RWMutex
	groups map[string]map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS).
// buffer é a fila de saída por cliente; cliente que não acompanha é desconectado.
func NewHub(allowOrigin func(r *http.Request) bool, buffer int, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log.Named("ws"),
		buffer:   buffer,
		groups:   make(map[string]map[*client]struct{}),
	}
}

// WithSnapshots faz o subscribe em "match:{id}" responder com a projeção em cache
func (h *Hub) WithSnapshots(s SnapshotSource) *Hub {
	h.snapshots = s
	return h
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Permite subscribe/unsubscribe em grupos e responde a pings
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, h.buffer), done: make(chan struct{})}
	go h.writeLoop(c)
	defer h.remove(c)

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe":
			if !ValidGroup(msg.Group) {
				h.reply(c, ServerMsg{Type: "error", Group: msg.Group, Error: "invalid group"})
				continue
			}
			h.join(c, msg.Group)
			h.reply(c, ServerMsg{Type: "subscribed", Group: msg.Group})
			h.sendSnapshot(r.Context(), c, msg.Group)
		case "unsubscribe":
			h.leave(c, msg.Group)
			h.reply(c, ServerMsg{Type: "unsubscribed", Group: msg.Group})
		case "ping":
			h.reply(c, ServerMsg{Type: "pong"})
		default:
			h.reply(c, ServerMsg{Type: "error", Error: "unknown message type"})
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

func (h *Hub) join(c *client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.groups[group]; !ok {
		h.groups[group] = make(map[*client]struct{})
	}
	h.groups[group][c] = struct{}{}
}

func (h *Hub) leave(c *client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.groups[group]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.groups, group)
		}
	}
}

// remove tira o cliente de todos os grupos e fecha a conexão
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	for g, set := range h.groups {
		delete(set, c)
		if len(set) == 0 {
			delete(h.groups, g)
		}
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) reply(c *client, msg ServerMsg) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.enqueue(c, b)
}

// enqueue nunca bloqueia: fila cheia derruba o cliente
func (h *Hub) enqueue(c *client, b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		h.log.Warn("slow websocket client dropped")
		h.remove(c)
		return false
	}
}

func (h *Hub) sendSnapshot(ctx context.Context, c *client, group string) {
	if h.snapshots == nil || !strings.HasPrefix(group, matchPrefix) {
		return
	}
	proj, err := h.snapshots.Get(ctx, strings.TrimPrefix(group, matchPrefix))
	if err != nil {
		h.log.Debug("snapshot lookup failed", zap.String("group", group), zap.Error(err))
		return
	}
	if proj == nil {
		return
	}
	data, err := json.Marshal(proj)
	if err != nil {
		return
	}
	h.reply(c, ServerMsg{Type: "snapshot", Group: group, Data: data})
}

// Broadcast envia a mensagem para todos os inscritos no grupo e devolve quantos receberam
func (h *Hub) Broadcast(group string, msg ServerMsg) int {
	h.mu.RLock()
	set := h.groups[group]
	clients := make([]*client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return 0
	}

	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn("marshal broadcast failed", zap.Error(err))
		return 0
	}
	sent := 0
	for _, c := range clients {
		if h.enqueue(c, b) {
			sent++
		}
	}
	return sent
}

// Route entrega o envelope a cada grupo interessado
func (h *Hub) Route(env events.Envelope) int {
	total := 0
	for _, g := range Groups(env) {
		e := env
		total += h.Broadcast(g, ServerMsg{Type: string(env.Type), Group: g, Event: &e})
	}
	return total
}

// Subscribers devolve quantos clientes estão no grupo
func (h *Hub) Subscribers(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}
