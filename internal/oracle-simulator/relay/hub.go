package relay

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/dlc-duel-platform-poc/pkg/nostr"
)

// Hub é um relay NIP-01 de brinquedo: guarda os eventos publicados em
// memória e repassa pra toda subscription cujo filtro casa. Implementa
// só o que o fluxo do duelo usa (EVENT, REQ, CLOSE, OK, EOSE) — não é
// um relay de produção.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	seen   map[string]bool
	stored []*nostr.Event
	conns  map[*client]struct{}
}

// client é uma conexão com as subscriptions dela. O mutex serializa os
// writes no socket: respostas do read loop e broadcasts saem de
// goroutines diferentes.
type client struct {
	ws   *websocket.Conn
	mu   sync.Mutex
	subs map[string][]nostr.Filter
}

func (c *client) send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		seen:  make(map[string]bool),
		conns: make(map[*client]struct{}),
	}
}

// HandleWS faz o upgrade e roda o read loop da conexão até o cliente
// sumir.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{ws: ws, subs: make(map[string][]nostr.Filter)}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	h.log.Info("relay client connected", zap.String("remote", ws.RemoteAddr().String()))

	defer func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
		ws.Close()
		h.log.Info("relay client disconnected", zap.String("remote", ws.RemoteAddr().String()))
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := nostr.DecodeClientMessage(raw)
		if err != nil {
			frame, _ := nostr.EncodeNotice("unreadable message")
			c.send(frame)
			continue
		}
		switch msg.Type {
		case "REQ":
			h.openSub(c, msg.SubID, msg.Filters)
		case "CLOSE":
			h.mu.Lock()
			delete(c.subs, msg.SubID)
			h.mu.Unlock()
		case "EVENT":
			h.ingest(c, msg.Event)
		}
	}
}

// openSub registra a subscription, devolve o histórico que casa e fecha
// com EOSE. Um REQ com o mesmo id substitui os filtros antigos.
func (h *Hub) openSub(c *client, subID string, filters []nostr.Filter) {
	h.mu.Lock()
	c.subs[subID] = filters
	var replay []*nostr.Event
	for _, ev := range h.stored {
		if matchesAny(filters, ev) {
			replay = append(replay, ev)
		}
	}
	h.mu.Unlock()

	for _, ev := range replay {
		frame, _ := nostr.EncodeEventForSub(subID, ev)
		if err := c.send(frame); err != nil {
			return
		}
	}
	frame, _ := nostr.EncodeEOSE(subID)
	c.send(frame)
}

// ingest valida um EVENT vindo de cliente, responde o OK e repassa.
// Evento repetido ganha OK de novo mas não é reenviado pra ninguém.
func (h *Hub) ingest(c *client, ev *nostr.Event) {
	if ev == nil {
		frame, _ := nostr.EncodeNotice("EVENT sem corpo")
		c.send(frame)
		return
	}
	if err := ev.CheckSignature(); err != nil {
		frame, _ := nostr.EncodeOK(ev.ID, false, "invalid: "+err.Error())
		c.send(frame)
		return
	}
	fresh := h.store(ev)
	frame, _ := nostr.EncodeOK(ev.ID, true, "")
	c.send(frame)
	if fresh {
		h.fanout(ev)
	}
}

// Accept publica um evento direto no hub, sem websocket no meio. É o
// caminho que o próprio simulador usa; não revalida assinatura.
func (h *Hub) Accept(ev *nostr.Event) {
	if h.store(ev) {
		h.fanout(ev)
	}
}

// SubCount conta as subscriptions abertas somando todas as conexões.
func (h *Hub) SubCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.conns {
		n += len(c.subs)
	}
	return n
}

// Events devolve uma cópia do que o hub guardou, em ordem de chegada.
func (h *Hub) Events() []*nostr.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*nostr.Event, len(h.stored))
	copy(out, h.stored)
	return out
}

func (h *Hub) store(ev *nostr.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seen[ev.ID] {
		return false
	}
	h.seen[ev.ID] = true
	h.stored = append(h.stored, ev)
	return true
}

func (h *Hub) fanout(ev *nostr.Event) {
	type target struct {
		c     *client
		subID string
	}
	var targets []target

	h.mu.RLock()
	for c := range h.conns {
		for subID, filters := range c.subs {
			if matchesAny(filters, ev) {
				targets = append(targets, target{c, subID})
			}
		}
	}
	h.mu.RUnlock()

	for _, t := range targets {
		frame, _ := nostr.EncodeEventForSub(t.subID, ev)
		if err := t.c.send(frame); err != nil {
			h.log.Warn("relay delivery failed", zap.Error(err))
		}
	}
}

func matchesAny(filters []nostr.Filter, ev *nostr.Event) bool {
	for _, f := range filters {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}
