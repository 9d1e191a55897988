package nostr

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// IncomingEvent é um evento entregue por uma subscription ativa.
type IncomingEvent struct {
	SubID string
	Event *Event
}

type okResult struct {
	accepted bool
	message  string
}

// Client é uma conexão única com um relay. Quem precisa de reconexão faz o
// loop por fora (o listener refaz o Dial quando Done() fecha).
type Client struct {
	url string
	log *zap.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	events chan IncomingEvent

	pendingMu sync.Mutex
	pendingOK map[string]chan okResult

	done      chan struct{}
	closeOnce sync.Once
	readErr   error
}

// Dial abre a conexão e dispara o loop de leitura.
func Dial(ctx context.Context, url string, log *zap.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}

	c := &Client{
		url:       url,
		log:       log,
		conn:      conn,
		events:    make(chan IncomingEvent, 64),
		pendingOK: make(map[string]chan okResult),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// URL retorna o endereço do relay desta conexão.
func (c *Client) URL() string { return c.url }

// Events entrega os eventos das subscriptions. O canal fecha junto com a
// conexão.
func (c *Client) Events() <-chan IncomingEvent { return c.events }

// Done fecha quando a conexão morre (erro de leitura ou Close).
func (c *Client) Done() <-chan struct{} { return c.done }

// Err retorna o erro que derrubou o loop de leitura, se houve.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.readErr
	default:
		return nil
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.closeOnce.Do(func() { close(c.done) })
		close(c.events)
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.readErr = err
			}
			return
		}

		msg, err := DecodeRelayMessage(data)
		if err != nil {
			c.log.Warn("dropping malformed relay frame", zap.String("relay", c.url), zap.Error(err))
			continue
		}

		switch msg.Type {
		case "EVENT":
			select {
			case c.events <- IncomingEvent{SubID: msg.SubID, Event: msg.Event}:
			default:
				// consumidor lento, melhor descartar do que travar a conexão
				c.log.Warn("event buffer full, dropping event",
					zap.String("relay", c.url), zap.String("event_id", msg.Event.ID))
			}
		case "OK":
			c.pendingMu.Lock()
			ch, ok := c.pendingOK[msg.EventID]
			if ok {
				delete(c.pendingOK, msg.EventID)
			}
			c.pendingMu.Unlock()
			if ok {
				ch <- okResult{accepted: msg.Accepted, message: msg.Message}
			}
		case "EOSE":
			c.log.Debug("end of stored events", zap.String("relay", c.url), zap.String("sub_id", msg.SubID))
		case "NOTICE":
			c.log.Warn("relay notice", zap.String("relay", c.url), zap.String("message", msg.Message))
		}
	}
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Subscribe abre (ou substitui) uma subscription no relay.
func (c *Client) Subscribe(subID string, filters ...Filter) error {
	frame, err := EncodeReq(subID, filters...)
	if err != nil {
		return err
	}
	if err := c.write(frame); err != nil {
		return fmt.Errorf("subscribe on %s: %w", c.url, err)
	}
	return nil
}

// Unsubscribe encerra uma subscription.
func (c *Client) Unsubscribe(subID string) error {
	frame, err := EncodeClose(subID)
	if err != nil {
		return err
	}
	if err := c.write(frame); err != nil {
		return fmt.Errorf("unsubscribe on %s: %w", c.url, err)
	}
	return nil
}

// Publish envia um evento assinado e espera o OK do relay. Retorna o id do
// evento aceito; o deadline vem do contexto de quem chama.
func (c *Client) Publish(ctx context.Context, e *Event) (string, error) {
	ack := make(chan okResult, 1)
	c.pendingMu.Lock()
	c.pendingOK[e.ID] = ack
	c.pendingMu.Unlock()

	cleanup := func() {
		c.pendingMu.Lock()
		delete(c.pendingOK, e.ID)
		c.pendingMu.Unlock()
	}

	frame, err := EncodeEvent(e)
	if err != nil {
		cleanup()
		return "", err
	}
	if err := c.write(frame); err != nil {
		cleanup()
		return "", fmt.Errorf("publish on %s: %w", c.url, err)
	}

	select {
	case res := <-ack:
		if !res.accepted {
			return "", fmt.Errorf("relay %s rejected event %s: %s", c.url, e.ID, res.message)
		}
		return e.ID, nil
	case <-c.done:
		cleanup()
		return "", fmt.Errorf("relay %s closed before ack", c.url)
	case <-ctx.Done():
		cleanup()
		return "", ctx.Err()
	}
}

// Close derruba a conexão de forma educada.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
