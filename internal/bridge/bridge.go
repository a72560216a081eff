// Package bridge connects the agent to a game bridge over websocket. One
// connection serves every auction of a player; Auction returns the game
// client for a single auction.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/autobid/internal/protocol"
)

var ErrNotConnected = errors.New("not connected to game bridge")

const (
	DefaultRequestTimeout = 10 * time.Second

	writeWait  = 10 * time.Second
	pingPeriod = 54 * time.Second
)

// Conn is a websocket session with request/response correlation.
type Conn struct {
	ws      *websocket.Conn
	player  string
	timeout time.Duration
	logger  *log.Logger

	send      chan *protocol.Message
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	nextID  atomic.Uint64
	mu      sync.Mutex
	pending map[string]chan *protocol.Message

	auctions []string
}

// Option configures a Conn.
type Option func(*Conn)

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Conn) { c.timeout = d }
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Conn) { c.logger = logger }
}

// Dial connects to the bridge at serverURL and identifies as player.
func Dial(ctx context.Context, serverURL, player string, opts ...Option) (*Conn, error) {
	u, err := wsURL(serverURL)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		player:  player,
		timeout: DefaultRequestTimeout,
		logger:  log.Default(),
		send:    make(chan *protocol.Message, 64),
		ctx:     cctx,
		cancel:  cancel,
		pending: make(map[string]chan *protocol.Message),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithPrefix("bridge")

	c.logger.Info("Connecting to game bridge", "url", u)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	c.ws = ws

	go c.readPump()
	go c.writePump()

	var welcome protocol.WelcomeData
	if err := c.request(ctx, protocol.TypeHello, protocol.HelloData{Player: player}, protocol.TypeWelcome, &welcome); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("hello: %w", err)
	}
	c.auctions = welcome.Auctions
	c.logger.Info("Connected to game bridge", "player", welcome.Player, "auctions", welcome.Auctions)
	return c, nil
}

// Auctions lists the auctions the bridge announced.
func (c *Conn) Auctions() []string { return c.auctions }

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return err
}

// request sends a message and decodes the reply into out. A reply of type
// error is returned as a protocol.ErrorData.
func (c *Conn) request(ctx context.Context, t protocol.MessageType, data any, want protocol.MessageType, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	id := strconv.FormatUint(c.nextID.Add(1), 10)
	msg, err := protocol.NewMessage(t, id, data, time.Now())
	if err != nil {
		return err
	}

	replyCh := make(chan *protocol.Message, 1)
	c.mu.Lock()
	c.pending[id] = replyCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	select {
	case c.send <- msg:
	case <-c.ctx.Done():
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case reply := <-replyCh:
		switch reply.Type {
		case want:
			return reply.Decode(out)
		case protocol.TypeError:
			var e protocol.ErrorData
			if err := reply.Decode(&e); err != nil {
				return err
			}
			return e
		default:
			return fmt.Errorf("unexpected reply %s to %s", reply.Type, t)
		}
	case <-c.ctx.Done():
		return ErrNotConnected
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", t, ctx.Err())
	}
}

func (c *Conn) readPump() {
	defer func() { _ = c.Close() }()

	for {
		var msg protocol.Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.logger.Debug("Received message", "type", msg.Type, "request", msg.RequestID)

		c.mu.Lock()
		replyCh, ok := c.pending[msg.RequestID]
		c.mu.Unlock()
		if !ok {
			c.logger.Warn("Dropping unsolicited message", "type", msg.Type, "request", msg.RequestID)
			continue
		}
		replyCh <- &msg
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// wsURL accepts ws(s) and http(s) URLs and defaults the path to /ws.
func wsURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid bridge URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid bridge URL %q: unsupported scheme", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}
