package house

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/autobid/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

var errSendBufferFull = errors.New("send buffer full")

// connection serves one agent. The player is fixed by its hello.
type connection struct {
	ws     *websocket.Conn
	house  *House
	send   chan *protocol.Message
	logger *log.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu     sync.RWMutex
	player string
}

func newConnection(ws *websocket.Conn, h *House, logger *log.Logger) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		ws:     ws,
		house:  h,
		send:   make(chan *protocol.Message, 64),
		logger: logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *connection) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return err
}

func (c *connection) Player() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.player
}

func (c *connection) readPump() {
	defer func() { _ = c.Close() }()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg protocol.Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
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

func (c *connection) handleMessage(msg *protocol.Message) {
	c.logger.Debug("Received message", "type", msg.Type, "player", c.Player())

	if msg.Type == protocol.TypeHello {
		var data protocol.HelloData
		if err := msg.Decode(&data); err != nil || data.Player == "" {
			c.sendError(msg.RequestID, protocol.CodeBadRequest, "hello needs a player name")
			return
		}
		c.mu.Lock()
		c.player = data.Player
		c.mu.Unlock()
		c.reply(protocol.TypeWelcome, msg.RequestID, protocol.WelcomeData{Player: data.Player, Auctions: c.house.Auctions()})
		return
	}

	player := c.Player()
	if player == "" {
		c.sendError(msg.RequestID, protocol.CodeNotIdentified, "send hello first")
		return
	}

	switch msg.Type {
	case protocol.TypeSnapshot:
		var req protocol.AuctionRequest
		if !c.decode(msg, &req) {
			return
		}
		v, err := c.house.View(req.Auction, player)
		if err != nil {
			c.sendHouseError(msg.RequestID, err)
			return
		}
		c.reply(protocol.TypeSnapshotResult, msg.RequestID, snapshotData(v))

	case protocol.TypeActiveBid:
		var req protocol.AuctionRequest
		if !c.decode(msg, &req) {
			return
		}
		amount, ok, err := c.house.ActiveBid(req.Auction, player)
		if err != nil {
			c.sendHouseError(msg.RequestID, err)
			return
		}
		data := protocol.ActiveBidData{Auction: req.Auction, Active: ok}
		if ok {
			data.Amount = protocol.FormatAmount(amount)
		}
		c.reply(protocol.TypeActiveBidResult, msg.RequestID, data)

	case protocol.TypeWealth:
		c.reply(protocol.TypeWealthResult, msg.RequestID, protocol.WealthData{Wealth: protocol.FormatAmount(c.house.Wealth(player))})

	case protocol.TypePlaceBid:
		var req protocol.PlaceBidData
		if !c.decode(msg, &req) {
			return
		}
		price, err := c.house.PlaceBid(req.Auction, player, req.Amount)
		if err != nil {
			c.sendHouseError(msg.RequestID, err)
			return
		}
		c.reply(protocol.TypeBidAccepted, msg.RequestID, protocol.BidAcceptedData{Auction: req.Auction, Price: protocol.FormatAmount(price)})

	default:
		c.sendError(msg.RequestID, protocol.CodeBadRequest, "unknown message type: "+msg.Type.String())
	}
}

func snapshotData(v View) protocol.SnapshotData {
	data := protocol.SnapshotData{
		Auction:       v.Auction,
		Product:       v.Product,
		Wealth:        protocol.FormatAmount(v.Wealth),
		PriceReadable: v.Open,
		Price:         "-",
		TimeRemaining: protocol.FormatDuration(v.Remaining),
	}
	if v.Open {
		data.Price = protocol.FormatAmount(v.Price)
		data.MaxBidder = v.Leader
	}
	return data
}

func (c *connection) decode(msg *protocol.Message, v any) bool {
	if err := msg.Decode(v); err != nil {
		c.sendError(msg.RequestID, protocol.CodeBadRequest, err.Error())
		return false
	}
	return true
}

func (c *connection) sendHouseError(requestID string, err error) {
	code := protocol.CodeBidRejected
	switch {
	case errors.Is(err, ErrUnknownAuction):
		code = protocol.CodeUnknownAuction
	case errors.Is(err, ErrAuctionClosed):
		code = protocol.CodeAuctionClosed
	}
	c.sendError(requestID, code, err.Error())
}

func (c *connection) sendError(requestID, code, message string) {
	c.reply(protocol.TypeError, requestID, protocol.ErrorData{Code: code, Message: message})
}

func (c *connection) reply(t protocol.MessageType, requestID string, data any) {
	msg, err := protocol.NewMessage(t, requestID, data, c.house.clock.Now())
	if err != nil {
		c.logger.Error("Failed to encode reply", "type", t, "error", err)
		return
	}
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("Send buffer full, closing connection", "error", errSendBufferFull)
		_ = c.Close()
	}
}
