// Package protocol defines the JSON messages exchanged between the bidding
// agent and a game bridge over websocket.
//
// Every request carries a RequestID that the response echoes. Values the
// game displays as text (price, wealth, countdown) travel in their display
// form and are parsed on the agent side with ParseAmount and ParseDuration.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType names a message in the envelope.
type MessageType string

func (t MessageType) String() string { return string(t) }

const (
	// Agent -> bridge
	TypeHello     MessageType = "hello"
	TypeSnapshot  MessageType = "snapshot"
	TypeActiveBid MessageType = "active_bid"
	TypeWealth    MessageType = "wealth"
	TypePlaceBid  MessageType = "place_bid"

	// Bridge -> agent
	TypeWelcome         MessageType = "welcome"
	TypeSnapshotResult  MessageType = "snapshot_result"
	TypeActiveBidResult MessageType = "active_bid_result"
	TypeWealthResult    MessageType = "wealth_result"
	TypeBidAccepted     MessageType = "bid_accepted"
	TypeError           MessageType = "error"
)

// Message is the envelope of every frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage wraps data in an envelope stamped with now.
func NewMessage(t MessageType, requestID string, data any, now time.Time) (*Message, error) {
	msg := &Message{Type: t, Timestamp: now, RequestID: requestID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", t, err)
		}
		msg.Data = raw
	}
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Type, err)
	}
	return nil
}

type HelloData struct {
	Player string `json:"player"`
}

type WelcomeData struct {
	Player   string   `json:"player"`
	Auctions []string `json:"auctions"`
}

// AuctionRequest is the payload of snapshot, active_bid and wealth requests.
type AuctionRequest struct {
	Auction string `json:"auction"`
}

// SnapshotData is a read of an auction as the game displays it.
type SnapshotData struct {
	Auction       string `json:"auction"`
	Product       string `json:"product"`
	Price         string `json:"price"`
	MaxBidder     string `json:"maxBidder"`
	TimeRemaining string `json:"timeRemaining"`
	Wealth        string `json:"wealth"`
	PriceReadable bool   `json:"priceReadable"`
}

type ActiveBidData struct {
	Auction string `json:"auction"`
	Active  bool   `json:"active"`
	Amount  string `json:"amount,omitempty"`
}

type WealthData struct {
	Wealth string `json:"wealth"`
}

// PlaceBidData raises the auction price by Amount.
type PlaceBidData struct {
	Auction string `json:"auction"`
	Amount  int64  `json:"amount"`
}

type BidAcceptedData struct {
	Auction string `json:"auction"`
	Price   string `json:"price"`
}

// Error codes sent in ErrorData.
const (
	CodeBadRequest     = "bad_request"
	CodeUnknownAuction = "unknown_auction"
	CodeAuctionClosed  = "auction_closed"
	CodeBidRejected    = "bid_rejected"
	CodeNotIdentified  = "not_identified"
)

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ErrorData) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
