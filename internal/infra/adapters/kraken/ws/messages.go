package ws

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Message is an inbound frame. The set of implementations is closed.
type Message interface {
	inbound()
}

// MethodResponse acknowledges (or rejects) a subscribe or unsubscribe request.
type MethodResponse struct {
	Method  string `json:"method"`
	ReqID   int64  `json:"req_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	// Symbol is set on rejections that name the offending symbol.
	Symbol string `json:"symbol,omitempty"`
	Result struct {
		Channel  string `json:"channel"`
		Symbol   string `json:"symbol,omitempty"`
		Snapshot bool   `json:"snapshot,omitempty"`
	} `json:"result"`
	TimeIn  string `json:"time_in"`
	TimeOut string `json:"time_out"`
}

// Heartbeat is sent once a second while any subscription is live.
type Heartbeat struct{}

// Pong answers a ping request.
type Pong struct {
	ReqID int64
}

// StatusMessage reports the venue's system state; it arrives unsolicited on connect.
type StatusMessage struct {
	Type string
	Data []SystemStatus
}

// ChannelMessage carries a data frame whose payload is decoded per channel.
type ChannelMessage struct {
	Channel string
	Type    string
	Data    json.RawMessage
}

func (MethodResponse) inbound() {}
func (Heartbeat) inbound()      {}
func (Pong) inbound()           {}
func (StatusMessage) inbound()  {}
func (ChannelMessage) inbound() {}

var errUnknownFrame = errors.New("frame has neither method nor channel")

// Decode classifies a frame by peeking at its method and channel tags.
func Decode(raw []byte) (Message, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("frame is not valid json")
	}
	tags := gjson.GetManyBytes(raw, "method", "channel", "type", "data")
	method, channel, kind, data := tags[0], tags[1], tags[2], tags[3]

	switch {
	case method.Exists():
		if method.String() == "pong" {
			return Pong{ReqID: gjson.GetBytes(raw, "req_id").Int()}, nil
		}
		var resp MethodResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", method.String(), err)
		}
		return resp, nil
	case channel.Exists():
		switch channel.String() {
		case "heartbeat":
			return Heartbeat{}, nil
		case "status":
			var statuses []SystemStatus
			if data.Exists() {
				if err := json.Unmarshal([]byte(data.Raw), &statuses); err != nil {
					return nil, fmt.Errorf("decode status: %w", err)
				}
			}
			return StatusMessage{Type: kind.String(), Data: statuses}, nil
		}
		return ChannelMessage{Channel: channel.String(), Type: kind.String(), Data: json.RawMessage(data.Raw)}, nil
	}
	return nil, errUnknownFrame
}

type request struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
	ReqID  int64  `json:"req_id"`
}

type subscribeParams struct {
	Channel      string   `json:"channel"`
	Symbol       []string `json:"symbol,omitempty"`
	Depth        int      `json:"depth,omitempty"`
	Snapshot     *bool    `json:"snapshot,omitempty"`
	Interval     int      `json:"interval,omitempty"`
	EventTrigger string   `json:"event_trigger,omitempty"`
	SnapOrders   *bool    `json:"snap_orders,omitempty"`
	SnapTrades   *bool    `json:"snap_trades,omitempty"`
	Token        string   `json:"token,omitempty"`
}

type unsubscribeParams struct {
	Channel  string   `json:"channel"`
	Symbol   []string `json:"symbol,omitempty"`
	Depth    int      `json:"depth,omitempty"`
	Interval int      `json:"interval,omitempty"`
	Token    string   `json:"token,omitempty"`
}
