// Package notify carries backend push notifications to in-process
// subscribers. Transports (WebSocket, Redis pub/sub) feed a Bus; the only
// subscriber contract is "the appointment list may be stale".
package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event types pushed by the backend.
const (
	EventNewAppointment = "new_appointment"
	EventStatusUpdate   = "status_update"
)

var (
	// ErrEmptyEvent is returned for frames that carry no event name.
	ErrEmptyEvent = errors.New("notify: empty event")
	// ErrControlFrame is returned for Engine.IO/Socket.IO packets that are
	// not events (open, ping, pong, connect, ack and the like).
	ErrControlFrame = errors.New("notify: control frame")
)

// Engine.IO packet types.
const (
	engineOpen    = '0'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
)

// Socket.IO packet types carried inside an Engine.IO message.
const (
	socketConnect = '0'
	socketEvent   = '2'
)

// Event is one push notification. Payload is passed through untouched;
// subscribers must not depend on it.
type Event struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Source     string          `json:"source,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Invalidates reports whether the event means cached appointments are stale.
func (e Event) Invalidates() bool {
	return e.Type == EventNewAppointment || e.Type == EventStatusUpdate
}

type wireEvent struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Data    json.RawMessage `json:"data"`
}

// ParseEvent decodes a push frame. Accepted shapes are a JSON object with
// "type" or "event", a socket.io style ["name", data] array, or a bare
// event name. Frames may carry the Engine.IO/Socket.IO numeric prefix
// ("42[...]"); prefixed packets that are not events yield ErrControlFrame.
func ParseEvent(frame []byte, source string, now time.Time) (Event, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return Event{}, ErrEmptyEvent
	}
	if isDigit(frame[0]) {
		body, ok := socketEventBody(frame)
		if !ok {
			return Event{}, ErrControlFrame
		}
		frame = bytes.TrimSpace(body)
		if len(frame) == 0 {
			return Event{}, ErrEmptyEvent
		}
	}
	evt := Event{Source: source, ReceivedAt: now}

	switch frame[0] {
	case '{':
		var w wireEvent
		if err := json.Unmarshal(frame, &w); err != nil {
			return Event{}, fmt.Errorf("notify: decode event: %w", err)
		}
		evt.Type = w.Type
		if evt.Type == "" {
			evt.Type = w.Event
		}
		evt.Payload = w.Payload
		if len(evt.Payload) == 0 {
			evt.Payload = w.Data
		}
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(frame, &parts); err != nil {
			return Event{}, fmt.Errorf("notify: decode event: %w", err)
		}
		if len(parts) == 0 {
			return Event{}, ErrEmptyEvent
		}
		if err := json.Unmarshal(parts[0], &evt.Type); err != nil {
			return Event{}, fmt.Errorf("notify: decode event name: %w", err)
		}
		if len(parts) > 1 {
			evt.Payload = parts[1]
		}
	case '"':
		if err := json.Unmarshal(frame, &evt.Type); err != nil {
			return Event{}, fmt.Errorf("notify: decode event name: %w", err)
		}
	default:
		evt.Type = string(frame)
	}

	evt.Type = strings.ToLower(strings.TrimSpace(evt.Type))
	if evt.Type == "" {
		return Event{}, ErrEmptyEvent
	}
	return evt, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// socketEventBody strips the Engine.IO message type, the Socket.IO packet
// type, an optional "/namespace," and an optional ack id from frame. ok is
// false for anything other than an event.
func socketEventBody(frame []byte) (body []byte, ok bool) {
	if frame[0] != engineMessage {
		return nil, false
	}
	rest := frame[1:]
	if len(rest) == 0 {
		return nil, false
	}
	if !isDigit(rest[0]) {
		// Plain Engine.IO message without Socket.IO framing.
		return rest, true
	}
	if rest[0] != socketEvent {
		return nil, false
	}
	rest = rest[1:]
	if len(rest) > 0 && rest[0] == '/' {
		i := bytes.IndexByte(rest, ',')
		if i < 0 {
			return nil, false
		}
		rest = rest[i+1:]
	}
	for len(rest) > 0 && isDigit(rest[0]) {
		rest = rest[1:]
	}
	return rest, true
}

// HandshakeReply returns the frame a Socket.IO client owes the server in
// response to frame: a pong for a ping and a namespace connect for the
// open packet. It returns nil when no reply is due.
func HandshakeReply(frame []byte) []byte {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil
	}
	switch frame[0] {
	case enginePing:
		reply := make([]byte, len(frame))
		copy(reply, frame)
		reply[0] = enginePong
		return reply
	case engineOpen:
		if len(frame) == 1 || frame[1] == '{' {
			return []byte{engineMessage, socketConnect}
		}
	}
	return nil
}
