package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"token_sync/internal/domain"
	"token_sync/internal/event"
)

// ErrUnknownMessage is returned for wire messages with an unsupported type.
var ErrUnknownMessage = errors.New("unknown feed message type")

// Message is the upstream wire envelope.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type newTokenPayload struct {
	Category domain.Category `json:"category,omitempty"`
	Token    *domain.Token   `json:"token,omitempty"`
}

type tokenRemovedPayload struct {
	Category domain.Category `json:"category"`
	TokenID  string          `json:"tokenId"`
}

// TrackMessage tells the upstream which ids the engine holds in a category.
type TrackMessage struct {
	Op       string          `json:"op"`
	Category domain.Category `json:"category"`
	IDs      []string        `json:"ids"`
}

// NewTrackMessage builds the track request for category c.
func NewTrackMessage(c domain.Category, ids []string) TrackMessage {
	if ids == nil {
		ids = []string{}
	}
	return TrackMessage{Op: "track", Category: c, IDs: ids}
}

// Decode converts one wire message into an engine event.
func Decode(data []byte) (event.Event, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if len(msg.Payload) == 0 {
		return nil, fmt.Errorf("%s: missing payload", msg.Type)
	}

	switch msg.Type {
	case event.EvPriceUpdate.String():
		var rec domain.UpdateRecord
		if err := json.Unmarshal(msg.Payload, &rec); err != nil {
			return nil, fmt.Errorf("price_update: %w", err)
		}
		return &event.PriceUpdateEvent{Update: rec}, nil

	case event.EvBatchUpdate.String():
		var recs []domain.UpdateRecord
		if err := json.Unmarshal(msg.Payload, &recs); err != nil {
			return nil, fmt.Errorf("batch_update: %w", err)
		}
		return &event.BatchUpdateEvent{Updates: recs}, nil

	case event.EvNewToken.String():
		var p newTokenPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("new_token: %w", err)
		}
		if p.Token == nil {
			// Bare token payload without an envelope.
			var t domain.Token
			if err := json.Unmarshal(msg.Payload, &t); err != nil {
				return nil, fmt.Errorf("new_token: %w", err)
			}
			p.Token = &t
		}
		return &event.NewTokenEvent{Category: p.Category, Token: *p.Token}, nil

	case event.EvTokenRemoved.String():
		var p tokenRemovedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("token_removed: %w", err)
		}
		return &event.TokenRemovedEvent{Category: p.Category, TokenID: p.TokenID}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
}

// Encode converts an engine event into a wire message. Bulk loads have no
// wire form.
func Encode(ev event.Event) ([]byte, error) {
	var payload any
	switch e := ev.(type) {
	case *event.PriceUpdateEvent:
		payload = e.Update
	case *event.BatchUpdateEvent:
		payload = e.Updates
	case *event.NewTokenEvent:
		payload = newTokenPayload{Category: e.Category, Token: &e.Token}
	case *event.TokenRemovedEvent:
		payload = tokenRemovedPayload{Category: e.Category, TokenID: e.TokenID}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, ev.GetType())
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: ev.GetType().String(), Payload: raw})
}
