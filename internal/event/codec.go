package event

import (
	"encoding/json"
	"fmt"
)

// New returns an empty event of the given type, ready to be unmarshaled into.
func New(t Type) (Event, error) {
	switch t {
	case EvBulkLoad:
		return &BulkLoadEvent{}, nil
	case EvPriceUpdate:
		return &PriceUpdateEvent{}, nil
	case EvBatchUpdate:
		return &BatchUpdateEvent{}, nil
	case EvNewToken:
		return &NewTokenEvent{}, nil
	case EvTokenRemoved:
		return &TokenRemovedEvent{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %d", t)
	}
}

// Unmarshal decodes a payload previously produced by json.Marshal(ev).
func Unmarshal(t Type, payload []byte) (Event, error) {
	ev, err := New(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s event: %w", t, err)
	}
	return ev, nil
}
