package domain

import (
	"fmt"
	"time"
)

// Direction hints which way a field moved, for highlighting.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ParseDirection accepts "up", "down" or an empty string.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case DirectionNone, DirectionUp, DirectionDown:
		return d, nil
	}
	return DirectionNone, fmt.Errorf("invalid direction %q", s)
}

// UpdateRecord instructs the engine to mutate one field of one token.
// The meaning of Value depends on Field.
type UpdateRecord struct {
	ID        string    `json:"id"`
	Field     Field     `json:"field"`
	Value     float64   `json:"value"`
	Direction Direction `json:"direction,omitempty"`
}

// Flash marks a field that changed recently.
type Flash struct {
	TokenID   string    `json:"tokenId"`
	Field     Field     `json:"field"`
	Direction Direction `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
}

// FlashKey identifies a flash slot.
type FlashKey struct {
	TokenID string
	Field   Field
}

func (k FlashKey) String() string { return k.TokenID + "-" + string(k.Field) }
