package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ======================================================
// Chat messages (append-only JSONB log)
// ======================================================

type ChatMessage struct {
	Role      string    `json:"role"` // user | assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageLog []ChatMessage

func (m MessageLog) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *MessageLog) Scan(value any) error {
	if value == nil {
		*m = MessageLog{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for MessageLog: %T", value)
	}
	return json.Unmarshal(data, m)
}

// ======================================================
// Slot set (JSONB)
// ======================================================

// SlotValue is a filled booking field together with the confidence it
// was extracted at. Confidence is retained so a later low-confidence
// candidate can never silently replace a solid value.
type SlotValue struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// SlotSet carries the accumulated booking fields of one conversation.
// Hints hold sub-threshold candidates used to phrase targeted questions;
// Prompts counts how many times each field has been asked about.
type SlotSet struct {
	Fields  map[string]SlotValue `json:"fields,omitempty"`
	Hints   map[string]string    `json:"hints,omitempty"`
	Prompts map[string]int       `json:"prompts,omitempty"`
}

func (s SlotSet) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *SlotSet) Scan(value any) error {
	if value == nil {
		*s = SlotSet{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for SlotSet: %T", value)
	}
	return json.Unmarshal(data, s)
}

// ======================================================
// Chat session
// ======================================================

type ChatSession struct {
	ID string `gorm:"type:uuid;primaryKey" json:"id"`

	UserID string `gorm:"type:uuid;index;not null" json:"user_id"`
	User   User   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`

	Messages MessageLog `gorm:"type:jsonb;default:'[]'" json:"messages"`
	Slots    SlotSet    `gorm:"type:jsonb;default:'{}'" json:"slots"`

	BookingPhase string `gorm:"size:20;default:'COLLECTING'" json:"booking_phase"`

	LastAppointmentID *string `gorm:"type:uuid" json:"last_appointment_id,omitempty"`

	// Version implements optimistic concurrency on save: a turn that
	// loses the race reloads the session and retries in full.
	Version int64 `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
