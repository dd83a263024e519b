package domain

import "time"

type SlotStatus string

const (
	SlotStatusOpen   SlotStatus = "open"
	SlotStatusHeld   SlotStatus = "held"
	SlotStatusBooked SlotStatus = "booked"
)

// AppointmentSlot is a bookable (date,time) unit with exclusive occupancy.
// Date is YYYY-MM-DD, Time is HH:MM. The allocator is the sole owner of
// status transitions.
type AppointmentSlot struct {
	Date      string     `json:"date"`
	Time      string     `json:"time"`
	Status    SlotStatus `json:"status"`
	SessionID string     `json:"session_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
