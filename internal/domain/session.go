package domain

import "time"

type Step string

const (
	StepDevice       Step = "device"
	StepServices     Step = "services"
	StepAppointment  Step = "appointment"
	StepCustomer     Step = "customer"
	StepConfirmation Step = "confirmation"
)

var stepOrder = map[Step]int{
	StepDevice:       0,
	StepServices:     1,
	StepAppointment:  2,
	StepCustomer:     3,
	StepConfirmation: 4,
}

// StepIndex returns the position of a step in the flow, or -1 for an unknown
// step name.
func StepIndex(s Step) int {
	idx, ok := stepOrder[s]
	if !ok {
		return -1
	}
	return idx
}

type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusConfirmed  SessionStatus = "confirmed"
	SessionStatusAbandoned  SessionStatus = "abandoned"
)

// BookingSession is the aggregate for one customer's booking attempt. It is
// mutated only through the session service's step operations; UpdatedAt is the
// activity timestamp the abandonment reaper sweeps on.
type BookingSession struct {
	ID              string            `json:"id"`
	Step            Step              `json:"step"`
	Status          SessionStatus     `json:"status"`
	Device          *Device           `json:"device,omitempty"`
	Services        []ServiceSnapshot `json:"services,omitempty"`
	Quote           *Quote            `json:"quote,omitempty"`
	SlotDate        string            `json:"slot_date,omitempty"`
	SlotTime        string            `json:"slot_time,omitempty"`
	Customer        *CustomerInfo     `json:"customer,omitempty"`
	Urgency         Urgency           `json:"urgency"`
	Condition       Condition         `json:"condition,omitempty"`
	HasWarranty     bool              `json:"has_warranty"`
	ProblemNotes    string            `json:"problem_notes,omitempty"`
	ConfirmationRef string            `json:"confirmation_ref,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// HasSlot reports whether the session currently holds an appointment slot.
func (s *BookingSession) HasSlot() bool {
	return s.SlotDate != "" && s.SlotTime != ""
}
