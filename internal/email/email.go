package email

import (
	"context"
	"fmt"

	"github.com/avreline/repairbooking/internal/kafka"
	"go.uber.org/zap"
)

// Sender is the notification delivery boundary. Actual delivery is owned by
// an external system; this writes what would be sent.
type Sender struct {
	logger *zap.Logger
}

func NewSender(logger *zap.Logger) *Sender {
	return &Sender{logger: logger}
}

func (s *Sender) Send(ctx context.Context, event kafka.SessionEvent) error {
	if event.Email == "" {
		return nil
	}

	var subject string
	switch event.Type {
	case "session_confirmed":
		subject = fmt.Sprintf("Your repair is booked for %s at %s (ref %s)", event.SlotDate, event.SlotTime, event.ConfirmationRef)
	case "session_abandoned":
		subject = "Your repair booking expired - your appointment slot has been released"
	default:
		subject = fmt.Sprintf("Repair booking update: %s", event.Type)
	}

	s.logger.Info("sending notification email",
		zap.String("to", event.Email),
		zap.String("subject", subject),
		zap.String("session_id", event.SessionID))
	return nil
}
