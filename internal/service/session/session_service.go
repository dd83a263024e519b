package session

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/avreline/repairbooking/internal/domain"
	"github.com/avreline/repairbooking/internal/gateway"
	"github.com/avreline/repairbooking/internal/kafka"
	"github.com/avreline/repairbooking/internal/repository"
	"github.com/avreline/repairbooking/internal/service/pricing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SessionUseCase interface {
	Start(ctx context.Context) (*domain.BookingSession, error)
	Get(ctx context.Context, sessionID string) (*domain.BookingSession, error)
	SelectDevice(ctx context.Context, sessionID, deviceID string) (*domain.BookingSession, error)
	SelectServices(ctx context.Context, sessionID string, serviceIDs []string) (*domain.BookingSession, error)
	BookAppointment(ctx context.Context, sessionID, date, timeOfDay string) (*domain.BookingSession, error)
	AddCustomerInfo(ctx context.Context, sessionID string, input CustomerInput) (*domain.BookingSession, error)
	Submit(ctx context.Context, sessionID string) (*gateway.ConfirmationReceipt, error)
	GoToStep(ctx context.Context, sessionID string, step domain.Step) (*domain.BookingSession, error)
	ListAvailableSlots(ctx context.Context) ([]domain.AppointmentSlot, error)
	ExpireAbandoned(ctx context.Context) ([]domain.BookingSession, error)
}

// Resolver is the catalog boundary the state machine consumes.
type Resolver interface {
	GetDevice(ctx context.Context, id string) (*domain.Device, error)
	CompatibleServices(ctx context.Context, device domain.Device) ([]domain.RepairService, error)
}

// SlotLocker is the redis fast-path guard in front of slot reservation.
type SlotLocker interface {
	AcquireSlotLock(ctx context.Context, date, timeOfDay, sessionID string, ttl time.Duration) (bool, error)
	ReleaseSlotLock(ctx context.Context, date, timeOfDay string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Gateway submits the finished session to the order system.
type Gateway interface {
	Submit(ctx context.Context, payload gateway.SubmissionPayload) (*gateway.ConfirmationReceipt, error)
}

type CustomerInput struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	Urgency     string `json:"urgency"`
	Condition   string `json:"condition"`
	HasWarranty bool   `json:"has_warranty"`
	Notes       string `json:"notes"`
}

type SessionService struct {
	sessions           repository.SessionRepository
	slots              repository.SlotRepository
	resolver           Resolver
	locker             SlotLocker
	producer           Producer
	gateway            Gateway
	eventsTopic        string
	notificationsTopic string
	holdTTL            time.Duration
	inactivityTTL      time.Duration
	horizonDays        int
	logger             *zap.Logger
}

type SessionServiceOption func(*SessionService)

func WithNotificationsTopic(topic string) SessionServiceOption {
	return func(s *SessionService) {
		s.notificationsTopic = topic
	}
}

func WithSlotHorizon(days int) SessionServiceOption {
	return func(s *SessionService) {
		s.horizonDays = days
	}
}

func NewSessionService(
	sessions repository.SessionRepository,
	slots repository.SlotRepository,
	resolver Resolver,
	locker SlotLocker,
	producer Producer,
	gw Gateway,
	eventsTopic string,
	holdTTL, inactivityTTL time.Duration,
	logger *zap.Logger,
	opts ...SessionServiceOption,
) *SessionService {
	service := &SessionService{
		sessions:      sessions,
		slots:         slots,
		resolver:      resolver,
		locker:        locker,
		producer:      producer,
		gateway:       gw,
		eventsTopic:   eventsTopic,
		holdTTL:       holdTTL,
		inactivityTTL: inactivityTTL,
		horizonDays:   14,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *SessionService) Start(ctx context.Context) (*domain.BookingSession, error) {
	session := &domain.BookingSession{
		ID:      uuid.NewString(),
		Step:    domain.StepDevice,
		Status:  domain.SessionStatusInProgress,
		Urgency: domain.UrgencyStandard,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("booking session started", zap.String("session_id", session.ID))
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, sessionID string) (*domain.BookingSession, error) {
	return s.sessions.Get(ctx, sessionID)
}

func (s *SessionService) SelectDevice(ctx context.Context, sessionID, deviceID string) (*domain.BookingSession, error) {
	session, err := s.activeAt(ctx, sessionID, domain.StepDevice)
	if err != nil {
		return nil, err
	}

	device, err := s.resolver.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	// A new device invalidates everything downstream: compatibility, quote
	// and any held slot are all device-dependent.
	session.Device = device
	session.Services = nil
	session.Quote = nil
	if session.HasSlot() {
		if err := s.releaseSlot(ctx, session); err != nil {
			return nil, err
		}
	}

	session.Step = domain.StepServices
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) SelectServices(ctx context.Context, sessionID string, serviceIDs []string) (*domain.BookingSession, error) {
	session, err := s.activeAt(ctx, sessionID, domain.StepServices)
	if err != nil {
		return nil, err
	}
	if len(serviceIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one service must be selected", domain.ErrValidation)
	}

	compatible, err := s.resolver.CompatibleServices(ctx, *session.Device)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.RepairService, len(compatible))
	for _, svc := range compatible {
		byID[svc.ID] = svc
	}

	selected := make([]domain.RepairService, 0, len(serviceIDs))
	seen := make(map[string]bool, len(serviceIDs))
	for _, id := range serviceIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		svc, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: service %s does not apply to device %s", domain.ErrIncompatible, id, session.Device.ID)
		}
		selected = append(selected, svc)
	}

	snapshots, quote := pricing.ComputeQuote(*session.Device, selected)
	session.Services = snapshots
	session.Quote = &quote
	session.Step = domain.StepAppointment
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) BookAppointment(ctx context.Context, sessionID, date, timeOfDay string) (*domain.BookingSession, error) {
	session, err := s.activeAt(ctx, sessionID, domain.StepAppointment)
	if err != nil {
		return nil, err
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrValidation)
	}
	if _, err := time.Parse("15:04", timeOfDay); err != nil {
		return nil, fmt.Errorf("%w: time must be HH:MM", domain.ErrValidation)
	}

	locked := false
	if s.locker != nil {
		ok, err := s.locker.AcquireSlotLock(ctx, date, timeOfDay, session.ID, s.holdTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrSlotUnavailable
		}
		locked = true
	}

	if err := s.slots.Reserve(ctx, date, timeOfDay, session.ID); err != nil {
		if locked {
			_ = s.locker.ReleaseSlotLock(ctx, date, timeOfDay)
		}
		return nil, err
	}

	session.SlotDate = date
	session.SlotTime = timeOfDay
	session.Step = domain.StepCustomer
	if err := s.sessions.Update(ctx, session); err != nil {
		_ = s.slots.Release(ctx, date, timeOfDay, session.ID)
		if locked {
			_ = s.locker.ReleaseSlotLock(ctx, date, timeOfDay)
		}
		return nil, err
	}
	return session, nil
}

func (s *SessionService) AddCustomerInfo(ctx context.Context, sessionID string, input CustomerInput) (*domain.BookingSession, error) {
	session, err := s.activeAt(ctx, sessionID, domain.StepCustomer)
	if err != nil {
		return nil, err
	}

	info, urgency, condition, err := validateCustomerInput(input)
	if err != nil {
		return nil, err
	}

	session.Customer = info
	session.Urgency = urgency
	session.Condition = condition
	session.HasWarranty = input.HasWarranty
	session.ProblemNotes = strings.TrimSpace(input.Notes)
	session.Step = domain.StepConfirmation
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) Submit(ctx context.Context, sessionID string) (*gateway.ConfirmationReceipt, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionStatusConfirmed {
		// Retried submit after success: hand back the stored receipt.
		return &gateway.ConfirmationReceipt{BookingRef: session.ConfirmationRef}, nil
	}
	if session.Status != domain.SessionStatusInProgress || session.Step != domain.StepConfirmation {
		return nil, fmt.Errorf("%w: submit requires a completed session", domain.ErrStepOrder)
	}

	receipt, err := s.gateway.Submit(ctx, buildPayload(session))
	if err != nil {
		// Session stays at confirmation so the caller can retry without
		// re-pricing or re-reserving the slot.
		s.logger.Warn("booking submission failed", zap.String("session_id", session.ID), zap.Error(err))
		return nil, err
	}

	session.Status = domain.SessionStatusConfirmed
	session.ConfirmationRef = receipt.BookingRef
	if err := s.sessions.Update(ctx, session); err != nil {
		// The order system already accepted the booking. Failing the call
		// here would invite a retry and a duplicate order, so hand the
		// receipt back and leave a recoverable trail for the stored state.
		s.logger.Error("confirmed booking not persisted",
			zap.String("session_id", session.ID),
			zap.String("ref", receipt.BookingRef),
			zap.Error(err))
		return receipt, nil
	}

	if err := s.publish(ctx, "session_confirmed", session); err != nil {
		s.logger.Warn("failed to publish session_confirmed event", zap.String("session_id", session.ID), zap.Error(err))
	}
	s.logger.Info("booking confirmed", zap.String("session_id", session.ID), zap.String("ref", receipt.BookingRef))
	return receipt, nil
}

// GoToStep supports backward navigation. State belonging to the target step
// and everything after it is cleared, so the step's validation runs from
// scratch on re-entry; a held slot is released back to availability.
func (s *SessionService) GoToStep(ctx context.Context, sessionID string, step domain.Step) (*domain.BookingSession, error) {
	session, err := s.active(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	target := domain.StepIndex(step)
	current := domain.StepIndex(session.Step)
	if target < 0 {
		return nil, fmt.Errorf("%w: unknown step %q", domain.ErrValidation, step)
	}
	if target == current {
		return session, nil
	}
	if target > current {
		return nil, fmt.Errorf("%w: cannot skip forward to %s", domain.ErrStepOrder, step)
	}

	if target <= domain.StepIndex(domain.StepCustomer) {
		session.Customer = nil
		session.Urgency = domain.UrgencyStandard
		session.Condition = ""
		session.HasWarranty = false
		session.ProblemNotes = ""
	}
	if target <= domain.StepIndex(domain.StepAppointment) && session.HasSlot() {
		if err := s.releaseSlot(ctx, session); err != nil {
			return nil, err
		}
	}
	if target <= domain.StepIndex(domain.StepServices) {
		session.Services = nil
		session.Quote = nil
	}
	if target <= domain.StepIndex(domain.StepDevice) {
		session.Device = nil
	}

	session.Step = step
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) ListAvailableSlots(ctx context.Context) ([]domain.AppointmentSlot, error) {
	return s.slots.ListOpen(ctx, s.horizonDays)
}

// ExpireAbandoned is the reaper pass run by the worker: sessions inactive past
// the threshold are marked abandoned and their slots handed back.
func (s *SessionService) ExpireAbandoned(ctx context.Context) ([]domain.BookingSession, error) {
	deadline := time.Now().Add(-s.inactivityTTL)
	abandoned, err := s.sessions.AbandonInactiveBefore(ctx, deadline)
	if err != nil {
		return nil, err
	}
	for i := range abandoned {
		sess := &abandoned[i]
		if sess.HasSlot() {
			if err := s.slots.Release(ctx, sess.SlotDate, sess.SlotTime, sess.ID); err != nil {
				s.logger.Warn("failed to release slot of abandoned session",
					zap.String("session_id", sess.ID), zap.Error(err))
			}
			if s.locker != nil {
				_ = s.locker.ReleaseSlotLock(ctx, sess.SlotDate, sess.SlotTime)
			}
		}
		if err := s.publish(ctx, "session_abandoned", sess); err != nil {
			s.logger.Warn("failed to publish session_abandoned event", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	return abandoned, nil
}

func (s *SessionService) active(ctx context.Context, sessionID string) (*domain.BookingSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionStatusInProgress {
		return nil, fmt.Errorf("%w: session is %s", domain.ErrStepOrder, session.Status)
	}
	return session, nil
}

func (s *SessionService) activeAt(ctx context.Context, sessionID string, step domain.Step) (*domain.BookingSession, error) {
	session, err := s.active(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Step != step {
		return nil, fmt.Errorf("%w: expected step %s, session is at %s", domain.ErrStepOrder, step, session.Step)
	}
	return session, nil
}

func (s *SessionService) releaseSlot(ctx context.Context, session *domain.BookingSession) error {
	if err := s.slots.Release(ctx, session.SlotDate, session.SlotTime, session.ID); err != nil {
		return err
	}
	if s.locker != nil {
		_ = s.locker.ReleaseSlotLock(ctx, session.SlotDate, session.SlotTime)
	}
	session.SlotDate = ""
	session.SlotTime = ""
	return nil
}

func (s *SessionService) publish(ctx context.Context, eventType string, session *domain.BookingSession) error {
	if s.producer == nil || s.eventsTopic == "" {
		return nil
	}
	event := buildEvent(eventType, session)
	if err := s.producer.Publish(ctx, s.eventsTopic, session.ID, event); err != nil {
		return err
	}
	if s.notificationsTopic != "" {
		return s.producer.Publish(ctx, s.notificationsTopic, session.ID, event)
	}
	return nil
}

func validateCustomerInput(input CustomerInput) (*domain.CustomerInfo, domain.Urgency, domain.Condition, error) {
	first := strings.TrimSpace(input.FirstName)
	last := strings.TrimSpace(input.LastName)
	email := strings.TrimSpace(input.Email)
	phone := strings.TrimSpace(input.Phone)

	switch {
	case first == "":
		return nil, "", "", fmt.Errorf("%w: first name is required", domain.ErrValidation)
	case last == "":
		return nil, "", "", fmt.Errorf("%w: last name is required", domain.ErrValidation)
	case email == "":
		return nil, "", "", fmt.Errorf("%w: email is required", domain.ErrValidation)
	case phone == "":
		return nil, "", "", fmt.Errorf("%w: phone is required", domain.ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, "", "", fmt.Errorf("%w: invalid email address", domain.ErrValidation)
	}
	if !validPhone(phone) {
		return nil, "", "", fmt.Errorf("%w: invalid phone number", domain.ErrValidation)
	}

	urgency := domain.UrgencyStandard
	if input.Urgency != "" {
		urgency = domain.Urgency(input.Urgency)
		if !domain.ValidUrgency(urgency) {
			return nil, "", "", fmt.Errorf("%w: urgency must be STANDARD, URGENT or EMERGENCY", domain.ErrValidation)
		}
	}
	condition := domain.ConditionGood
	if input.Condition != "" {
		condition = domain.Condition(input.Condition)
		if !domain.ValidCondition(condition) {
			return nil, "", "", fmt.Errorf("%w: unknown device condition %q", domain.ErrValidation, input.Condition)
		}
	}

	info := &domain.CustomerInfo{
		FirstName: first,
		LastName:  last,
		Email:     email,
		Phone:     phone,
		Address:   strings.TrimSpace(input.Address),
	}
	return info, urgency, condition, nil
}

// validPhone accepts an optional leading +, separators, and 7 to 15 digits.
func validPhone(phone string) bool {
	digits := 0
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}

func buildPayload(session *domain.BookingSession) gateway.SubmissionPayload {
	names := make([]string, 0, len(session.Services))
	for _, svc := range session.Services {
		names = append(names, svc.Name)
	}
	description := session.ProblemNotes
	if description == "" {
		description = strings.Join(names, ", ")
	}

	return gateway.SubmissionPayload{
		DeviceModelID:      session.Device.ID,
		RepairType:         strings.Join(names, ", "),
		ProblemDescription: description,
		UrgencyLevel:       string(session.Urgency),
		PreferredDate:      session.SlotDate,
		CustomerInfo: gateway.CustomerPayload{
			FirstName: session.Customer.FirstName,
			LastName:  session.Customer.LastName,
			Email:     session.Customer.Email,
			Phone:     session.Customer.Phone,
			Address:   session.Customer.Address,
		},
		DeviceCondition: gateway.DeviceConditionPayload{
			HasWarranty: session.HasWarranty,
			Condition:   string(session.Condition),
		},
		CustomerNotes: session.ProblemNotes,
	}
}

func buildEvent(eventType string, session *domain.BookingSession) kafka.SessionEvent {
	event := kafka.SessionEvent{
		Type:            eventType,
		SessionID:       session.ID,
		Status:          string(session.Status),
		SlotDate:        session.SlotDate,
		SlotTime:        session.SlotTime,
		ConfirmationRef: session.ConfirmationRef,
		OccurredAt:      time.Now().UTC(),
	}
	if session.Customer != nil {
		event.Email = session.Customer.Email
	}
	if session.Device != nil {
		event.DeviceID = session.Device.ID
	}
	if session.Quote != nil {
		event.Total = session.Quote.Total
	}
	return event
}

var _ SessionUseCase = (*SessionService)(nil)
