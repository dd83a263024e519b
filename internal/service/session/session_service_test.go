package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/avreline/repairbooking/internal/domain"
	"github.com/avreline/repairbooking/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.BookingSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) Get(ctx context.Context, id string) (*domain.BookingSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingSession), args.Error(1)
}

func (m *MockSessionRepository) Update(ctx context.Context, session *domain.BookingSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) AbandonInactiveBefore(ctx context.Context, deadline time.Time) ([]domain.BookingSession, error) {
	args := m.Called(ctx, deadline)
	return args.Get(0).([]domain.BookingSession), args.Error(1)
}

type MockSlotRepository struct {
	mock.Mock
}

func (m *MockSlotRepository) ListOpen(ctx context.Context, horizonDays int) ([]domain.AppointmentSlot, error) {
	args := m.Called(ctx, horizonDays)
	return args.Get(0).([]domain.AppointmentSlot), args.Error(1)
}

func (m *MockSlotRepository) Get(ctx context.Context, date, timeOfDay string) (*domain.AppointmentSlot, error) {
	args := m.Called(ctx, date, timeOfDay)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AppointmentSlot), args.Error(1)
}

func (m *MockSlotRepository) Reserve(ctx context.Context, date, timeOfDay, sessionID string) error {
	args := m.Called(ctx, date, timeOfDay, sessionID)
	return args.Error(0)
}

func (m *MockSlotRepository) Release(ctx context.Context, date, timeOfDay, sessionID string) error {
	args := m.Called(ctx, date, timeOfDay, sessionID)
	return args.Error(0)
}

func (m *MockSlotRepository) EnsureHorizon(ctx context.Context, horizonDays int, times []string) error {
	args := m.Called(ctx, horizonDays, times)
	return args.Error(0)
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) GetDevice(ctx context.Context, id string) (*domain.Device, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Device), args.Error(1)
}

func (m *MockResolver) CompatibleServices(ctx context.Context, device domain.Device) ([]domain.RepairService, error) {
	args := m.Called(ctx, device)
	return args.Get(0).([]domain.RepairService), args.Error(1)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) AcquireSlotLock(ctx context.Context, date, timeOfDay, sessionID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, date, timeOfDay, sessionID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) ReleaseSlotLock(ctx context.Context, date, timeOfDay string) error {
	args := m.Called(ctx, date, timeOfDay)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Submit(ctx context.Context, payload gateway.SubmissionPayload) (*gateway.ConfirmationReceipt, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.ConfirmationReceipt), args.Error(1)
}

type fixtures struct {
	sessions *MockSessionRepository
	slots    *MockSlotRepository
	resolver *MockResolver
	locker   *MockLocker
	producer *MockProducer
	gateway  *MockGateway
	service  *SessionService
}

func newFixtures() *fixtures {
	f := &fixtures{
		sessions: &MockSessionRepository{},
		slots:    &MockSlotRepository{},
		resolver: &MockResolver{},
		locker:   &MockLocker{},
		producer: &MockProducer{},
		gateway:  &MockGateway{},
	}
	f.service = NewSessionService(
		f.sessions, f.slots, f.resolver, f.locker, f.producer, f.gateway,
		"session_events", 30*time.Minute, 30*time.Minute, zap.NewNop(),
	)
	return f
}

func testDevice() *domain.Device {
	return &domain.Device{
		ID:                "mbp16-2023",
		Brand:             "Apple",
		Category:          "laptop",
		Model:             "MacBook Pro 16",
		Year:              2023,
		Difficulty:        domain.DifficultyMedium,
		AverageRepairCost: 320,
	}
}

func testServices() []domain.RepairService {
	return []domain.RepairService{
		{ID: "svc-screen", Name: "Screen replacement", BasePrice: 150, EstimatedMinutes: 90, CompatibleDeviceTypes: []string{"laptop"}},
		{ID: "svc-battery", Name: "Battery swap", BasePrice: 80, EstimatedMinutes: 30, CompatibleDeviceTypes: []string{"laptop"}},
	}
}

func sessionAt(step domain.Step) *domain.BookingSession {
	s := &domain.BookingSession{
		ID:      "sess-1",
		Step:    step,
		Status:  domain.SessionStatusInProgress,
		Urgency: domain.UrgencyStandard,
	}
	if domain.StepIndex(step) >= domain.StepIndex(domain.StepServices) {
		s.Device = testDevice()
	}
	if domain.StepIndex(step) >= domain.StepIndex(domain.StepAppointment) {
		s.Services = []domain.ServiceSnapshot{
			{ServiceID: "svc-screen", Name: "Screen replacement", BasePrice: 150, EffectivePrice: 150, EstimatedMinutes: 90},
			{ServiceID: "svc-battery", Name: "Battery swap", BasePrice: 80, EffectivePrice: 80, EstimatedMinutes: 30},
		}
		s.Quote = &domain.Quote{Total: 230, EstimatedMinutes: 120}
	}
	if domain.StepIndex(step) >= domain.StepIndex(domain.StepCustomer) {
		s.SlotDate = "2024-01-18"
		s.SlotTime = "14:00"
	}
	if domain.StepIndex(step) >= domain.StepIndex(domain.StepConfirmation) {
		s.Customer = &domain.CustomerInfo{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "+441234567890"}
		s.Condition = domain.ConditionGood
	}
	return s
}

func TestSessionService_Start(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Create", ctx, mock.AnythingOfType("*domain.BookingSession")).Return(nil).Once()

	session, err := f.service.Start(ctx)

	assert.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, domain.StepDevice, session.Step)
	assert.Equal(t, domain.SessionStatusInProgress, session.Status)
	assert.Nil(t, session.Device)
	assert.Empty(t, session.Services)
	f.sessions.AssertExpectations(t)
}

func TestSessionService_SelectDevice_Success(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepDevice), nil).Once()
	f.resolver.On("GetDevice", ctx, "mbp16-2023").Return(testDevice(), nil).Once()
	f.sessions.On("Update", ctx, mock.AnythingOfType("*domain.BookingSession")).Return(nil).Once()

	session, err := f.service.SelectDevice(ctx, "sess-1", "mbp16-2023")

	assert.NoError(t, err)
	assert.Equal(t, domain.StepServices, session.Step)
	assert.Equal(t, "mbp16-2023", session.Device.ID)
	assert.Nil(t, session.Services)
	assert.Nil(t, session.Quote)
	f.sessions.AssertExpectations(t)
	f.resolver.AssertExpectations(t)
}

func TestSessionService_SelectDevice_UnknownDevice(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepDevice), nil).Once()
	f.resolver.On("GetDevice", ctx, "nope").Return(nil, domain.ErrNotFound).Once()

	session, err := f.service.SelectDevice(ctx, "sess-1", "nope")

	assert.Nil(t, session)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.sessions.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestSessionService_SelectDevice_UnknownSession(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "ghost").Return(nil, domain.ErrNotFound).Once()

	_, err := f.service.SelectDevice(ctx, "ghost", "mbp16-2023")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionService_SelectDevice_WrongStep(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepCustomer), nil).Once()

	_, err := f.service.SelectDevice(ctx, "sess-1", "mbp16-2023")

	assert.ErrorIs(t, err, domain.ErrStepOrder)
}

func TestSessionService_SelectServices_Success(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepServices), nil).Once()
	f.resolver.On("CompatibleServices", ctx, *testDevice()).Return(testServices(), nil).Once()
	f.sessions.On("Update", ctx, mock.AnythingOfType("*domain.BookingSession")).Return(nil).Once()

	session, err := f.service.SelectServices(ctx, "sess-1", []string{"svc-screen", "svc-battery"})

	assert.NoError(t, err)
	assert.Equal(t, domain.StepAppointment, session.Step)
	assert.Len(t, session.Services, 2)
	assert.Equal(t, 230.00, session.Quote.Total)
	assert.Equal(t, 120, session.Quote.EstimatedMinutes)
}

func TestSessionService_SelectServices_HardDeviceSurcharge(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	session := sessionAt(domain.StepServices)
	session.Device.Difficulty = domain.DifficultyHard
	device := *session.Device

	f.sessions.On("Get", ctx, "sess-1").Return(session, nil).Once()
	f.resolver.On("CompatibleServices", ctx, device).Return(testServices(), nil).Once()
	f.sessions.On("Update", ctx, mock.AnythingOfType("*domain.BookingSession")).Return(nil).Once()

	updated, err := f.service.SelectServices(ctx, "sess-1", []string{"svc-screen", "svc-battery"})

	assert.NoError(t, err)
	assert.Equal(t, 276.00, updated.Quote.Total)
	assert.Equal(t, 180.00, updated.Services[0].EffectivePrice)
	assert.Equal(t, 96.00, updated.Services[1].EffectivePrice)
}

func TestSessionService_SelectServices_Incompatible(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepServices), nil).Once()
	f.resolver.On("CompatibleServices", ctx, *testDevice()).Return(testServices(), nil).Once()

	session, err := f.service.SelectServices(ctx, "sess-1", []string{"svc-screen", "svc-watch-crown"})

	assert.Nil(t, session)
	assert.ErrorIs(t, err, domain.ErrIncompatible)
	f.sessions.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestSessionService_SelectServices_EmptySelection(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepServices), nil).Once()

	_, err := f.service.SelectServices(ctx, "sess-1", nil)

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSessionService_BookAppointment_Success(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepAppointment), nil).Once()
	f.locker.On("AcquireSlotLock", ctx, "2024-01-18", "14:00", "sess-1", 30*time.Minute).Return(true, nil).Once()
	f.slots.On("Reserve", ctx, "2024-01-18", "14:00", "sess-1").Return(nil).Once()
	f.sessions.On("Update", ctx, mock.AnythingOfType("*domain.BookingSession")).Return(nil).Once()

	session, err := f.service.BookAppointment(ctx, "sess-1", "2024-01-18", "14:00")

	assert.NoError(t, err)
	assert.Equal(t, domain.StepCustomer, session.Step)
	assert.Equal(t, "2024-01-18", session.SlotDate)
	assert.Equal(t, "14:00", session.SlotTime)
	f.slots.AssertExpectations(t)
	f.locker.AssertExpectations(t)
}

func TestSessionService_BookAppointment_LockContended(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepAppointment), nil).Once()
	f.locker.On("AcquireSlotLock", ctx, "2024-01-18", "14:00", "sess-1", 30*time.Minute).Return(false, nil).Once()

	session, err := f.service.BookAppointment(ctx, "sess-1", "2024-01-18", "14:00")

	assert.Nil(t, session)
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
	f.slots.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSessionService_BookAppointment_SlotTaken(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepAppointment), nil).Once()
	f.locker.On("AcquireSlotLock", ctx, "2024-01-18", "14:00", "sess-1", 30*time.Minute).Return(true, nil).Once()
	f.slots.On("Reserve", ctx, "2024-01-18", "14:00", "sess-1").Return(domain.ErrSlotUnavailable).Once()
	f.locker.On("ReleaseSlotLock", ctx, "2024-01-18", "14:00").Return(nil).Once()

	_, err := f.service.BookAppointment(ctx, "sess-1", "2024-01-18", "14:00")

	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
	f.locker.AssertExpectations(t)
	f.sessions.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

// memorySlotStore is a compare-and-set slot table guarded by a mutex, standing
// in for the conditional UPDATE the real repository runs.
type memorySlotStore struct {
	mu     sync.Mutex
	booked map[string]string
}

func newMemorySlotStore() *memorySlotStore {
	return &memorySlotStore{booked: make(map[string]string)}
}

func (s *memorySlotStore) ListOpen(ctx context.Context, horizonDays int) ([]domain.AppointmentSlot, error) {
	return nil, nil
}

func (s *memorySlotStore) Get(ctx context.Context, date, timeOfDay string) (*domain.AppointmentSlot, error) {
	return nil, domain.ErrNotFound
}

func (s *memorySlotStore) Reserve(ctx context.Context, date, timeOfDay, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := date + " " + timeOfDay
	if _, taken := s.booked[key]; taken {
		return domain.ErrSlotUnavailable
	}
	s.booked[key] = sessionID
	return nil
}

func (s *memorySlotStore) Release(ctx context.Context, date, timeOfDay, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := date + " " + timeOfDay
	if s.booked[key] != sessionID {
		return domain.ErrNotOwner
	}
	delete(s.booked, key)
	return nil
}

func (s *memorySlotStore) EnsureHorizon(ctx context.Context, horizonDays int, times []string) error {
	return nil
}

func TestSessionService_BookAppointment_ConcurrentReserveSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := newMemorySlotStore()

	sessions := &MockSessionRepository{}
	resolver := &MockResolver{}
	producer := &MockProducer{}
	gw := &MockGateway{}
	// No fast-path locker: the store's compare-and-set is the sole authority.
	service := NewSessionService(
		sessions, store, resolver, nil, producer, gw,
		"session_events", 30*time.Minute, 30*time.Minute, zap.NewNop(),
	)

	for _, id := range []string{"sess-1", "sess-2"} {
		s := sessionAt(domain.StepAppointment)
		s.ID = id
		sessions.On("Get", ctx, id).Return(s, nil)
	}
	sessions.On("Update", ctx, mock.AnythingOfType("*domain.BookingSession")).Return(nil)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []string{"sess-1", "sess-2"} {
		wg.Add(1)
		go func(sessionID string) {
			defer wg.Done()
			_, err := service.BookAppointment(ctx, sessionID, "2024-01-18", "14:00")
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	var wins, losses int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, domain.ErrSlotUnavailable):
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	store.mu.Lock()
	holder := store.booked["2024-01-18 14:00"]
	store.mu.Unlock()
	assert.Contains(t, []string{"sess-1", "sess-2"}, holder)
}

func TestSessionService_BookAppointment_BadDate(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepAppointment), nil).Twice()

	_, err := f.service.BookAppointment(ctx, "sess-1", "18/01/2024", "14:00")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.service.BookAppointment(ctx, "sess-1", "2024-01-18", "2pm")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSessionService_AddCustomerInfo_Success(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepCustomer), nil).Once()
	f.sessions.On("Update", ctx, mock.AnythingOfType("*domain.BookingSession")).Return(nil).Once()

	session, err := f.service.AddCustomerInfo(ctx, "sess-1", CustomerInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Phone:     "+44 1234 567890",
		Urgency:   "URGENT",
		Condition: "fair",
		Notes:     "lid dented",
	})

	assert.NoError(t, err)
	assert.Equal(t, domain.StepConfirmation, session.Step)
	assert.Equal(t, "Ada", session.Customer.FirstName)
	assert.Equal(t, domain.UrgencyUrgent, session.Urgency)
	assert.Equal(t, domain.ConditionFair, session.Condition)
	assert.Equal(t, "lid dented", session.ProblemNotes)
}

func TestSessionService_AddCustomerInfo_ValidationFailures(t *testing.T) {
	testCases := []struct {
		name  string
		input CustomerInput
	}{
		{"missing email", CustomerInput{FirstName: "Ada", LastName: "Lovelace", Phone: "+441234567890"}},
		{"missing first name", CustomerInput{LastName: "Lovelace", Email: "ada@example.com", Phone: "+441234567890"}},
		{"missing last name", CustomerInput{FirstName: "Ada", Email: "ada@example.com", Phone: "+441234567890"}},
		{"missing phone", CustomerInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}},
		{"malformed email", CustomerInput{FirstName: "Ada", LastName: "Lovelace", Email: "not-an-email", Phone: "+441234567890"}},
		{"malformed phone", CustomerInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "call me"}},
		{"short phone", CustomerInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "12345"}},
		{"bad urgency", CustomerInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "+441234567890", Urgency: "ASAP"}},
		{"bad condition", CustomerInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "+441234567890", Condition: "meh"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixtures()
			ctx := context.Background()
			f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepCustomer), nil).Once()

			session, err := f.service.AddCustomerInfo(ctx, "sess-1", tc.input)

			assert.Nil(t, session)
			assert.ErrorIs(t, err, domain.ErrValidation)
			f.sessions.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		})
	}
}

func TestSessionService_Submit_Success(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepConfirmation), nil).Once()
	f.gateway.On("Submit", ctx, mock.AnythingOfType("gateway.SubmissionPayload")).Return(&gateway.ConfirmationReceipt{BookingRef: "RB-1042"}, nil).Once()
	f.sessions.On("Update", ctx, mock.AnythingOfType("*domain.BookingSession")).Return(nil).Once()
	f.producer.On("Publish", ctx, "session_events", "sess-1", mock.Anything).Return(nil).Once()

	receipt, err := f.service.Submit(ctx, "sess-1")

	assert.NoError(t, err)
	assert.Equal(t, "RB-1042", receipt.BookingRef)
	// The slot stays booked on success; Release must not be called.
	f.slots.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.gateway.AssertExpectations(t)
	f.producer.AssertExpectations(t)
}

func TestSessionService_Submit_PayloadShape(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	sess := sessionAt(domain.StepConfirmation)
	sess.Urgency = domain.UrgencyEmergency
	sess.HasWarranty = true
	sess.ProblemNotes = "screen flickers"

	f.sessions.On("Get", ctx, "sess-1").Return(sess, nil).Once()
	f.gateway.On("Submit", ctx, mock.MatchedBy(func(p gateway.SubmissionPayload) bool {
		return p.DeviceModelID == "mbp16-2023" &&
			p.UrgencyLevel == "EMERGENCY" &&
			p.PreferredDate == "2024-01-18" &&
			p.CustomerInfo.Email == "ada@example.com" &&
			p.DeviceCondition.HasWarranty &&
			p.DeviceCondition.Condition == "good" &&
			p.CustomerNotes == "screen flickers"
	})).Return(&gateway.ConfirmationReceipt{BookingRef: "RB-7"}, nil).Once()
	f.sessions.On("Update", ctx, mock.AnythingOfType("*domain.BookingSession")).Return(nil).Once()
	f.producer.On("Publish", ctx, "session_events", "sess-1", mock.Anything).Return(nil).Once()

	_, err := f.service.Submit(ctx, "sess-1")
	assert.NoError(t, err)
	f.gateway.AssertExpectations(t)
}

func TestSessionService_Submit_RetryableFailureKeepsSession(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	subErr := &domain.SubmissionError{StatusCode: 503, Retryable: true, Reason: "order system unavailable"}
	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepConfirmation), nil).Once()
	f.gateway.On("Submit", ctx, mock.AnythingOfType("gateway.SubmissionPayload")).Return(nil, subErr).Once()

	receipt, err := f.service.Submit(ctx, "sess-1")

	assert.Nil(t, receipt)
	assert.ErrorIs(t, err, domain.ErrSubmissionFailed)
	f.sessions.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	f.slots.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSessionService_Submit_RetryAfterTransientFailure(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	subErr := &domain.SubmissionError{Retryable: true, Reason: "timeout"}
	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepConfirmation), nil).Twice()
	f.gateway.On("Submit", ctx, mock.AnythingOfType("gateway.SubmissionPayload")).Return(nil, subErr).Once()
	f.gateway.On("Submit", ctx, mock.AnythingOfType("gateway.SubmissionPayload")).Return(&gateway.ConfirmationReceipt{BookingRef: "RB-9"}, nil).Once()
	f.sessions.On("Update", ctx, mock.AnythingOfType("*domain.BookingSession")).Return(nil).Once()
	f.producer.On("Publish", ctx, "session_events", "sess-1", mock.Anything).Return(nil).Once()

	_, err := f.service.Submit(ctx, "sess-1")
	assert.ErrorIs(t, err, domain.ErrSubmissionFailed)

	receipt, err := f.service.Submit(ctx, "sess-1")
	assert.NoError(t, err)
	assert.Equal(t, "RB-9", receipt.BookingRef)
}

func TestSessionService_Submit_AlreadyConfirmedIsIdempotent(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	sess := sessionAt(domain.StepConfirmation)
	sess.Status = domain.SessionStatusConfirmed
	sess.ConfirmationRef = "RB-1042"
	f.sessions.On("Get", ctx, "sess-1").Return(sess, nil).Once()

	receipt, err := f.service.Submit(ctx, "sess-1")

	assert.NoError(t, err)
	assert.Equal(t, "RB-1042", receipt.BookingRef)
	f.gateway.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestSessionService_Submit_PersistFailureStillReturnsReceipt(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepConfirmation), nil).Once()
	f.gateway.On("Submit", ctx, mock.AnythingOfType("gateway.SubmissionPayload")).Return(&gateway.ConfirmationReceipt{BookingRef: "RB-1042"}, nil).Once()
	f.sessions.On("Update", ctx, mock.AnythingOfType("*domain.BookingSession")).Return(assert.AnError).Once()

	receipt, err := f.service.Submit(ctx, "sess-1")

	// The order system accepted the booking; the caller must get the receipt
	// even though the local state write failed.
	assert.NoError(t, err)
	assert.Equal(t, "RB-1042", receipt.BookingRef)
	f.gateway.AssertNumberOfCalls(t, "Submit", 1)
}

func TestSessionService_Submit_WrongStep(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepCustomer), nil).Once()

	_, err := f.service.Submit(ctx, "sess-1")

	assert.ErrorIs(t, err, domain.ErrStepOrder)
}

func TestSessionService_GoToStep_BackToDeviceClearsEverything(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepCustomer), nil).Once()
	f.slots.On("Release", ctx, "2024-01-18", "14:00", "sess-1").Return(nil).Once()
	f.locker.On("ReleaseSlotLock", ctx, "2024-01-18", "14:00").Return(nil).Once()
	f.sessions.On("Update", ctx, mock.AnythingOfType("*domain.BookingSession")).Return(nil).Once()

	session, err := f.service.GoToStep(ctx, "sess-1", domain.StepDevice)

	assert.NoError(t, err)
	assert.Equal(t, domain.StepDevice, session.Step)
	assert.Nil(t, session.Device)
	assert.Nil(t, session.Services)
	assert.Nil(t, session.Quote)
	assert.False(t, session.HasSlot())
	f.slots.AssertExpectations(t)
}

func TestSessionService_GoToStep_BackToAppointmentKeepsQuote(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepCustomer), nil).Once()
	f.slots.On("Release", ctx, "2024-01-18", "14:00", "sess-1").Return(nil).Once()
	f.locker.On("ReleaseSlotLock", ctx, "2024-01-18", "14:00").Return(nil).Once()
	f.sessions.On("Update", ctx, mock.AnythingOfType("*domain.BookingSession")).Return(nil).Once()

	session, err := f.service.GoToStep(ctx, "sess-1", domain.StepAppointment)

	assert.NoError(t, err)
	assert.Equal(t, domain.StepAppointment, session.Step)
	assert.NotNil(t, session.Device)
	assert.Len(t, session.Services, 2)
	assert.NotNil(t, session.Quote)
	assert.False(t, session.HasSlot())
}

func TestSessionService_GoToStep_ForwardRejected(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	f.sessions.On("Get", ctx, "sess-1").Return(sessionAt(domain.StepServices), nil).Once()

	_, err := f.service.GoToStep(ctx, "sess-1", domain.StepCustomer)

	assert.ErrorIs(t, err, domain.ErrStepOrder)
	f.sessions.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestSessionService_GoToStep_ReselectDifferentDevice(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	sess := sessionAt(domain.StepCustomer)
	f.sessions.On("Get", ctx, "sess-1").Return(sess, nil)
	f.slots.On("Release", ctx, "2024-01-18", "14:00", "sess-1").Return(nil).Once()
	f.locker.On("ReleaseSlotLock", ctx, "2024-01-18", "14:00").Return(nil).Once()
	f.sessions.On("Update", ctx, mock.AnythingOfType("*domain.BookingSession")).Return(nil)

	back, err := f.service.GoToStep(ctx, "sess-1", domain.StepDevice)
	assert.NoError(t, err)

	other := &domain.Device{ID: "pixel8", Category: "smartphone", Difficulty: domain.DifficultyHard}
	f.resolver.On("GetDevice", ctx, "pixel8").Return(other, nil).Once()

	reselected, err := f.service.SelectDevice(ctx, "sess-1", "pixel8")

	assert.NoError(t, err)
	assert.Equal(t, "pixel8", reselected.Device.ID)
	assert.Empty(t, reselected.Services)
	assert.Nil(t, reselected.Quote)
	_ = back
}

func TestSessionService_ListAvailableSlots(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	open := []domain.AppointmentSlot{
		{Date: "2024-01-18", Time: "09:00", Status: domain.SlotStatusOpen},
		{Date: "2024-01-18", Time: "14:00", Status: domain.SlotStatusOpen},
	}
	f.slots.On("ListOpen", ctx, 14).Return(open, nil).Once()

	slots, err := f.service.ListAvailableSlots(ctx)

	assert.NoError(t, err)
	assert.Equal(t, open, slots)
}

func TestSessionService_ExpireAbandoned_ReleasesSlots(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	stale := *sessionAt(domain.StepCustomer)
	stale.Status = domain.SessionStatusAbandoned
	f.sessions.On("AbandonInactiveBefore", ctx, mock.AnythingOfType("time.Time")).Return([]domain.BookingSession{stale}, nil).Once()
	f.slots.On("Release", ctx, "2024-01-18", "14:00", "sess-1").Return(nil).Once()
	f.locker.On("ReleaseSlotLock", ctx, "2024-01-18", "14:00").Return(nil).Once()
	f.producer.On("Publish", ctx, "session_events", "sess-1", mock.Anything).Return(nil).Once()

	abandoned, err := f.service.ExpireAbandoned(ctx)

	assert.NoError(t, err)
	assert.Len(t, abandoned, 1)
	f.slots.AssertExpectations(t)
	f.locker.AssertExpectations(t)
	f.producer.AssertExpectations(t)
}

func TestSessionService_ExpireAbandoned_NoSlotNoRelease(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	stale := *sessionAt(domain.StepServices)
	stale.Status = domain.SessionStatusAbandoned
	f.sessions.On("AbandonInactiveBefore", ctx, mock.AnythingOfType("time.Time")).Return([]domain.BookingSession{stale}, nil).Once()
	f.producer.On("Publish", ctx, "session_events", "sess-1", mock.Anything).Return(nil).Once()

	abandoned, err := f.service.ExpireAbandoned(ctx)

	assert.NoError(t, err)
	assert.Len(t, abandoned, 1)
	f.slots.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSessionService_OperationsOnAbandonedSession(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	sess := sessionAt(domain.StepServices)
	sess.Status = domain.SessionStatusAbandoned
	f.sessions.On("Get", ctx, "sess-1").Return(sess, nil)

	_, err := f.service.SelectServices(ctx, "sess-1", []string{"svc-screen"})
	assert.ErrorIs(t, err, domain.ErrStepOrder)

	_, err = f.service.GoToStep(ctx, "sess-1", domain.StepDevice)
	assert.ErrorIs(t, err, domain.ErrStepOrder)
}
