package tests

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"rapidride/internal/domain"
	"rapidride/internal/estimator"
	"rapidride/internal/events"
	"rapidride/internal/repository"
)

// DiscardLogger drops all log output.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ──────────────────────────────────────────────
// MOCK ACCOUNT REPOSITORY
// ──────────────────────────────────────────────

// MockAccountRepository is a mock implementation of AccountRepository.
type MockAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account

	// Counters for verification
	CreateCallCount         int32
	UpdateSavedPlacesCalls  int32
	SetIdentityRefCallCount int32

	// Error injection
	CreateError error
	GetError    error
}

// NewMockAccountRepository creates a new mock account repository.
func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[string]*domain.Account),
	}
}

// AddAccount adds an account to the mock repository.
func (m *MockAccountRepository) AddAccount(account *domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
}

// GetAccount returns a copy of the stored account, or nil.
func (m *MockAccountRepository) GetAccount(id string) *domain.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil
	}
	return copyAccount(a)
}

// Count returns the number of stored accounts.
func (m *MockAccountRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

func copyAccount(a *domain.Account) *domain.Account {
	c := *a
	c.SavedPlaces = append([]domain.SavedPlace(nil), a.SavedPlaces...)
	return &c
}

func (m *MockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if account.IdentityRef != "" && a.IdentityRef == account.IdentityRef {
			return repository.ErrConflict
		}
		if account.Email != "" && a.Email == account.Email {
			return repository.ErrConflict
		}
		if account.Phone != "" && a.Phone == account.Phone {
			return repository.ErrConflict
		}
	}
	m.accounts[account.ID] = copyAccount(account)
	return nil
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyAccount(a), nil
}

func (m *MockAccountRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	return m.GetByID(ctx, id)
}

func (m *MockAccountRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Account, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*domain.Account, len(ids))
	for _, id := range ids {
		if a, ok := m.accounts[id]; ok {
			out[id] = copyAccount(a)
		}
	}
	return out, nil
}

func (m *MockAccountRepository) find(match func(*domain.Account) bool) (*domain.Account, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if match(a) {
			return copyAccount(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockAccountRepository) GetByIdentityRef(ctx context.Context, ref string) (*domain.Account, error) {
	return m.find(func(a *domain.Account) bool { return a.IdentityRef != "" && a.IdentityRef == ref })
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return m.find(func(a *domain.Account) bool { return a.Email == email })
}

func (m *MockAccountRepository) GetByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	return m.find(func(a *domain.Account) bool { return a.Phone == phone })
}

func (m *MockAccountRepository) List(ctx context.Context, limit int) ([]*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, copyAccount(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockAccountRepository) SetIdentityRef(ctx context.Context, id, ref string) error {
	atomic.AddInt32(&m.SetIdentityRefCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || (a.IdentityRef != "" && a.IdentityRef != ref) {
		return repository.ErrNotFound
	}
	a.IdentityRef = ref
	return nil
}

func (m *MockAccountRepository) LinkPhone(ctx context.Context, id, phone, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, other := range m.accounts {
		if other.ID != id && other.Phone == phone {
			return repository.ErrConflict
		}
	}
	a.Phone = phone
	a.PhoneVerified = true
	if a.IdentityRef == "" {
		a.IdentityRef = ref
	}
	return nil
}

func (m *MockAccountRepository) update(id string, fn func(a *domain.Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(a)
	return nil
}

func (m *MockAccountRepository) UpdateProfile(ctx context.Context, account *domain.Account) error {
	return m.update(account.ID, func(a *domain.Account) {
		a.Name = account.Name
		a.Phone = account.Phone
		a.Role = account.Role
		a.Gender = account.Gender
		a.Avatar = account.Avatar
		a.Vehicle = account.Vehicle
		a.License = account.License
	})
}

func (m *MockAccountRepository) UpdateLocation(ctx context.Context, id string, loc domain.Location) error {
	return m.update(id, func(a *domain.Account) { a.CurrentLocation = &loc })
}

func (m *MockAccountRepository) UpdateSavedPlaces(ctx context.Context, id string, places []domain.SavedPlace) error {
	atomic.AddInt32(&m.UpdateSavedPlacesCalls, 1)
	return m.update(id, func(a *domain.Account) {
		a.SavedPlaces = append([]domain.SavedPlace(nil), places...)
	})
}

func (m *MockAccountRepository) IncrementStats(ctx context.Context, id string, delta domain.StatsDelta) (*domain.Stats, error) {
	var out domain.Stats
	err := m.update(id, func(a *domain.Account) {
		a.Stats.TotalRides += delta.TotalRides
		a.Stats.CompletedRides += delta.CompletedRides
		a.Stats.CancelledRides += delta.CancelledRides
		a.Stats.TotalEarnings += delta.Earnings
		a.Stats.TotalDistance += delta.Distance
		out = a.Stats
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *MockAccountRepository) ApplyRating(ctx context.Context, id string, rating int) (*domain.Stats, error) {
	var out domain.Stats
	err := m.update(id, func(a *domain.Account) {
		n := float64(a.Stats.TotalRatings)
		a.Stats.Rating = (a.Stats.Rating*n + float64(rating)) / (n + 1)
		a.Stats.TotalRatings++
		out = a.Stats
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository is a mock implementation of RideRepository.
// Guarded updates follow the same conditions as the SQL implementation.
type MockRideRepository struct {
	mu    sync.RWMutex
	rides map[string]*domain.Ride

	// Counters for verification
	CreateCallCount     int32
	AssignCallCount     int32
	TransitionCallCount int32

	// Error injection
	CreateError     error
	TransitionError error
}

// NewMockRideRepository creates a new mock ride repository.
func NewMockRideRepository() *MockRideRepository {
	return &MockRideRepository{
		rides: make(map[string]*domain.Ride),
	}
}

// AddRide adds a ride to the mock repository.
func (m *MockRideRepository) AddRide(ride *domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[ride.ID] = ride
}

// GetRide returns a copy of the stored ride, or nil.
func (m *MockRideRepository) GetRide(id string) *domain.Ride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil
	}
	c := *r
	return &c
}

// CountRides returns the number of stored rides.
func (m *MockRideRepository) CountRides() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rides)
}

func (m *MockRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *ride
	m.rides[ride.ID] = &c
	return nil
}

func (m *MockRideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (m *MockRideRepository) Assign(ctx context.Context, rideID, driverID, otp string, at time.Time) (*domain.Ride, error) {
	atomic.AddInt32(&m.AssignCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rides[rideID]
	if !ok || r.Status != domain.RideStatusRequested {
		return nil, repository.ErrNotFound
	}
	for _, other := range m.rides {
		if other.DriverID == driverID && other.Status.In(domain.DriverBusyStatuses...) {
			return nil, repository.ErrConflict
		}
	}

	r.DriverID = driverID
	r.OTP = otp
	r.Status = domain.RideStatusAccepted
	r.AcceptedAt = at
	c := *r
	return &c, nil
}

func (m *MockRideRepository) Transition(ctx context.Context, t repository.Transition) (*domain.Ride, error) {
	atomic.AddInt32(&m.TransitionCallCount, 1)
	if m.TransitionError != nil {
		return nil, m.TransitionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rides[t.RideID]
	switch {
	case !ok,
		!r.Status.In(t.From...),
		t.RiderID != "" && r.RiderID != t.RiderID,
		t.DriverID != "" && r.DriverID != t.DriverID,
		t.OTP != "" && r.OTP != t.OTP:
		return nil, repository.ErrNotFound
	}

	r.Status = t.To
	switch t.To {
	case domain.RideStatusStarted:
		r.StartedAt = t.At
	case domain.RideStatusCompleted:
		r.CompletedAt = t.At
	case domain.RideStatusCancelled:
		r.CancelledAt = t.At
	}
	c := *r
	return &c, nil
}

func (m *MockRideRepository) SetRating(ctx context.Context, rideID, riderID string, rating int, feedback string) (*domain.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rides[rideID]
	if !ok || r.RiderID != riderID || r.Status != domain.RideStatusCompleted || r.Rating != nil {
		return nil, repository.ErrNotFound
	}
	r.Rating = &rating
	r.Feedback = feedback
	c := *r
	return &c, nil
}

func (m *MockRideRepository) SetPayment(ctx context.Context, rideID string, status domain.PaymentStatus, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return repository.ErrNotFound
	}
	r.PaymentStatus = status
	if paymentID != "" {
		r.PaymentID = paymentID
	}
	return nil
}

// newest returns copies of the matching rides, newest first.
func (m *MockRideRepository) newest(match func(*domain.Ride) bool) []*domain.Ride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Ride, 0)
	for _, r := range m.rides {
		if match(r) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MockRideRepository) first(match func(*domain.Ride) bool) (*domain.Ride, error) {
	rides := m.newest(match)
	if len(rides) == 0 {
		return nil, repository.ErrNotFound
	}
	return rides[0], nil
}

func (m *MockRideRepository) GetActiveByRider(ctx context.Context, riderID string) (*domain.Ride, error) {
	return m.first(func(r *domain.Ride) bool {
		return r.RiderID == riderID && r.Status.In(domain.ActiveRideStatuses...)
	})
}

func (m *MockRideRepository) GetActiveByDriver(ctx context.Context, driverID string) (*domain.Ride, error) {
	return m.first(func(r *domain.Ride) bool {
		return r.DriverID == driverID && r.Status.In(domain.DriverBusyStatuses...)
	})
}

func (m *MockRideRepository) GetLatestByRider(ctx context.Context, riderID string) (*domain.Ride, error) {
	return m.first(func(r *domain.Ride) bool { return r.RiderID == riderID })
}

func (m *MockRideRepository) ListByRider(ctx context.Context, riderID string, limit, skip int) ([]*domain.Ride, error) {
	rides := m.newest(func(r *domain.Ride) bool { return r.RiderID == riderID })
	if skip >= len(rides) {
		return []*domain.Ride{}, nil
	}
	rides = rides[skip:]
	if len(rides) > limit {
		rides = rides[:limit]
	}
	return rides, nil
}

func (m *MockRideRepository) CountByRider(ctx context.Context, riderID string) (int, error) {
	return len(m.newest(func(r *domain.Ride) bool { return r.RiderID == riderID })), nil
}

func (m *MockRideRepository) ListActivity(ctx context.Context, q repository.RideActivity) ([]*domain.Ride, error) {
	return m.newest(func(r *domain.Ride) bool {
		owner := r.RiderID
		if q.AsDriver {
			owner = r.DriverID
		}
		return owner == q.AccountID && !r.CreatedAt.Before(q.Since)
	}), nil
}

func (m *MockRideRepository) SummarizeRider(ctx context.Context, riderID string) (*repository.RiderSummary, error) {
	rides := m.newest(func(r *domain.Ride) bool {
		return r.RiderID == riderID && r.Status == domain.RideStatusCompleted
	})
	summary := &repository.RiderSummary{CompletedRides: len(rides)}
	var sum, n float64
	for _, r := range rides {
		summary.TotalSpent += r.Fare
		if r.Rating != nil {
			sum += float64(*r.Rating)
			n++
		}
	}
	if n > 0 {
		avg := sum / n
		summary.AverageRating = &avg
	}
	return summary, nil
}

func (m *MockRideRepository) CancelActiveByRider(ctx context.Context, riderID string, at time.Time) ([]*domain.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Ride
	for _, r := range m.rides {
		if r.RiderID == riderID && r.Status.In(domain.ActiveRideStatuses...) {
			r.Status = domain.RideStatusCancelled
			r.CancelledAt = at
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MockRideRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Ride, error) {
	rides := m.newest(func(*domain.Ride) bool { return true })
	if len(rides) > limit {
		rides = rides[:limit]
	}
	return rides, nil
}

func (m *MockRideRepository) CountByStatus(ctx context.Context) (map[domain.RideStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.RideStatus]int)
	for _, r := range m.rides {
		out[r.Status]++
	}
	return out, nil
}

func (m *MockRideRepository) Count(ctx context.Context) (int, error) {
	return m.CountRides(), nil
}

// ──────────────────────────────────────────────
// MOCK TX RUNNER
// ──────────────────────────────────────────────

// MockTxRunner runs fn against the shared mock repositories. Transactions
// run one at a time, which stands in for row locks.
// Nothing is rolled back; FailAfter makes the transaction fail once fn succeeded.
type MockTxRunner struct {
	Rides    *MockRideRepository
	Accounts *MockAccountRepository

	CallCount int32
	FailAfter error

	mu sync.Mutex
}

// NewMockTxRunner creates a tx runner over the given repositories.
func NewMockTxRunner(rides *MockRideRepository, accounts *MockAccountRepository) *MockTxRunner {
	return &MockTxRunner{Rides: rides, Accounts: accounts}
}

func (m *MockTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, rides repository.RideRepository, accounts repository.AccountRepository) error) error {
	atomic.AddInt32(&m.CallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := fn(ctx, m.Rides, m.Accounts); err != nil {
		return err
	}
	return m.FailAfter
}

// ──────────────────────────────────────────────
// MOCK BROADCASTER
// ──────────────────────────────────────────────

// SentEvent is one delivery recorded by MockBroadcaster.
type SentEvent struct {
	Event      string
	Payload    any
	AccountIDs []string
}

// MockBroadcaster records every event instead of writing to sockets.
type MockBroadcaster struct {
	mu   sync.Mutex
	sent []SentEvent
}

// NewMockBroadcaster creates a new mock broadcaster.
func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{}
}

func (m *MockBroadcaster) SendToAccounts(event string, payload any, accountIDs ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentEvent{Event: event, Payload: payload, AccountIDs: append([]string(nil), accountIDs...)})
	return len(accountIDs)
}

// Events returns the deliveries of the named event.
func (m *MockBroadcaster) Events(event string) []SentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentEvent
	for _, s := range m.sent {
		if s.Event == event {
			out = append(out, s)
		}
	}
	return out
}

// ──────────────────────────────────────────────
// MOCK PUBLISHER
// ──────────────────────────────────────────────

// MockPublisher collects published events.
type MockPublisher struct {
	mu     sync.Mutex
	events []events.Event

	PublishError error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, e events.Event) error {
	if m.PublishError != nil {
		return m.PublishError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// Names returns the published event names in order.
func (m *MockPublisher) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Name)
	}
	return out
}

// ──────────────────────────────────────────────
// MOCK PSP
// ──────────────────────────────────────────────

// MockPSP is a mock payment service provider.
type MockPSP struct {
	CreateIntentCallCount int32
	ShouldFail            bool
}

// NewMockPSP creates a new mock PSP.
func NewMockPSP() *MockPSP {
	return &MockPSP{}
}

func (m *MockPSP) CreateIntent(ctx context.Context, rideID string, amount float64) (string, error) {
	atomic.AddInt32(&m.CreateIntentCallCount, 1)
	if m.ShouldFail {
		return "", errors.New("psp error: card declined")
	}
	return "pi_" + rideID, nil
}

// ──────────────────────────────────────────────
// MOCK ESTIMATOR
// ──────────────────────────────────────────────

// MockEstimator returns a fixed result.
type MockEstimator struct {
	Result    estimator.Result
	CallCount int32
}

// NewMockEstimator returns an authoritative estimate of distanceKm and etaSeconds.
func NewMockEstimator(distanceKm float64, etaSeconds int) *MockEstimator {
	return &MockEstimator{Result: estimator.Authoritative{Value: estimator.Estimate{
		Fare:       estimator.FareFor("car", distanceKm),
		DistanceKm: distanceKm,
		Currency:   estimator.Currency,
		ETASeconds: etaSeconds,
		Confidence: 0.9,
	}}}
}

func (m *MockEstimator) Estimate(ctx context.Context, req estimator.Request) estimator.Result {
	atomic.AddInt32(&m.CallCount, 1)
	return m.Result
}

// ──────────────────────────────────────────────
// MOCK DRIVER LOCKER
// ──────────────────────────────────────────────

// MockDriverLocker is an in-memory DriverLocker.
type MockDriverLocker struct {
	mu     sync.Mutex
	locked map[string]bool

	AcquireError error
}

// NewMockDriverLocker creates a new mock locker.
func NewMockDriverLocker() *MockDriverLocker {
	return &MockDriverLocker{locked: make(map[string]bool)}
}

func (m *MockDriverLocker) AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (bool, error) {
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked[driverID] {
		return false, nil
	}
	m.locked[driverID] = true
	return true, nil
}

func (m *MockDriverLocker) ReleaseDriverLock(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locked, driverID)
	return nil
}

// IsLocked reports whether the driver's lock is held.
func (m *MockDriverLocker) IsLocked(driverID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked[driverID]
}
