package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dinarexchange/dinar-auth/internal/models"
	pkglogger "github.com/dinarexchange/dinar-auth/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockAccountRepository is an in-memory AccountRepository with the same
// version compare-and-set semantics as the MongoDB one. The Func fields
// override individual methods.
type MockAccountRepository struct {
	FindOrCreateFunc  func(ctx context.Context, email string) (*models.Account, error)
	GetByIDFunc       func(ctx context.Context, id string) (*models.Account, error)
	GetByMagicKeyFunc func(ctx context.Context, key string) (*models.Account, error)
	UpdateFunc        func(ctx context.Context, acc *models.Account) error

	mu       sync.Mutex
	accounts map[primitive.ObjectID]*models.Account
	Updates  int
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{accounts: make(map[primitive.ObjectID]*models.Account)}
}

// Put stores a copy of acc, assigning an id if it has none
func (m *MockAccountRepository) Put(acc *models.Account) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc.ID.IsZero() {
		acc.ID = primitive.NewObjectID()
	}
	m.accounts[acc.ID] = acc.Clone()
	return acc
}

// Stored returns a copy of the persisted account
func (m *MockAccountRepository) Stored(id primitive.ObjectID) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		return nil
	}
	return acc.Clone()
}

func (m *MockAccountRepository) FindOrCreate(ctx context.Context, email string) (*models.Account, error) {
	if m.FindOrCreateFunc != nil {
		return m.FindOrCreateFunc(ctx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.accounts {
		if acc.Email == email {
			return acc.Clone(), nil
		}
	}
	acc := &models.Account{ID: primitive.NewObjectID(), Email: email, TrustedIPs: []models.TrustedIP{}}
	m.accounts[acc.ID] = acc
	return acc.Clone(), nil
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrNotFound
	}
	if acc := m.Stored(oid); acc != nil {
		return acc, nil
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByMagicKey(ctx context.Context, key string) (*models.Account, error) {
	if m.GetByMagicKeyFunc != nil {
		return m.GetByMagicKeyFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.accounts {
		if acc.MagicKey != nil && *acc.MagicKey == key {
			return acc.Clone(), nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) Update(ctx context.Context, acc *models.Account) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, acc)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.accounts[acc.ID]
	if !ok || stored.Version != acc.Version {
		return models.ErrStaleWrite
	}
	if acc.MagicKey != nil {
		for id, other := range m.accounts {
			if id != acc.ID && other.MagicKey != nil && *other.MagicKey == *acc.MagicKey {
				return models.ErrConflict
			}
		}
	}
	acc.Version++
	m.accounts[acc.ID] = acc.Clone()
	m.Updates++
	return nil
}

// MockSessionStore is an in-memory SessionStore
type MockSessionStore struct {
	SaveFunc func(ctx context.Context, token, accountID string, ttl time.Duration) error
	GetFunc  func(ctx context.Context, token string) (string, error)

	mu       sync.Mutex
	sessions map[string]string
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{sessions: make(map[string]string)}
}

func (m *MockSessionStore) Save(ctx context.Context, token, accountID string, ttl time.Duration) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, token, accountID, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = accountID
	return nil
}

func (m *MockSessionStore) Get(ctx context.Context, token string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.sessions[token]
	if !ok {
		return "", models.ErrNotFound
	}
	return id, nil
}

func (m *MockSessionStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *MockSessionStore) DeleteAllForAccount(ctx context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for token, id := range m.sessions {
		if id == accountID {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

// Count returns the number of live sessions
func (m *MockSessionStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// SentEmail is one message captured by MockNotifier
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// MockNotifier records every send
type MockNotifier struct {
	SendFunc func(ctx context.Context, to, subject, htmlBody string) error

	mu   sync.Mutex
	Sent []SentEmail
}

func (m *MockNotifier) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, SentEmail{To: to, Subject: subject, Body: htmlBody})
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, to, subject, htmlBody)
	}
	return nil
}

// MockAdminRepository implements AdminRepository for testing
type MockAdminRepository struct {
	GetByEmailFunc       func(ctx context.Context, email string) (*models.Admin, error)
	GetByIDFunc          func(ctx context.Context, id string) (*models.Admin, error)
	CreateFunc           func(ctx context.Context, admin *models.Admin) error
	UpdateLoginStateFunc func(ctx context.Context, admin *models.Admin) error
}

func (m *MockAdminRepository) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAdminRepository) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAdminRepository) Create(ctx context.Context, admin *models.Admin) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, admin)
	}
	admin.ID = primitive.NewObjectID()
	return nil
}

func (m *MockAdminRepository) UpdateLoginState(ctx context.Context, admin *models.Admin) error {
	if m.UpdateLoginStateFunc != nil {
		return m.UpdateLoginStateFunc(ctx, admin)
	}
	return nil
}

// MockAuditLogRepository implements AuditLogRepository for testing
type MockAuditLogRepository struct {
	CreateFunc          func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	ListFunc            func(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, error)
	CountFunc           func(ctx context.Context, filter models.AuditLogFilter) (int64, error)
	DeleteOlderThanFunc func(ctx context.Context, cutoff time.Time) (int64, error)

	mu      sync.Mutex
	Created []*models.AuditLog
}

func (m *MockAuditLogRepository) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	m.mu.Lock()
	m.Created = append(m.Created, log)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, log)
	}
	return log, nil
}

func (m *MockAuditLogRepository) List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return []*models.AuditLog{}, nil
}

func (m *MockAuditLogRepository) Count(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, filter)
	}
	return 0, nil
}

func (m *MockAuditLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

// Actions lists the actions of every recorded log
func (m *MockAuditLogRepository) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Created))
	for _, l := range m.Created {
		out = append(out, l.Action)
	}
	return out
}

// MockTimingDelay implements TimingDelay for testing
type MockTimingDelay struct {
	WaitFromFunc func(startTime time.Time, succeeded bool)
	Calls        int

	mu sync.Mutex
}

func (m *MockTimingDelay) WaitFrom(startTime time.Time, succeeded bool) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.WaitFromFunc != nil {
		m.WaitFromFunc(startTime, succeeded)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(discardLogger())
}
