package userstore

import (
	"context"
	"sync"
	"time"

	"github.com/nextcoding/saas-api/pkg/domain"
)

// MemoryStore keeps users in process memory. It backs tests and local
// development runs where a database file is unwanted.
type MemoryStore struct {
	users           map[string]*domain.User
	usersByCustomer map[string]*domain.User
	mu              sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:           make(map[string]*domain.User),
		usersByCustomer: make(map[string]*domain.User),
	}
}

func (s *MemoryStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *user
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	s.users[cp.ID] = &cp
	if cp.StripeCustomerID != nil {
		s.usersByCustomer[*cp.StripeCustomerID] = &cp
	}
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *MemoryStore) GetByStripeCustomerID(_ context.Context, customerID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByCustomer[customerID]
	if !exists {
		return nil, ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *MemoryStore) ApplyEntitlementByID(_ context.Context, id string, premium int64, stripeCustomerID *string, eventTS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[id]
	if !exists {
		return ErrUserNotFound
	}
	return s.apply(user, premium, stripeCustomerID, eventTS)
}

func (s *MemoryStore) ApplyEntitlementByCustomer(_ context.Context, customerID string, premium int64, eventTS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByCustomer[customerID]
	if !exists {
		return ErrUserNotFound
	}
	return s.apply(user, premium, nil, eventTS)
}

func (s *MemoryStore) apply(user *domain.User, premium int64, stripeCustomerID *string, eventTS int64) error {
	if eventTS < user.PremiumEventTS {
		return ErrStaleEvent
	}
	user.Premium = premium
	if stripeCustomerID != nil {
		id := *stripeCustomerID
		user.StripeCustomerID = &id
		s.usersByCustomer[id] = user
	}
	user.PremiumEventTS = eventTS
	user.UpdatedAt = time.Now().UTC()
	return nil
}
