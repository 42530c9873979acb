package memory

import (
	"context"
	"sync"
	"time"

	"github.com/escrow-payments/escrow-server/pkg/escrow/data/ledger"
)

type store struct {
	mu       sync.Mutex
	accounts []*ledger.AccountRecord
	last     uint64
}

// New returns a new in memory ledger.Store
func New() ledger.Store {
	return &store{}
}

// CreateAccount implements ledger.Store.CreateAccount
func (s *store) CreateAccount(_ context.Context, data *ledger.AccountRecord) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.findByAddress(data.Address); item != nil {
		return ledger.ErrAccountExists
	}

	s.last++
	data.Id = s.last
	data.CreatedAt = time.Now()

	c := data.Clone()
	s.accounts = append(s.accounts, c)

	return nil
}

// GetByAddress implements ledger.Store.GetByAddress
func (s *store) GetByAddress(_ context.Context, address string) (*ledger.AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.findByAddress(address); item != nil {
		return item.Clone(), nil
	}
	return nil, ledger.ErrAccountNotFound
}

// Transfer implements ledger.Store.Transfer
func (s *store) Transfer(_ context.Context, source, destination, authority string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.findByAddress(source)
	if from == nil {
		return ledger.ErrAccountNotFound
	}

	to := s.findByAddress(destination)
	if to == nil {
		return ledger.ErrAccountNotFound
	}

	if from.Authority != authority {
		return ledger.ErrInvalidAuthority
	}

	if from.Balance < amount {
		return ledger.ErrInsufficientFunds
	}

	from.Balance -= amount
	to.Balance += amount

	return nil
}

func (s *store) findByAddress(address string) *ledger.AccountRecord {
	for _, item := range s.accounts {
		if address == item.Address {
			return item
		}
	}
	return nil
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = nil
	s.last = 0
}
