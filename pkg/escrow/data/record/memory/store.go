package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/escrow-payments/escrow-server/pkg/database/query"
	"github.com/escrow-payments/escrow-server/pkg/escrow/data/record"
)

type store struct {
	mu      sync.Mutex
	records []*record.Record
	last    uint64
}

type ById []*record.Record

func (a ById) Len() int           { return len(a) }
func (a ById) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ById) Less(i, j int) bool { return a[i].Id < a[j].Id }

// New returns a new in memory record.Store
func New() record.Store {
	return &store{}
}

// Put implements record.Store.Put
func (s *store) Put(_ context.Context, data *record.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.findByAddress(data.Address); item != nil {
		return record.ErrRecordExists
	}

	s.last++
	data.Id = s.last
	data.CreatedAt = time.Now()

	c := data.Clone()
	s.records = append(s.records, c)

	return nil
}

// GetByAddress implements record.Store.GetByAddress
func (s *store) GetByAddress(_ context.Context, address string) (*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.findByAddress(address); item != nil {
		return item.Clone(), nil
	}
	return nil, record.ErrRecordNotFound
}

// GetByVault implements record.Store.GetByVault
func (s *store) GetByVault(_ context.Context, vault string) (*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.findByVault(vault); item != nil {
		return item.Clone(), nil
	}
	return nil, record.ErrRecordNotFound
}

// MarkResolved implements record.Store.MarkResolved
func (s *store) MarkResolved(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByAddress(address)
	if item == nil {
		return record.ErrRecordNotFound
	}

	if item.IsCompleted {
		return record.ErrRecordAlreadyResolved
	}

	now := time.Now()
	item.IsCompleted = true
	item.ResolvedAt = &now

	return nil
}

// GetAllByBuyer implements record.Store.GetAllByBuyer
func (s *store) GetAllByBuyer(_ context.Context, buyer string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.findByBuyer(buyer)
	if len(items) == 0 {
		return nil, record.ErrRecordNotFound
	}

	res := s.filter(items, cursor, limit, direction)
	if len(res) == 0 {
		return nil, record.ErrRecordNotFound
	}

	return res, nil
}

// GetAllBySeller implements record.Store.GetAllBySeller
func (s *store) GetAllBySeller(_ context.Context, seller string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.findBySeller(seller)
	if len(items) == 0 {
		return nil, record.ErrRecordNotFound
	}

	res := s.filter(items, cursor, limit, direction)
	if len(res) == 0 {
		return nil, record.ErrRecordNotFound
	}

	return res, nil
}

// GetCountByBuyer implements record.Store.GetCountByBuyer
func (s *store) GetCountByBuyer(_ context.Context, buyer string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return uint64(len(s.findByBuyer(buyer))), nil
}

func (s *store) findByAddress(address string) *record.Record {
	for _, item := range s.records {
		if address == item.Address {
			return item
		}
	}
	return nil
}

func (s *store) findByVault(vault string) *record.Record {
	for _, item := range s.records {
		if vault == item.VaultAddress {
			return item
		}
	}
	return nil
}

func (s *store) findByBuyer(buyer string) []*record.Record {
	res := make([]*record.Record, 0)
	for _, item := range s.records {
		if item.Buyer == buyer {
			res = append(res, item.Clone())
		}
	}
	return res
}

func (s *store) findBySeller(seller string) []*record.Record {
	res := make([]*record.Record, 0)
	for _, item := range s.records {
		if item.Seller == seller {
			res = append(res, item.Clone())
		}
	}
	return res
}

func (s *store) filter(items []*record.Record, cursor query.Cursor, limit uint64, direction query.Ordering) []*record.Record {
	var start uint64

	start = 0
	if direction == query.Descending {
		start = s.last + 1
	}
	if len(cursor) > 0 {
		start = cursor.ToUint64()
	}

	var res []*record.Record
	for _, item := range items {
		if item.Id > start && direction == query.Ascending {
			res = append(res, item)
		}
		if item.Id < start && direction == query.Descending {
			res = append(res, item)
		}
	}

	if direction == query.Descending {
		sort.Sort(sort.Reverse(ById(res)))
	}

	if len(res) >= int(limit) {
		return res[:limit]
	}

	return res
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.last = 0
}
