package store

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore is an in-process ApprovalStore and OrderStore.
type MemoryStore struct {
	mu        sync.Mutex
	approvals map[ApprovalKey]PendingApproval
	claims    map[common.Hash]string
	orders    map[string]Order
}

var (
	_ ApprovalStore = (*MemoryStore)(nil)
	_ OrderStore    = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		approvals: make(map[ApprovalKey]PendingApproval),
		claims:    make(map[common.Hash]string),
		orders:    make(map[string]Order),
	}
}

func (m *MemoryStore) SaveApproval(_ context.Context, approval PendingApproval) error {
	if approval.Amount != nil {
		approval.Amount = new(big.Int).Set(approval.Amount)
	}
	m.mu.Lock()
	m.approvals[approval.Key()] = approval
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetApproval(_ context.Context, key ApprovalKey) (*PendingApproval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.approvals[key]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Amount != nil {
		a.Amount = new(big.Int).Set(a.Amount)
	}
	return &a, nil
}

func (m *MemoryStore) DeleteApproval(_ context.Context, key ApprovalKey) error {
	m.mu.Lock()
	delete(m.approvals, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ClaimTransaction(_ context.Context, txHash common.Hash, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.claims[txHash]; taken {
		return false, nil
	}
	m.claims[txHash] = orderID
	return true, nil
}

func (m *MemoryStore) ReleaseTransaction(_ context.Context, txHash common.Hash) error {
	m.mu.Lock()
	delete(m.claims, txHash)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ClaimedOrder(_ context.Context, txHash common.Hash) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.claims[txHash]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (m *MemoryStore) SaveOrder(_ context.Context, order Order) error {
	m.mu.Lock()
	m.orders[order.ID] = order
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}
