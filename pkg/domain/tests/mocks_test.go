package tests

import (
	"context"
	"sort"
	"sync"

	"supplychain/pkg/domain/model"
	"supplychain/pkg/domain/service"
)

var _ model.UnitOfWork = &mockStore{}

// mockStore stages writes made inside Execute and publishes them on success.
type mockStore struct {
	mu        sync.Mutex
	products  map[int64]*model.Product
	records   []model.TransactionRecord
	lastID    int64
	appendErr error
}

func newMockStore() *mockStore {
	return &mockStore{products: make(map[int64]*model.Product)}
}

func (m *mockStore) Execute(_ context.Context, action func(provider model.RepositoryProvider) error) error {
	tx := &mockTx{store: m, products: make(map[int64]model.Product)}
	if err := action(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range tx.products {
		clone := p
		m.products[id] = &clone
	}
	for _, r := range tx.records {
		r.Seq = int64(len(m.records) + 1)
		m.records = append(m.records, *r)
	}
	return nil
}

func (m *mockStore) product(id int64) (model.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return model.Product{}, false
	}
	return *p, true
}

func (m *mockStore) history(productID int64) []model.TransactionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.TransactionRecord
	for _, r := range m.records {
		if r.ProductID == productID {
			result = append(result, r)
		}
	}
	return result
}

func (m *mockStore) ProductRepository() model.ProductRepository {
	return &mockTx{store: m, products: make(map[int64]model.Product), readOnly: true}
}

func (m *mockStore) HistoryRepository() model.HistoryRepository {
	return &mockTx{store: m, readOnly: true}
}

type mockTx struct {
	store    *mockStore
	products map[int64]model.Product
	records  []*model.TransactionRecord
	readOnly bool
}

func (t *mockTx) ProductRepository() model.ProductRepository { return t }
func (t *mockTx) HistoryRepository() model.HistoryRepository { return t }

func (t *mockTx) NextID(_ context.Context) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.lastID++
	return t.store.lastID, nil
}

func (t *mockTx) Create(_ context.Context, product *model.Product) error {
	t.products[product.ID] = *product
	return nil
}

func (t *mockTx) Update(_ context.Context, product *model.Product) error {
	if _, ok := t.store.product(product.ID); !ok {
		return model.ErrProductNotFound
	}
	t.products[product.ID] = *product
	return nil
}

func (t *mockTx) Find(_ context.Context, id int64) (*model.Product, error) {
	if p, ok := t.products[id]; ok {
		return &p, nil
	}
	p, ok := t.store.product(id)
	if !ok {
		return nil, model.ErrProductNotFound
	}
	return &p, nil
}

func (t *mockTx) List(_ context.Context) ([]model.Product, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	result := make([]model.Product, 0, len(t.store.products))
	for _, p := range t.store.products {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (t *mockTx) Append(_ context.Context, record *model.TransactionRecord) error {
	if t.store.appendErr != nil {
		return t.store.appendErr
	}
	t.records = append(t.records, record)
	return nil
}

func (t *mockTx) HistoryFor(_ context.Context, productID int64) ([]model.TransactionRecord, error) {
	return t.store.history(productID), nil
}

func (t *mockTx) RecordsByActor(_ context.Context, actor string) ([]model.TransactionRecord, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var result []model.TransactionRecord
	for _, r := range t.store.records {
		if r.Actor == actor {
			result = append(result, r)
		}
	}
	return result, nil
}

var _ model.RoleAuthority = &mockRoleAuthority{}

type mockRoleAuthority struct {
	grants map[string][]model.Capability
}

func (m *mockRoleAuthority) grant(identity string, caps ...model.Capability) {
	m.grants[identity] = append(m.grants[identity], caps...)
}

func (m *mockRoleAuthority) HasCapability(_ context.Context, identity string, capability model.Capability) (bool, error) {
	for _, c := range m.grants[identity] {
		if c == capability {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRoleAuthority) CapabilitiesOf(_ context.Context, identity string) ([]model.Capability, error) {
	return m.grants[identity], nil
}

// blockingRoleAuthority parks capability checks for one identity until release is closed.
type blockingRoleAuthority struct {
	*mockRoleAuthority
	identity string
	entered  chan struct{}
	release  chan struct{}
}

func (m *blockingRoleAuthority) HasCapability(ctx context.Context, identity string, capability model.Capability) (bool, error) {
	if identity == m.identity {
		m.entered <- struct{}{}
		<-m.release
	}
	return m.mockRoleAuthority.HasCapability(ctx, identity, capability)
}

var _ service.EventDispatcher = &mockEventDispatcher{}

type mockEventDispatcher struct {
	mu     sync.Mutex
	events []service.Event
}

func (m *mockEventDispatcher) Dispatch(event service.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockEventDispatcher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
