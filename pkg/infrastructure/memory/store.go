// Package memory keeps products, the ledger and role grants in process memory. Writes made inside
// Execute are staged and become visible together when the action succeeds.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"supplychain/pkg/domain/model"
)

var (
	_ model.UnitOfWork        = (*Store)(nil)
	_ model.RoleAuthority     = (*Store)(nil)
	_ model.RoleAdministrator = (*Store)(nil)
)

type Store struct {
	mu       sync.RWMutex
	products map[int64]model.Product
	records  []model.TransactionRecord
	grants   map[string]map[model.Capability]struct{}
	lastID   int64
	lastSeq  int64
}

func NewStore() *Store {
	return &Store{
		products: make(map[int64]model.Product),
		grants:   make(map[string]map[model.Capability]struct{}),
	}
}

func (s *Store) ProductRepository() model.ProductRepository {
	return &productRepository{store: s}
}

func (s *Store) HistoryRepository() model.HistoryRepository {
	return &historyRepository{store: s}
}

func (s *Store) Execute(_ context.Context, action func(provider model.RepositoryProvider) error) error {
	tx := &transaction{store: s, products: make(map[int64]model.Product)}
	if err := action(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range tx.products {
		s.products[id] = p
	}
	for _, r := range tx.records {
		s.appendLocked(r)
	}
	return nil
}

func (s *Store) appendLocked(record *model.TransactionRecord) {
	s.lastSeq++
	record.Seq = s.lastSeq
	s.records = append(s.records, *record)
}

func (s *Store) find(id int64) (model.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

func (s *Store) nextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	return s.lastID
}

func (s *Store) selectRecords(match func(r model.TransactionRecord) bool) []model.TransactionRecord {
	s.mu.RLock()
	result := make([]model.TransactionRecord, 0)
	for _, r := range s.records {
		if match(r) {
			result = append(result, r)
		}
	}
	s.mu.RUnlock()

	// records are kept in Seq order, so a stable sort by time keeps insertion order on ties
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result
}

// transaction stages writes made inside Execute.
type transaction struct {
	store    *Store
	products map[int64]model.Product
	records  []*model.TransactionRecord
}

func (t *transaction) ProductRepository() model.ProductRepository {
	return &productRepository{store: t.store, tx: t}
}

func (t *transaction) HistoryRepository() model.HistoryRepository {
	return &historyRepository{store: t.store, tx: t}
}

type productRepository struct {
	store *Store
	tx    *transaction
}

func (r *productRepository) NextID(_ context.Context) (int64, error) {
	return r.store.nextID(), nil
}

func (r *productRepository) Create(_ context.Context, product *model.Product) error {
	if _, exists := r.lookup(product.ID); exists {
		return fmt.Errorf("product %d already exists", product.ID)
	}
	r.write(*product)
	return nil
}

func (r *productRepository) Update(_ context.Context, product *model.Product) error {
	if _, exists := r.lookup(product.ID); !exists {
		return model.ErrProductNotFound
	}
	r.write(*product)
	return nil
}

func (r *productRepository) Find(_ context.Context, id int64) (*model.Product, error) {
	p, ok := r.lookup(id)
	if !ok {
		return nil, model.ErrProductNotFound
	}
	return &p, nil
}

func (r *productRepository) List(_ context.Context) ([]model.Product, error) {
	r.store.mu.RLock()
	result := make([]model.Product, 0, len(r.store.products))
	for _, p := range r.store.products {
		result = append(result, p)
	}
	r.store.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *productRepository) lookup(id int64) (model.Product, bool) {
	if r.tx != nil {
		if p, ok := r.tx.products[id]; ok {
			return p, true
		}
	}
	return r.store.find(id)
}

func (r *productRepository) write(product model.Product) {
	if r.tx != nil {
		r.tx.products[product.ID] = product
		return
	}
	r.store.mu.Lock()
	r.store.products[product.ID] = product
	r.store.mu.Unlock()
}

type historyRepository struct {
	store *Store
	tx    *transaction
}

func (r *historyRepository) Append(_ context.Context, record *model.TransactionRecord) error {
	if r.tx != nil {
		r.tx.records = append(r.tx.records, record)
		return nil
	}
	r.store.mu.Lock()
	r.store.appendLocked(record)
	r.store.mu.Unlock()
	return nil
}

func (r *historyRepository) HistoryFor(_ context.Context, productID int64) ([]model.TransactionRecord, error) {
	return r.store.selectRecords(func(rec model.TransactionRecord) bool { return rec.ProductID == productID }), nil
}

func (r *historyRepository) RecordsByActor(_ context.Context, actor string) ([]model.TransactionRecord, error) {
	return r.store.selectRecords(func(rec model.TransactionRecord) bool { return rec.Actor == actor }), nil
}

func (s *Store) HasCapability(_ context.Context, identity string, capability model.Capability) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grants[identity][capability]
	return ok, nil
}

func (s *Store) CapabilitiesOf(_ context.Context, identity string) ([]model.Capability, error) {
	s.mu.RLock()
	result := make([]model.Capability, 0, len(s.grants[identity]))
	for c := range s.grants[identity] {
		result = append(result, c)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

func (s *Store) Grant(_ context.Context, identity string, capability model.Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.grants[identity]
	if !ok {
		set = make(map[model.Capability]struct{})
		s.grants[identity] = set
	}
	set[capability] = struct{}{}
	return nil
}

func (s *Store) Revoke(_ context.Context, identity string, capability model.Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants[identity], capability)
	if len(s.grants[identity]) == 0 {
		delete(s.grants, identity)
	}
	return nil
}
