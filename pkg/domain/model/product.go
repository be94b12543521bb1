package model

import (
	"context"
	"time"
)

type ProductState int

const (
	Produced ProductState = iota
	InTransit
	InWarehouse
	Distributed
	InStore
	Sold
)

var stateNames = [...]string{"PRODUCED", "IN_TRANSIT", "IN_WAREHOUSE", "DISTRIBUTED", "IN_STORE", "SOLD"}

var stateLabels = [...]string{"Produced", "In Transit", "In Warehouse", "Distributed", "In Store", "Sold"}

func (s ProductState) Valid() bool { return s >= Produced && s <= Sold }

// Terminal reports whether no transition leaves the state.
func (s ProductState) Terminal() bool { return s == Sold }

func (s ProductState) String() string {
	if !s.Valid() {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Label is the display form used by dashboards.
func (s ProductState) Label() string {
	if !s.Valid() {
		return "Unknown"
	}
	return stateLabels[s]
}

type Product struct {
	ID           int64
	Name         string
	Producer     string
	CurrentOwner string
	State        ProductState
	CreatedAt    time.Time
	LastUpdated  time.Time
}

// TransactionRecord is one accepted transition. Seq is the ledger insertion order and breaks ties
// between records with equal timestamps.
type TransactionRecord struct {
	Seq        int64
	ProductID  int64
	Transition TransitionKind
	FromState  ProductState
	ToState    ProductState
	Actor      string
	Timestamp  time.Time
	Location   string
}

type ProductRepository interface {
	NextID(ctx context.Context) (int64, error)
	Create(ctx context.Context, product *Product) error
	Update(ctx context.Context, product *Product) error
	Find(ctx context.Context, id int64) (*Product, error)
	List(ctx context.Context) ([]Product, error)
}

type HistoryRepository interface {
	Append(ctx context.Context, record *TransactionRecord) error
	HistoryFor(ctx context.Context, productID int64) ([]TransactionRecord, error)
	RecordsByActor(ctx context.Context, actor string) ([]TransactionRecord, error)
}

type RepositoryProvider interface {
	ProductRepository() ProductRepository
	HistoryRepository() HistoryRepository
}

// UnitOfWork runs action so that every write made through the provider is committed together or
// not at all. Reads of a product made inside the action see the latest committed state.
type UnitOfWork interface {
	Execute(ctx context.Context, action func(provider RepositoryProvider) error) error
}
